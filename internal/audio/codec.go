/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package audio handles the audio payloads exchanged with chat clients:
// base64 transport encoding, WAV containers and input format conversion.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const dataURLPrefix = "data:audio"

var (
	// ErrNoAudio is returned when a payload carries no audio at all.
	// It is deliberately not a DecodeError so callers can tell an
	// absent payload apart from a broken one.
	ErrNoAudio = errors.New("no audio data provided")

	// ErrMalformedAudio matches every DecodeError via errors.Is
	ErrMalformedAudio = errors.New("malformed audio payload")
)

// DecodeError reports a base64 audio payload that could not be decoded
type DecodeError struct {
	Length int   // length of the payload after prefix stripping
	Err    error // underlying cause
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid base64 audio data (%d chars): %v", e.Length, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrMalformedAudio) match any DecodeError
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedAudio
}

// Decode decodes a base64 audio payload. A leading "data:audio...," URL
// prefix is stripped and missing "=" padding is repaired before decoding.
func Decode(b64 string) ([]byte, error) {
	return DecodeLimited(b64, 0)
}

// DecodeLimited is Decode with an upper bound on the decoded size.
// maxBytes <= 0 disables the bound.
func DecodeLimited(b64 string, maxBytes int) ([]byte, error) {
	payload := strings.TrimSpace(b64)

	if strings.HasPrefix(payload, dataURLPrefix) {
		idx := strings.IndexByte(payload, ',')
		if idx < 0 {
			return nil, &DecodeError{Length: len(payload), Err: errors.New("data URL without payload separator")}
		}
		payload = strings.TrimSpace(payload[idx+1:])
	}

	if payload == "" {
		return nil, ErrNoAudio
	}

	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+2 {
		return nil, &DecodeError{
			Length: len(payload),
			Err:    fmt.Errorf("payload exceeds %d byte limit", maxBytes),
		}
	}

	if missing := len(payload) % 4; missing != 0 {
		payload += strings.Repeat("=", 4-missing)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Length: len(payload), Err: err}
	}

	if maxBytes > 0 && len(data) > maxBytes {
		return nil, &DecodeError{
			Length: len(payload),
			Err:    fmt.Errorf("payload exceeds %d byte limit", maxBytes),
		}
	}

	return data, nil
}

// Encode returns the standard, padded base64 encoding of data
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
