//go:build !whisper

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

package llm

import (
	"context"
	"errors"
)

// ErrWhisperDisabled is returned by the stub recognizer
var ErrWhisperDisabled = errors.New("whisper transcription disabled (build with -tags whisper to enable)")

// WhisperRecognizer stub implementation when whisper is disabled
type WhisperRecognizer struct {
	modelPath string
}

// NewWhisperRecognizer reports that the local backend is not compiled in
func NewWhisperRecognizer(modelPath, language string) (*WhisperRecognizer, error) {
	return nil, ErrWhisperDisabled
}

// RecognizeFile stub implementation
func (wr *WhisperRecognizer) RecognizeFile(ctx context.Context, path string) (string, error) {
	return "", ErrWhisperDisabled
}

// Close stub implementation
func (wr *WhisperRecognizer) Close() error {
	return nil
}
