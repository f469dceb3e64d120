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

package audio

import (
	"fmt"
	"strings"

	"github.com/zaf/g711"
)

// Raw input formats accepted in input_audio parts
const (
	FormatPCM16    = "pcm16"
	FormatG711ULaw = "g711_ulaw"
	FormatG711ALaw = "g711_alaw"
)

// Sample rates implied by the raw formats
const (
	PCM16SampleRate = 24000
	G711SampleRate  = 8000
)

// ToWAV prepares an input audio part for speech recognition. Raw PCM and
// G.711 payloads are wrapped in a WAV container; encoded formats (wav, mp3,
// flac, ...) pass through untouched for the recognizer to handle.
func ToWAV(data []byte, format string) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNoAudio
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatPCM16:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("pcm16 payload has odd length %d", len(data))
		}
		return PCM16ToWAV(data, 1, PCM16SampleRate)
	case FormatG711ULaw:
		return PCM16ToWAV(g711.DecodeUlaw(data), 1, G711SampleRate)
	case FormatG711ALaw:
		return PCM16ToWAV(g711.DecodeAlaw(data), 1, G711SampleRate)
	default:
		return data, nil
	}
}

// Resample converts samples between rates using linear interpolation
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate <= 0 || toRate <= 0 || fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		return nil
	}

	out := make([]float32, outLen)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}

	return out
}
