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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAV format codes
const (
	formatPCM        = 1
	formatIEEEFloat  = 3
	formatExtensible = 0xFFFE
)

// FormatWAV is the container produced for synthesized speech
const FormatWAV = "wav"

// Clip is decoded mono audio
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the clip length in seconds
func (c *Clip) Duration() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ToContainer serializes mono float samples into a 16-bit PCM WAV stream.
// Samples outside [-1, 1] are clipped.
func ToContainer(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(math.Round(float64(s)*32767))))
	}

	return PCM16ToWAV(pcm, 1, sampleRate)
}

// PCM16ToWAV wraps little-endian 16-bit PCM into a WAV container
func PCM16ToWAV(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if numChannels <= 0 || numChannels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if len(pcm)%(2*numChannels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	const (
		bitsPerSample = 16
		subchunk1Size = 16
	)

	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	_ = binary.Write(buf, binary.LittleEndian, uint16(formatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

type wavFormat struct {
	code          uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// ParseWAV decodes a PCM or IEEE float WAV stream into a mono clip.
// Multi-channel audio is averaged down to one channel.
func ParseWAV(data []byte) (*Clip, error) {
	if !IsWAV(data) {
		return nil, errors.New("invalid WAV: missing RIFF/WAVE header")
	}

	var (
		format  *wavFormat
		payload []byte
	)

	i := 12
	for i+8 <= len(data) {
		chunkID := string(data[i : i+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		start := i + 8
		next := start + chunkSize

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || next > len(data) {
				return nil, errors.New("invalid WAV: truncated fmt chunk")
			}
			format = &wavFormat{
				code:          binary.LittleEndian.Uint16(data[start:]),
				channels:      int(binary.LittleEndian.Uint16(data[start+2:])),
				sampleRate:    int(binary.LittleEndian.Uint32(data[start+4:])),
				bitsPerSample: int(binary.LittleEndian.Uint16(data[start+14:])),
			}
		case "data":
			if next > len(data) {
				// Streamed WAVs often carry a placeholder size; take what is there.
				next = len(data)
			}
			payload = data[start:next]
		}

		if chunkSize%2 != 0 {
			next++
		}
		if payload != nil && format != nil {
			break
		}
		i = next
	}

	if format == nil {
		return nil, errors.New("invalid WAV: fmt chunk not found")
	}
	if payload == nil {
		return nil, errors.New("invalid WAV: data chunk not found")
	}
	if format.channels <= 0 || format.sampleRate <= 0 {
		return nil, fmt.Errorf("invalid WAV: %d channels at %d Hz", format.channels, format.sampleRate)
	}

	samples, err := decodeFrames(payload, format)
	if err != nil {
		return nil, err
	}

	return &Clip{Samples: samples, SampleRate: format.sampleRate}, nil
}

func decodeFrames(payload []byte, f *wavFormat) ([]float32, error) {
	code := f.code
	if code == formatExtensible {
		if f.bitsPerSample == 32 {
			code = formatIEEEFloat
		} else {
			code = formatPCM
		}
	}

	var (
		width  int
		sample func(b []byte) float32
	)

	switch {
	case code == formatPCM && f.bitsPerSample == 16:
		width = 2
		sample = func(b []byte) float32 {
			return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
		}
	case code == formatPCM && f.bitsPerSample == 8:
		width = 1
		sample = func(b []byte) float32 {
			return (float32(b[0]) - 128) / 128
		}
	case code == formatPCM && f.bitsPerSample == 32:
		width = 4
		sample = func(b []byte) float32 {
			return float32(int32(binary.LittleEndian.Uint32(b))) / 2147483648
		}
	case code == formatIEEEFloat && f.bitsPerSample == 32:
		width = 4
		sample = func(b []byte) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(b))
		}
	default:
		return nil, fmt.Errorf("unsupported WAV encoding: format %d, %d bits", f.code, f.bitsPerSample)
	}

	frameSize := width * f.channels
	frames := len(payload) / frameSize
	out := make([]float32, frames)

	for n := 0; n < frames; n++ {
		var sum float32
		base := n * frameSize
		for ch := 0; ch < f.channels; ch++ {
			sum += sample(payload[base+ch*width:])
		}
		out[n] = sum / float32(f.channels)
	}

	return out, nil
}
