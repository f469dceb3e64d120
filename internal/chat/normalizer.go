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

package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/logging"
	"github.com/loqalabs/loqa-voice/internal/security"
)

// AudioPlaceholder stands in for an audio part that could not be transcribed
const AudioPlaceholder = "[Audio could not be processed]"

// SpeechToText transcribes encoded audio
type SpeechToText interface {
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

// NormalizeStats counts what happened while flattening a conversation
type NormalizeStats struct {
	TurnsIn          int
	TurnsRetained    int
	AudioParts       int
	AudioPartsFailed int
}

// TurnsDropped is the number of turns that flattened to nothing
func (s NormalizeStats) TurnsDropped() int {
	return s.TurnsIn - s.TurnsRetained
}

// Normalizer flattens turns to text, transcribing embedded audio
type Normalizer struct {
	stt           SpeechToText
	maxAudioBytes int
}

// NewNormalizer creates a Normalizer. maxAudioBytes caps each decoded audio
// part; zero means no cap.
func NewNormalizer(stt SpeechToText, maxAudioBytes int) *Normalizer {
	return &Normalizer{
		stt:           stt,
		maxAudioBytes: maxAudioBytes,
	}
}

// partResult is the outcome of one audio part
type partResult struct {
	text string
	err  error
}

// Normalize flattens turns in order. Roles and order of retained turns are
// preserved; turns whose text trims to empty are dropped.
func (n *Normalizer) Normalize(ctx context.Context, turns []Turn) ([]NormalizedTurn, NormalizeStats) {
	stats := NormalizeStats{TurnsIn: len(turns)}
	normalized := make([]NormalizedTurn, 0, len(turns))

	for _, turn := range turns {
		text := n.flatten(ctx, turn.Content, &stats)
		if strings.TrimSpace(text) == "" {
			continue
		}

		role := turn.Role
		if role == "" {
			role = RoleUser
		}
		normalized = append(normalized, NormalizedTurn{Role: role, Text: text})
	}

	stats.TurnsRetained = len(normalized)
	return normalized, stats
}

func (n *Normalizer) flatten(ctx context.Context, content Content, stats *NormalizeStats) string {
	if !content.Mixed {
		return content.Text
	}

	pieces := make([]string, 0, len(content.Parts))
	for _, part := range content.Parts {
		switch part.Kind {
		case PartText:
			pieces = append(pieces, part.Text)
		case PartAudio:
			if strings.TrimSpace(part.EncodedAudio) == "" {
				continue
			}
			stats.AudioParts++

			res := n.transcribePart(ctx, part)
			if res.err != nil {
				stats.AudioPartsFailed++
				logging.LogWarn("Audio part could not be processed",
					zap.String("request_id", logging.RequestID(ctx)),
					zap.String("format", security.SanitizeLogInput(part.Format)),
					zap.Error(res.err),
				)
				pieces = append(pieces, AudioPlaceholder)
				continue
			}
			pieces = append(pieces, res.text)
		}
	}

	return strings.Join(pieces, " ")
}

func (n *Normalizer) transcribePart(ctx context.Context, part Part) partResult {
	data, err := audio.DecodeLimited(part.EncodedAudio, n.maxAudioBytes)
	if err != nil {
		return partResult{err: err}
	}

	wav, err := audio.ToWAV(data, part.Format)
	if err != nil {
		return partResult{err: err}
	}

	text, err := n.stt.Transcribe(ctx, wav)
	if err != nil {
		return partResult{err: err}
	}

	logging.LogAudioProcessing(logging.RequestID(ctx), "part_transcribed",
		zap.String("transcript", security.TruncateForLog(text, 120)),
	)
	return partResult{text: text}
}
