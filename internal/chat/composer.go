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
	"errors"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/llm"
	"github.com/loqalabs/loqa-voice/internal/logging"
	"github.com/loqalabs/loqa-voice/internal/voice"
)

// ErrSynthesisUnavailable is recorded when audio is requested but no
// synthesizer is configured
var ErrSynthesisUnavailable = errors.New("speech synthesis not configured")

// TextGenerator produces reply text and never fails
type TextGenerator interface {
	Generate(ctx context.Context, messages []llm.ChatMessage) string
}

// SpeechSynthesizer speaks reply text in a voice profile
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, profile voice.Profile) (*llm.SynthesisResult, error)
}

// ComposeRequest is everything the composer needs for one reply
type ComposeRequest struct {
	Turns          []Turn
	VoiceID        string
	ReferenceAudio string // base64 reference sample for cloning
	WantAudio      bool
}

// AudioOutcome records whether audio was attached and why not
type AudioOutcome struct {
	Requested bool
	Attached  bool
	Err       error
}

// Composition is the reply plus what happened while producing it
type Composition struct {
	Reply        Reply
	Normalized   []NormalizedTurn
	Stats        NormalizeStats
	Profile      voice.Profile // nil when no audio was requested
	ProfileKind  voice.Kind
	Audio        AudioOutcome
	ReferenceErr error // reference audio that could not be decoded
}

// Composer orchestrates normalization, generation and synthesis
type Composer struct {
	normalizer    *Normalizer
	generator     TextGenerator
	synthesizer   SpeechSynthesizer
	maxAudioBytes int
}

// NewComposer creates a Composer. synthesizer may be nil, in which case
// replies never carry audio.
func NewComposer(normalizer *Normalizer, generator TextGenerator, synthesizer SpeechSynthesizer, maxAudioBytes int) *Composer {
	return &Composer{
		normalizer:    normalizer,
		generator:     generator,
		synthesizer:   synthesizer,
		maxAudioBytes: maxAudioBytes,
	}
}

// Compose builds the reply for a conversation. Text is always present;
// audio is attached on a best-effort basis.
func (c *Composer) Compose(ctx context.Context, req ComposeRequest) *Composition {
	normalized, stats := c.normalizer.Normalize(ctx, req.Turns)

	text := c.generator.Generate(ctx, toChatMessages(normalized))

	comp := &Composition{
		Reply:      Reply{Role: RoleAssistant, Text: text},
		Normalized: normalized,
		Stats:      stats,
		Audio:      AudioOutcome{Requested: req.WantAudio},
	}
	if !req.WantAudio {
		return comp
	}

	reference, refErr := c.decodeReference(req.ReferenceAudio)
	if refErr != nil {
		comp.ReferenceErr = refErr
		logging.LogWarn("Reference audio could not be decoded, using persona voice",
			zap.String("request_id", logging.RequestID(ctx)),
			zap.Error(refErr),
		)
	}

	profile := voice.Resolve(req.VoiceID, reference)
	comp.Profile = profile
	comp.ProfileKind = profile.Kind()

	if c.synthesizer == nil {
		comp.Audio.Err = ErrSynthesisUnavailable
		return comp
	}

	result, err := c.synthesizer.Synthesize(ctx, text, profile)
	if err != nil {
		comp.Audio.Err = err
		logging.LogWarn("Speech synthesis failed, replying without audio",
			zap.String("request_id", logging.RequestID(ctx)),
			zap.String("profile", voice.Describe(profile)),
			zap.Error(err),
		)
		return comp
	}

	comp.Reply.Audio = &ReplyAudio{
		Data:   audio.Encode(result.Audio),
		Format: result.Format,
	}
	comp.Audio.Attached = true
	return comp
}

// decodeReference returns nil bytes for absent reference audio
func (c *Composer) decodeReference(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, nil
	}
	data, err := audio.DecodeLimited(b64, c.maxAudioBytes)
	if errors.Is(err, audio.ErrNoAudio) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func toChatMessages(turns []NormalizedTurn) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, len(turns))
	for i, t := range turns {
		messages[i] = llm.ChatMessage{Role: t.Role, Content: t.Text}
	}
	return messages
}
