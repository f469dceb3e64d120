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
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/logging"
	"github.com/loqalabs/loqa-voice/internal/voice"
)

const (
	personaPreamble = "You are a voice synthesis engine. Speak the user's text naturally and expressively. " +
		"Generate audio following instruction.\n"

	clonePreamble = "Generate audio following instruction.\n"

	cloneScene = "Clone the voice characteristics from the provided reference audio. " +
		"Match the speaker's tone, accent, speaking style, and vocal qualities. " +
		"Maintain natural expression while preserving the unique voice identity."

	cloneRequestText = "Please clone this voice."

	sceneStart = "<|scene_desc_start|>\n"
	sceneEnd   = "\n<|scene_desc_end|>"
)

var (
	// ErrEmptyText is returned when there is no text to speak
	ErrEmptyText = errors.New("empty synthesis text")

	// ErrNoAudioGenerated is returned when the backend produced no samples
	ErrNoAudioGenerated = errors.New("no audio generated by model")
)

// SynthesisResult is a finished WAV rendition of a reply
type SynthesisResult struct {
	Audio      []byte
	SampleRate int
	Format     string
}

// SynthesisError reports a failed synthesis for the given profile
type SynthesisError struct {
	Profile string
	Err     error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("text-to-speech failed (%s): %v", e.Profile, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Synthesizer turns reply text into speech in a persona or cloned voice
type Synthesizer struct {
	generator SpeechGenerator
	config    config.TTSConfig
}

// NewSynthesizer creates a synthesizer on top of a speech generation backend
func NewSynthesizer(generator SpeechGenerator, cfg config.TTSConfig) *Synthesizer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.PCM16SampleRate
	}
	return &Synthesizer{
		generator: generator,
		config:    cfg,
	}
}

// Synthesize speaks text with the given voice profile and returns a WAV container
func (s *Synthesizer) Synthesize(ctx context.Context, text string, profile voice.Profile) (*SynthesisResult, error) {
	label := voice.Describe(profile)
	if strings.TrimSpace(text) == "" {
		return nil, &SynthesisError{Profile: label, Err: ErrEmptyText}
	}

	req := &SpeechGenerationRequest{
		Messages:     buildInstructions(text, profile),
		MaxNewTokens: s.config.MaxNewTokens,
		Temperature:  s.config.Temperature,
		TopK:         s.config.TopK,
		TopP:         s.config.TopP,
		ForceAudio:   true,
	}

	startTime := time.Now()
	resp, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, &SynthesisError{Profile: label, Err: err}
	}
	if resp == nil || len(resp.Audio) == 0 {
		return nil, &SynthesisError{Profile: label, Err: ErrNoAudioGenerated}
	}

	sampleRate := s.config.SampleRate
	if resp.SamplingRate > 0 {
		if resp.SamplingRate != s.config.SampleRate {
			logging.LogWarn("Speech backend reported a non-default sample rate",
				zap.Int("reported", resp.SamplingRate),
				zap.Int("default", s.config.SampleRate),
			)
		}
		sampleRate = resp.SamplingRate
	}

	wav, err := audio.ToContainer(resp.Audio, sampleRate)
	if err != nil {
		return nil, &SynthesisError{Profile: label, Err: err}
	}

	logging.LogTTSOperation("synthesize",
		zap.String("profile", label),
		zap.Int("text_length", len(text)),
		zap.Int("samples", len(resp.Audio)),
		zap.Int("sample_rate", sampleRate),
		zap.Int("bytes", len(wav)),
		zap.Duration("duration", time.Since(startTime)),
	)

	return &SynthesisResult{
		Audio:      wav,
		SampleRate: sampleRate,
		Format:     audio.FormatWAV,
	}, nil
}

// Close releases the speech generation backend
func (s *Synthesizer) Close() error {
	if s.generator == nil {
		return nil
	}
	return s.generator.Close()
}

// buildInstructions lays out the instruction sequence for a profile
func buildInstructions(text string, profile voice.Profile) []SpeechMessage {
	switch p := profile.(type) {
	case voice.ClonedVoice:
		return []SpeechMessage{
			{Role: SpeechRoleSystem, Text: clonePreamble + sceneStart + cloneScene + sceneEnd},
			{Role: SpeechRoleUser, Text: cloneRequestText},
			{Role: SpeechRoleAssistant, Audio: audio.Encode(p.ReferenceAudio)},
			{Role: SpeechRoleUser, Text: text},
		}
	case voice.Persona:
		return personaInstructions(text, p)
	default:
		return personaInstructions(text, voice.Default())
	}
}

func personaInstructions(text string, p voice.Persona) []SpeechMessage {
	return []SpeechMessage{
		{Role: SpeechRoleSystem, Text: personaPreamble + sceneStart + p.StyleDescription + sceneEnd},
		{Role: SpeechRoleUser, Text: text},
	}
}
