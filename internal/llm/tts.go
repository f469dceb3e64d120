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
)

// Roles used in speech generation instruction sequences
const (
	SpeechRoleSystem    = "system"
	SpeechRoleUser      = "user"
	SpeechRoleAssistant = "assistant"
)

// SpeechMessage is one entry of an instruction sequence. Exactly one of
// Text or Audio is set; Audio is base64 encoded.
type SpeechMessage struct {
	Role  string `json:"role"`
	Text  string `json:"text,omitempty"`
	Audio string `json:"audio,omitempty"`
}

// SpeechGenerationRequest is what the speech generation backend consumes
type SpeechGenerationRequest struct {
	Messages     []SpeechMessage `json:"messages"`
	MaxNewTokens int             `json:"max_new_tokens"`
	Temperature  float32         `json:"temperature"`
	TopK         int             `json:"top_k"`
	TopP         float32         `json:"top_p"`
	ForceAudio   bool            `json:"force_audio_gen"`
}

// SpeechGenerationResponse carries generated samples in [-1, 1].
// SamplingRate is zero when the backend does not report one.
type SpeechGenerationResponse struct {
	Audio        []float32 `json:"audio"`
	SamplingRate int       `json:"sampling_rate,omitempty"`
	Text         string    `json:"text,omitempty"`
}

// SpeechGenerator defines the interface for speech generation backends
type SpeechGenerator interface {
	// Generate runs one instruction sequence and returns the produced audio
	Generate(ctx context.Context, req *SpeechGenerationRequest) (*SpeechGenerationResponse, error)

	// Close cleans up resources
	Close() error
}
