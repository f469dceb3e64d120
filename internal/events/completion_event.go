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

package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// CompletionEvent is the audit record of one chat completion. It carries
// request metadata only; message text is never stored.
type CompletionEvent struct {
	// Core identification
	UUID         string    `json:"uuid" db:"uuid"`
	CompletionID string    `json:"completion_id" db:"completion_id"`
	RequestID    string    `json:"request_id" db:"request_id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Model        string    `json:"model" db:"model"`
	Modalities   []string  `json:"modalities" db:"modalities"`

	// Conversation shape
	TurnsIn          int `json:"turns_in" db:"turns_in"`
	TurnsRetained    int `json:"turns_retained" db:"turns_retained"`
	AudioParts       int `json:"audio_parts" db:"audio_parts"`
	AudioPartsFailed int `json:"audio_parts_failed" db:"audio_parts_failed"`

	// Speech output
	AudioRequested     bool   `json:"audio_requested" db:"audio_requested"`
	AudioAttached      bool   `json:"audio_attached" db:"audio_attached"`
	VoiceProfile       string `json:"voice_profile,omitempty" db:"voice_profile"`
	ReferenceAudioHash string `json:"reference_audio_hash,omitempty" db:"reference_audio_hash"`
	AudioError         string `json:"audio_error,omitempty" db:"audio_error"`

	// Usage and timing
	PromptTokens     int   `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens" db:"completion_tokens"`
	ProcessingTime   int64 `json:"processing_time_ms" db:"processing_time_ms"`
}

// NewCompletionEvent creates a new CompletionEvent with generated UUID and current timestamp
func NewCompletionEvent(completionID, requestID, model string) *CompletionEvent {
	return &CompletionEvent{
		UUID:         uuid.NewString(),
		CompletionID: completionID,
		RequestID:    requestID,
		Model:        model,
		Timestamp:    time.Now(),
		Modalities:   []string{},
	}
}

// GetCompletionID is used by structured logging helpers
func (ce *CompletionEvent) GetCompletionID() string {
	return ce.CompletionID
}

// SetConversation records how the inbound conversation was flattened
func (ce *CompletionEvent) SetConversation(turnsIn, turnsRetained, audioParts, audioPartsFailed int) {
	ce.TurnsIn = turnsIn
	ce.TurnsRetained = turnsRetained
	ce.AudioParts = audioParts
	ce.AudioPartsFailed = audioPartsFailed
}

// SetAudioOutcome records whether speech was requested and attached
func (ce *CompletionEvent) SetAudioOutcome(requested, attached bool, profile string, err error) {
	ce.AudioRequested = requested
	ce.AudioAttached = attached
	ce.VoiceProfile = profile
	if err != nil {
		ce.AudioError = err.Error()
	}
}

// SetReferenceAudio stores a fingerprint of the cloning reference sample
func (ce *CompletionEvent) SetReferenceAudio(data []byte) {
	if len(data) == 0 {
		ce.ReferenceAudioHash = ""
		return
	}
	sum := sha256.Sum256(data)
	ce.ReferenceAudioHash = hex.EncodeToString(sum[:])
}

// SetUsage sets the approximate token counts and marks processing as complete
func (ce *CompletionEvent) SetUsage(promptTokens, completionTokens int) {
	ce.PromptTokens = promptTokens
	ce.CompletionTokens = completionTokens
	ce.ProcessingTime = time.Since(ce.Timestamp).Milliseconds()
}

// TotalTokens is the sum of prompt and completion tokens
func (ce *CompletionEvent) TotalTokens() int {
	return ce.PromptTokens + ce.CompletionTokens
}

// ModalitiesJSON returns modalities as JSON string for database storage
func (ce *CompletionEvent) ModalitiesJSON() (string, error) {
	if ce.Modalities == nil {
		return "[]", nil
	}

	data, err := sonic.Marshal(ce.Modalities)
	if err != nil {
		return "", fmt.Errorf("failed to marshal modalities: %w", err)
	}

	return string(data), nil
}

// SetModalitiesFromJSON parses JSON string and sets modalities
func (ce *CompletionEvent) SetModalitiesFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "[]" {
		ce.Modalities = []string{}
		return nil
	}

	var modalities []string
	if err := sonic.Unmarshal([]byte(jsonStr), &modalities); err != nil {
		return fmt.Errorf("failed to unmarshal modalities JSON: %w", err)
	}

	ce.Modalities = modalities
	return nil
}

// IsValid performs basic validation on the completion event
func (ce *CompletionEvent) IsValid() error {
	if ce.UUID == "" {
		return fmt.Errorf("UUID is required")
	}

	if ce.CompletionID == "" {
		return fmt.Errorf("completionID is required")
	}

	if ce.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if ce.TurnsRetained > ce.TurnsIn {
		return fmt.Errorf("retained turns exceed inbound turns")
	}

	if ce.AudioPartsFailed > ce.AudioParts {
		return fmt.Errorf("failed audio parts exceed audio parts")
	}

	if ce.AudioAttached && !ce.AudioRequested {
		return fmt.Errorf("audio attached without being requested")
	}

	return nil
}

// String returns a human-readable representation of the completion event
func (ce *CompletionEvent) String() string {
	return fmt.Sprintf("CompletionEvent{ID: %s, Model: %s, Turns: %d/%d, Audio: %t/%t, Profile: %q, Tokens: %d}",
		ce.CompletionID, ce.Model, ce.TurnsRetained, ce.TurnsIn, ce.AudioRequested, ce.AudioAttached,
		ce.VoiceProfile, ce.TotalTokens())
}
