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

package server

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/loqalabs/loqa-voice/internal/chat"
)

// Request defaults
const (
	DefaultModel     = "gpt-4o-audio-preview"
	ModalityText     = "text"
	ModalityAudio    = "audio"
	partTypeText     = "text"
	partTypeAudio    = "input_audio"
	completionObject = "chat.completion"
	finishReasonStop = "stop"
)

const msgMissingMessages = "Missing required 'messages' parameter"

// validationError is reported to the caller as a 400
type validationError struct {
	message string
	err     error
}

func (e *validationError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *validationError) Unwrap() error { return e.err }

// completionRequest is the body of POST /v1/chat/completions
type completionRequest struct {
	Model      string        `json:"model"`
	Messages   []wireMessage `json:"messages"`
	Modalities []string      `json:"modalities"`
	Audio      *audioOptions `json:"audio"`
}

type audioOptions struct {
	Voice  string `json:"voice"`
	Format string `json:"format"`
	Data   string `json:"data"`
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type wirePart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text"`
	InputAudio *wireInputAudio `json:"input_audio"`
}

type wireInputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// completionResponse is the chat.completion object
type completionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int        `json:"index"`
	Message      chat.Reply `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// decodeCompletionRequest parses and validates a request body, filling
// defaults for model and modalities
func decodeCompletionRequest(body []byte) (*completionRequest, error) {
	var req completionRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return nil, &validationError{message: "Invalid JSON in request body", err: err}
	}

	if len(req.Messages) == 0 {
		return nil, &validationError{message: msgMissingMessages}
	}

	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.Modalities == nil {
		req.Modalities = []string{ModalityText}
	}

	return &req, nil
}

// wantsAudio reports whether a spoken rendition was requested
func (r *completionRequest) wantsAudio() bool {
	for _, m := range r.Modalities {
		if m == ModalityAudio {
			return true
		}
	}
	return false
}

// turns converts wire messages to chat turns
func (r *completionRequest) turns() ([]chat.Turn, error) {
	turns := make([]chat.Turn, 0, len(r.Messages))
	for i, msg := range r.Messages {
		content, err := decodeContent(msg.Content)
		if err != nil {
			return nil, &validationError{message: fmt.Sprintf("Invalid content in message %d", i), err: err}
		}

		role := msg.Role
		if role == "" {
			role = chat.RoleUser
		}
		turns = append(turns, chat.Turn{Role: role, Content: content})
	}
	return turns, nil
}

// decodeContent accepts a string or an array of typed parts. Any other
// shape (null, numbers, objects) yields empty text, which the normalizer
// drops.
func decodeContent(raw json.RawMessage) (chat.Content, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return chat.TextContent(""), nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := sonic.Unmarshal(trimmed, &text); err != nil {
			return chat.Content{}, err
		}
		return chat.TextContent(text), nil

	case '[':
		var parts []wirePart
		if err := sonic.Unmarshal(trimmed, &parts); err != nil {
			return chat.Content{}, err
		}

		converted := make([]chat.Part, 0, len(parts))
		for _, p := range parts {
			switch p.Type {
			case partTypeText:
				converted = append(converted, chat.Part{Kind: chat.PartText, Text: p.Text})
			case partTypeAudio:
				if p.InputAudio == nil {
					continue
				}
				converted = append(converted, chat.Part{
					Kind:         chat.PartAudio,
					EncodedAudio: p.InputAudio.Data,
					Format:       p.InputAudio.Format,
				})
			}
		}
		return chat.MixedContent(converted...), nil

	default:
		return chat.TextContent(""), nil
	}
}
