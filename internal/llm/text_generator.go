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
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/logging"
)

// GenerationErrorKind classifies text generation failures
type GenerationErrorKind string

const (
	GenerationTimeout    GenerationErrorKind = "timeout"
	GenerationConnection GenerationErrorKind = "connection"
	GenerationStatus     GenerationErrorKind = "status"
	GenerationEmpty      GenerationErrorKind = "empty"
	GenerationOther      GenerationErrorKind = "other"
)

// Fallback replies, one per failure kind
const (
	FallbackTimeout    = "I'm taking too long to respond. Please try again."
	FallbackConnection = "I'm having connectivity issues. Please try again later."
	FallbackStatus     = "I'm having trouble generating a response right now. Please try again."
	FallbackEmpty      = "I apologize, but I couldn't generate a proper response at the moment."
	FallbackOther      = "I encountered an error while generating a response. Please try again."
)

// GenerationError is a classified text generation failure
type GenerationError struct {
	Kind GenerationErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("text generation failed: %s", e.Kind)
	}
	return fmt.Sprintf("text generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Fallback returns the reply text used in place of generated content
func (e *GenerationError) Fallback() string {
	switch e.Kind {
	case GenerationTimeout:
		return FallbackTimeout
	case GenerationConnection:
		return FallbackConnection
	case GenerationStatus:
		return FallbackStatus
	case GenerationEmpty:
		return FallbackEmpty
	default:
		return FallbackOther
	}
}

// ChatMessage is one conversation entry sent to the generation backend
type ChatMessage struct {
	Role    string
	Content string
}

// TextGenerator produces assistant replies from an OpenAI-compatible endpoint
type TextGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewTextGenerator creates a generator for the configured endpoint
func NewTextGenerator(cfg config.GenerationConfig) *TextGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.URL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.URL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &TextGenerator{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   timeout,
	}
}

// Generate always returns reply text: generated content on success, the
// fallback for the failure kind otherwise.
func (g *TextGenerator) Generate(ctx context.Context, messages []ChatMessage) string {
	reply, err := g.Complete(ctx, messages)
	if err == nil {
		return reply
	}

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		genErr = &GenerationError{Kind: GenerationOther, Err: err}
	}
	logging.LogGeneration(g.model, string(genErr.Kind), zap.Error(genErr.Err))
	return genErr.Fallback()
}

// Complete runs one chat completion and returns the trimmed content or a
// *GenerationError.
func (g *TextGenerator) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:     g.model,
		Messages:  toOpenAIMessages(messages),
		MaxTokens: g.maxTokens,
	}

	startTime := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyGenerationError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", &GenerationError{Kind: GenerationEmpty}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &GenerationError{Kind: GenerationEmpty}
	}

	logging.LogGeneration(g.model, "ok",
		zap.Int("messages", len(messages)),
		zap.Int("reply_length", len(content)),
		zap.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)

	return content, nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

func classifyGenerationError(ctx context.Context, err error) *GenerationError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &GenerationError{Kind: GenerationTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &GenerationError{Kind: GenerationTimeout, Err: err}
	}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	if errors.As(err, &apiErr) || errors.As(err, &reqErr) {
		return &GenerationError{Kind: GenerationStatus, Err: err}
	}

	var opErr *net.OpError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &urlErr) {
		return &GenerationError{Kind: GenerationConnection, Err: err}
	}

	return &GenerationError{Kind: GenerationOther, Err: err}
}
