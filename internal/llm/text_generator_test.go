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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voice/internal/config"
)

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "openai",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(body)
}

func newTestGenerator(url string, timeout time.Duration) *TextGenerator {
	return NewTextGenerator(config.GenerationConfig{
		URL:       url,
		Model:     "openai",
		MaxTokens: 1000,
		Timeout:   timeout,
	})
}

func TestTextGenerator_Success(t *testing.T) {
	var captured struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("  Hello! How can I help?\n")))
	}))
	defer srv.Close()

	gen := newTestGenerator(srv.URL+"/openai", 5*time.Second)
	reply := gen.Generate(context.Background(), []ChatMessage{
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "hi"},
	})

	assert.Equal(t, "Hello! How can I help?", reply)
	assert.Equal(t, "/openai/chat/completions", path)
	assert.Equal(t, "openai", captured.Model)
	assert.Equal(t, 1000, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "hi", captured.Messages[1].Content)
}

func TestTextGenerator_Fallbacks(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		timeout  time.Duration
		wantKind GenerationErrorKind
		want     string
	}{
		{
			name: "Non-200 with error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			},
			wantKind: GenerationStatus,
			want:     FallbackStatus,
		},
		{
			name: "Non-200 with plain body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("bad gateway"))
			},
			wantKind: GenerationStatus,
			want:     FallbackStatus,
		},
		{
			name: "Blank content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(completionBody("   ")))
			},
			wantKind: GenerationEmpty,
			want:     FallbackEmpty,
		},
		{
			name: "No choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
			},
			wantKind: GenerationEmpty,
			want:     FallbackEmpty,
		},
		{
			name: "Slow backend",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout:  50 * time.Millisecond,
			wantKind: GenerationTimeout,
			want:     FallbackTimeout,
		},
		{
			name: "Garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json at all"))
			},
			wantKind: GenerationOther,
			want:     FallbackOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			timeout := tt.timeout
			if timeout == 0 {
				timeout = 5 * time.Second
			}
			gen := newTestGenerator(srv.URL, timeout)
			messages := []ChatMessage{{Role: "user", Content: "hi"}}

			_, err := gen.Complete(context.Background(), messages)
			var genErr *GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, tt.wantKind, genErr.Kind)

			assert.Equal(t, tt.want, gen.Generate(context.Background(), messages))
		})
	}
}

func TestTextGenerator_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gen := newTestGenerator(url, 5*time.Second)
	_, err := gen.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, GenerationConnection, genErr.Kind)
	assert.Equal(t, FallbackConnection, gen.Generate(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}))
}

func TestGenerationError_Fallback(t *testing.T) {
	tests := map[GenerationErrorKind]string{
		GenerationTimeout:    FallbackTimeout,
		GenerationConnection: FallbackConnection,
		GenerationStatus:     FallbackStatus,
		GenerationEmpty:      FallbackEmpty,
		GenerationOther:      FallbackOther,
		"unexpected":         FallbackOther,
	}

	for kind, want := range tests {
		err := &GenerationError{Kind: kind}
		assert.Equal(t, want, err.Fallback(), "kind %s", kind)
		assert.NotEmpty(t, err.Error())
	}
}
