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
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPClient interface for dependency injection in tests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// MockHTTPClient implements HTTPClient for testing
type MockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	return nil, fmt.Errorf("no mock function provided")
}

// CreateMockHTTPClient creates a mock STT service: /health answers 200 and
// transcription requests return transcript.
func CreateMockHTTPClient(transcript string) *MockHTTPClient {
	return &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if req.Body != nil {
				defer func() {
					_ = req.Body.Close() // Ignore close errors in mock
				}()
			}

			body := ""
			if strings.HasSuffix(req.URL.Path, "/v1/audio/transcriptions") {
				body = fmt.Sprintf(`{"text":%q}`, transcript)
			}

			resp := &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(body)),
			}
			resp.Header.Set("Content-Type", "application/json")
			return resp, nil
		},
	}
}

// CreateMockHTTPClientWithError creates a mock client that returns errors
func CreateMockHTTPClientWithError(errMsg string) *MockHTTPClient {
	return &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("%s", errMsg)
		},
	}
}

// MockRecognizer implements Recognizer for testing
type MockRecognizer struct {
	RecognizeFileFunc func(ctx context.Context, path string) (string, error)

	mu    sync.Mutex
	paths []string
}

func (m *MockRecognizer) RecognizeFile(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	m.paths = append(m.paths, path)
	m.mu.Unlock()

	if m.RecognizeFileFunc != nil {
		return m.RecognizeFileFunc(ctx, path)
	}
	return "mock transcript", nil
}

// Paths returns the files the recognizer was asked to read
func (m *MockRecognizer) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.paths...)
}

func (m *MockRecognizer) Close() error { return nil }

// MockSpeechGenerator implements SpeechGenerator for testing
type MockSpeechGenerator struct {
	GenerateFunc func(ctx context.Context, req *SpeechGenerationRequest) (*SpeechGenerationResponse, error)

	mu       sync.Mutex
	requests []*SpeechGenerationRequest
}

func (m *MockSpeechGenerator) Generate(ctx context.Context, req *SpeechGenerationRequest) (*SpeechGenerationResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	// Default response: 10ms of silence at 24kHz
	return &SpeechGenerationResponse{Audio: make([]float32, 240), SamplingRate: 24000}, nil
}

// Requests returns the requests received so far
func (m *MockSpeechGenerator) Requests() []*SpeechGenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*SpeechGenerationRequest(nil), m.requests...)
}

func (m *MockSpeechGenerator) Close() error { return nil }

// CreateMockSpeechGeneratorWithError creates a generator that always fails
func CreateMockSpeechGeneratorWithError(errMsg string) *MockSpeechGenerator {
	return &MockSpeechGenerator{
		GenerateFunc: func(ctx context.Context, req *SpeechGenerationRequest) (*SpeechGenerationResponse, error) {
			return nil, fmt.Errorf("%s", errMsg)
		},
	}
}
