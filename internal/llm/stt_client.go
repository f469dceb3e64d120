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
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/logging"
)

// STTClient implements the Recognizer interface using REST API calls
// to any OpenAI-compatible Speech-to-Text service
type STTClient struct {
	baseURL    string
	model      string
	language   string
	httpClient HTTPClient
}

// OpenAI-compatible response struct
type transcriptionResponse struct {
	Text string `json:"text"`
}

// NewSTTClient creates a new OpenAI-compatible STT client
func NewSTTClient(cfg config.STTConfig) *STTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewSTTClientWithHTTP(cfg, &http.Client{Timeout: timeout})
}

// NewSTTClientWithHTTP creates an STT client on top of the given HTTP client.
// No request is made until the first transcription or CheckHealth.
func NewSTTClientWithHTTP(cfg config.STTConfig, client HTTPClient) *STTClient {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = "http://localhost:8000" // Default STT service address
	}

	return &STTClient{
		baseURL:    baseURL,
		model:      cfg.Model,
		language:   cfg.Language,
		httpClient: client,
	}
}

// CheckHealth verifies the service answers on /health
func (s *STTClient) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to STT service at %s: %w", s.baseURL, err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("STT service health check failed with status: %d", resp.StatusCode)
	}

	logging.LogAudioProcessing("", "stt_connected", zap.String("base_url", s.baseURL))
	return nil
}

// RecognizeFile uploads the audio file at path and returns the transcript
func (s *STTClient) RecognizeFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Create multipart form data
	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	audioWriter, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(audioWriter, f); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if s.model != "" {
		_ = writer.WriteField("model", s.model)
	}
	_ = writer.WriteField("language", s.language) // empty = auto-detect
	_ = writer.WriteField("temperature", "0.0")
	_ = writer.WriteField("response_format", "json")

	contentType := writer.FormDataContentType()
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/audio/transcriptions", &requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	startTime := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription HTTP request failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, string(body))
	}

	var transcriptionResp transcriptionResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&transcriptionResp); err != nil {
		return "", fmt.Errorf("failed to parse transcription response: %w", err)
	}

	logging.LogAudioProcessing(logging.RequestID(ctx), "stt_response",
		zap.Int64("processing_time_ms", time.Since(startTime).Milliseconds()),
		zap.Int("text_length", len(transcriptionResp.Text)),
	)

	return transcriptionResp.Text, nil
}

// Close cleans up resources
func (s *STTClient) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		logging.LogWarn("Failed to close response body", zap.Error(err))
	}
}
