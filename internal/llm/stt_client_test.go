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
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-voice/internal/config"
)

func writeAudioFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestSTTClient_CheckHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "Healthy service", status: http.StatusOK, wantErr: false},
		{name: "Unhealthy service", status: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/health" {
					w.WriteHeader(tt.status)
				}
			}))
			defer mockServer.Close()

			client := NewSTTClient(config.STTConfig{URL: mockServer.URL, Timeout: 5 * time.Second})
			err := client.CheckHealth(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckHealth() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSTTClient_CheckHealthUnreachable(t *testing.T) {
	client := NewSTTClientWithHTTP(config.STTConfig{URL: "http://stt:8000"}, CreateMockHTTPClientWithError("connection refused"))

	err := client.CheckHealth(context.Background())
	if err == nil {
		t.Fatal("CheckHealth() expected error for unreachable service")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error = %v, want it to mention the cause", err)
	}
}

func TestSTTClient_RecoversWhenServiceComesUp(t *testing.T) {
	var up atomic.Bool
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/v1/audio/transcriptions":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"text":"late start"}`))
		}
	}))
	defer mockServer.Close()

	client := NewSTTClient(config.STTConfig{URL: mockServer.URL, Timeout: 5 * time.Second})
	if err := client.CheckHealth(context.Background()); err == nil {
		t.Fatal("CheckHealth() expected error while the service is down")
	}

	transcriber := NewTranscriber(client, t.TempDir())
	if _, err := transcriber.Transcribe(context.Background(), []byte("RIFF")); err == nil {
		t.Fatal("Transcribe() expected error while the service is down")
	}

	up.Store(true)

	text, err := transcriber.Transcribe(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v after the service came up", err)
	}
	if text != "late start" {
		t.Errorf("text = %q, want %q", text, "late start")
	}
}

func TestSTTClient_RecognizeFile(t *testing.T) {
	payload := []byte("RIFF....WAVEfmt fake")

	var (
		capturedModel    string
		capturedLanguage string
		capturedFile     []byte
		capturedName     string
	)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/v1/audio/transcriptions":
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				t.Errorf("Failed to parse multipart form: %v", err)
				return
			}
			capturedModel = r.FormValue("model")
			capturedLanguage = r.FormValue("language")

			file, header, err := r.FormFile("file")
			if err != nil {
				t.Errorf("missing file part: %v", err)
				return
			}
			defer file.Close()
			capturedName = header.Filename
			capturedFile, _ = io.ReadAll(file)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"text": "what time is it"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer mockServer.Close()

	client := NewSTTClient(config.STTConfig{URL: mockServer.URL, Model: "small", Language: "es"})

	text, err := client.RecognizeFile(context.Background(), writeAudioFile(t, payload))
	if err != nil {
		t.Fatalf("RecognizeFile() error = %v", err)
	}

	if text != "what time is it" {
		t.Errorf("text = %q", text)
	}
	if capturedModel != "small" {
		t.Errorf("model = %q, want small", capturedModel)
	}
	if capturedLanguage != "es" {
		t.Errorf("language = %q, want es", capturedLanguage)
	}
	if capturedName != "clip.wav" {
		t.Errorf("filename = %q, want clip.wav", capturedName)
	}
	if string(capturedFile) != string(payload) {
		t.Errorf("uploaded file = %q, want %q", capturedFile, payload)
	}
}

func TestSTTClient_ErrorHandling(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		errorContains string
	}{
		{
			name:          "Validation error (422)",
			status:        http.StatusUnprocessableEntity,
			body:          `{"detail":"Invalid language code"}`,
			errorContains: "422",
		},
		{
			name:          "Server error (500)",
			status:        http.StatusInternalServerError,
			errorContains: "500",
		},
		{
			name:          "Malformed JSON",
			status:        http.StatusOK,
			body:          `{"text":`,
			errorContains: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/health" {
					w.WriteHeader(http.StatusOK)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer mockServer.Close()

			client := NewSTTClient(config.STTConfig{URL: mockServer.URL})

			_, err := client.RecognizeFile(context.Background(), writeAudioFile(t, []byte("audio")))
			if err == nil {
				t.Fatal("RecognizeFile() expected error")
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("error = %q, want it to contain %q", err, tt.errorContains)
			}
		})
	}
}

func TestSTTClient_MissingFile(t *testing.T) {
	client := NewSTTClientWithHTTP(config.STTConfig{}, CreateMockHTTPClient("unused"))

	if _, err := client.RecognizeFile(context.Background(), filepath.Join(t.TempDir(), "gone.wav")); err == nil {
		t.Error("RecognizeFile() expected error for a missing file")
	}
}

func TestSTTClient_WithTranscriber(t *testing.T) {
	client := NewSTTClientWithHTTP(config.STTConfig{}, CreateMockHTTPClient(" hello world "))

	dir := t.TempDir()
	text, err := NewTranscriber(client, dir).Transcribe(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
}
