//go:build whisper

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
	"os"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/logging"
)

// whisperSampleRate is the only rate the model accepts
const whisperSampleRate = 16000

// WhisperRecognizer runs speech recognition in-process with whisper.cpp
type WhisperRecognizer struct {
	mu        sync.Mutex // one inference at a time on the shared model
	model     whisper.Model
	modelPath string
	language  string
}

// NewWhisperRecognizer loads the ggml model at modelPath
func NewWhisperRecognizer(modelPath, language string) (*WhisperRecognizer, error) {
	// Check if model file exists
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper model not found at %s", modelPath)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model: %w", err)
	}

	logging.LogAudioProcessing("", "whisper_loaded", zap.String("model_path", modelPath))
	return &WhisperRecognizer{
		model:     model,
		modelPath: modelPath,
		language:  language,
	}, nil
}

// RecognizeFile transcribes the WAV file at path
func (wr *WhisperRecognizer) RecognizeFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}

	clip, err := audio.ParseWAV(data)
	if err != nil {
		return "", fmt.Errorf("whisper backend needs WAV input: %w", err)
	}
	samples := audio.Resample(clip.Samples, clip.SampleRate, whisperSampleRate)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	if wr.model == nil {
		return "", fmt.Errorf("whisper model not initialized")
	}

	wctx, err := wr.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("failed to create whisper context: %w", err)
	}
	if wr.language != "" {
		if err := wctx.SetLanguage(wr.language); err != nil {
			return "", fmt.Errorf("unsupported whisper language %q: %w", wr.language, err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("failed to process audio: %w", err)
	}

	var transcript strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read whisper segment: %w", err)
		}
		transcript.WriteString(segment.Text)
	}

	return strings.TrimSpace(transcript.String()), nil
}

// Close cleans up the Whisper model
func (wr *WhisperRecognizer) Close() error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if wr.model != nil {
		err := wr.model.Close()
		wr.model = nil
		return err
	}
	return nil
}
