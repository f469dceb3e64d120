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
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/logging"
)

// ErrEmptyAudio is returned when there is nothing to transcribe
var ErrEmptyAudio = errors.New("empty audio data")

// Recognizer is a speech recognition backend that reads audio from a file
type Recognizer interface {
	// RecognizeFile returns the transcript of the audio stored at path
	RecognizeFile(ctx context.Context, path string) (string, error)

	// Close cleans up resources
	Close() error
}

// TranscriptionError reports a failed transcription and the stage it failed in
type TranscriptionError struct {
	Stage string // "stage" or "recognize"
	Err   error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed during %s: %v", e.Stage, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Transcriber stages audio bytes in a temporary file and hands the file to
// a Recognizer. The staged file never outlives the call.
type Transcriber struct {
	recognizer Recognizer
	tempDir    string
}

// NewTranscriber creates a Transcriber. An empty tempDir uses os.TempDir().
func NewTranscriber(recognizer Recognizer, tempDir string) *Transcriber {
	return &Transcriber{
		recognizer: recognizer,
		tempDir:    tempDir,
	}
}

// Transcribe converts encoded audio to trimmed text
func (t *Transcriber) Transcribe(ctx context.Context, audioData []byte) (string, error) {
	if len(audioData) == 0 {
		return "", &TranscriptionError{Stage: "stage", Err: ErrEmptyAudio}
	}

	path, err := t.stage(audioData)
	if err != nil {
		return "", &TranscriptionError{Stage: "stage", Err: err}
	}
	defer t.remove(path)

	startTime := time.Now()
	text, err := t.recognizer.RecognizeFile(ctx, path)
	if err != nil {
		return "", &TranscriptionError{Stage: "recognize", Err: err}
	}

	text = strings.TrimSpace(text)
	logging.LogAudioProcessing(logging.RequestID(ctx), "transcribed",
		zap.Int("bytes", len(audioData)),
		zap.Int("text_length", len(text)),
		zap.Duration("duration", time.Since(startTime)),
	)

	return text, nil
}

// Close releases the underlying recognizer
func (t *Transcriber) Close() error {
	if t.recognizer == nil {
		return nil
	}
	return t.recognizer.Close()
}

func (t *Transcriber) stage(audioData []byte) (string, error) {
	f, err := os.CreateTemp(t.tempDir, "loqa-stt-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(audioData); err != nil {
		_ = f.Close()
		t.remove(path)
		return "", fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		t.remove(path)
		return "", fmt.Errorf("failed to close staging file: %w", err)
	}

	return path, nil
}

func (t *Transcriber) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.LogWarn("Failed to remove staged audio file", zap.String("path", path), zap.Error(err))
	}
}
