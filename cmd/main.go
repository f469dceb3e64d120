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

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/chat"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/llm"
	"github.com/loqalabs/loqa-voice/internal/logging"
	"github.com/loqalabs/loqa-voice/internal/messaging"
	"github.com/loqalabs/loqa-voice/internal/server"
	"github.com/loqalabs/loqa-voice/internal/storage"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneInterval   = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.InitializeWithConfig(logging.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	if err := run(cfg); err != nil {
		logging.LogError(err, "loqa-voice exited with error")
		logging.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stt := newSpeechToText(ctx, cfg.STT)
	if closer, ok := stt.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}

	synthesizer := newSynthesizer(ctx, cfg.TTS)
	var speech chat.SpeechSynthesizer
	if synthesizer != nil {
		speech = synthesizer
		defer func() { _ = synthesizer.Close() }()
	}

	composer := chat.NewComposer(
		chat.NewNormalizer(stt, cfg.Server.MaxAudioBytes),
		llm.NewTextGenerator(cfg.Generation),
		speech,
		cfg.Server.MaxAudioBytes,
	)
	deps := server.Dependencies{Composer: composer}

	if cfg.Storage.Enabled {
		db, err := storage.Open(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open completion event store: %w", err)
		}
		defer func() { _ = db.Close() }()

		logging.LogDatabaseOperation("open", "completion_events", zap.String("path", db.GetPath()))

		store := storage.NewCompletionEventsStore(db)
		deps.Events = store
		deps.Sinks = append(deps.Sinks, store)

		if cfg.Storage.Retention > 0 {
			go pruneEvents(ctx, store, cfg.Storage.Retention)
		}
	}

	if cfg.NATS.Enabled {
		nats := messaging.NewNATSService(cfg.NATS)
		if err := nats.Connect(); err != nil {
			logging.LogWarn("NATS unavailable, completion events will not be published", zap.Error(err))
		} else {
			defer nats.Close()
			deps.Sinks = append(deps.Sinks, nats)
		}
	}

	srv := server.New(cfg, deps)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// newSpeechToText builds the configured recognizer. The REST backend is kept
// even when it is not reachable yet; until it is, audio parts fall back to
// the placeholder. A local model that fails to load leaves the gateway
// serving text only.
func newSpeechToText(ctx context.Context, cfg config.STTConfig) chat.SpeechToText {
	if cfg.Backend == config.STTBackendWhisper {
		recognizer, err := llm.NewWhisperRecognizer(cfg.ModelPath, cfg.Language)
		if err != nil {
			logging.LogWarn("Speech recognition unavailable",
				zap.String("backend", cfg.Backend),
				zap.Error(err),
			)
			return unavailableSTT{err: err}
		}
		return llm.NewTranscriber(recognizer, cfg.TempDir)
	}

	client := llm.NewSTTClient(cfg)
	if err := client.CheckHealth(ctx); err != nil {
		logging.LogWarn("Speech recognition backend not ready yet",
			zap.String("url", cfg.URL),
			zap.Error(err),
		)
	}
	return llm.NewTranscriber(client, cfg.TempDir)
}

type unavailableSTT struct {
	err error
}

func (u unavailableSTT) Transcribe(context.Context, []byte) (string, error) {
	return "", u.err
}

// newSynthesizer connects to the speech backend; nil disables audio replies
func newSynthesizer(ctx context.Context, cfg config.TTSConfig) *llm.Synthesizer {
	client, err := llm.NewGRPCSpeechClient(cfg)
	if err != nil {
		logging.LogWarn("Speech synthesis unavailable", zap.Error(err))
		return nil
	}

	if err := client.CheckHealth(ctx); err != nil {
		// The connection is lazy; the backend may come up after the gateway.
		logging.LogWarn("Speech backend not ready yet", zap.String("target", cfg.Target), zap.Error(err))
	}

	return llm.NewSynthesizer(client, cfg)
}

func pruneEvents(ctx context.Context, store *storage.CompletionEventsStore, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		if _, err := store.DeleteOlderThan(ctx, time.Now().Add(-retention)); err != nil && ctx.Err() == nil {
			logging.LogWarn("Failed to prune completion events", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
