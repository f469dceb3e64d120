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
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/logging"
)

// SpeechGenerateMethod is the full gRPC method name of the speech backend
const SpeechGenerateMethod = "/loqa.speech.v1.SpeechService/Generate"

// ErrSpeechQueueTimeout is returned when no backend slot frees up in time
var ErrSpeechQueueTimeout = errors.New("speech generation queue timeout")

// JSONCodec carries gRPC messages as JSON so the speech backend needs no
// generated stubs on this side.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return sonic.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return sonic.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

// GRPCSpeechClient implements SpeechGenerator against a gRPC speech service
type GRPCSpeechClient struct {
	conn      *grpc.ClientConn
	target    string
	config    config.TTSConfig
	semaphore chan struct{} // Limits concurrent requests
}

// NewGRPCSpeechClient creates a client for the speech service at cfg.Target.
// Extra dial options are appended to the defaults.
func NewGRPCSpeechClient(cfg config.TTSConfig, opts ...grpc.DialOption) (*GRPCSpeechClient, error) {
	if cfg.Target == "" {
		cfg.Target = "localhost:50061" // Default speech service address
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client for %s: %w", cfg.Target, err)
	}

	c := &GRPCSpeechClient{
		conn:      conn,
		target:    cfg.Target,
		config:    cfg,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}

	logging.LogTTSOperation("connect",
		zap.String("target", cfg.Target),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
	)

	return c, nil
}

// CheckHealth queries the standard gRPC health service of the backend
func (c *GRPCSpeechClient) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("speech service health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("speech service not serving: %s", resp.GetStatus())
	}
	return nil
}

// Generate implements SpeechGenerator
func (c *GRPCSpeechClient) Generate(ctx context.Context, req *SpeechGenerationRequest) (*SpeechGenerationResponse, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	resp := &SpeechGenerationResponse{}
	if err := c.conn.Invoke(ctx, SpeechGenerateMethod, req, resp, grpc.ForceCodec(JSONCodec{})); err != nil {
		return nil, fmt.Errorf("speech generation gRPC call failed: %w", err)
	}

	logging.LogTTSOperation("generate",
		zap.String("target", c.target),
		zap.Int("messages", len(req.Messages)),
		zap.Int("samples", len(resp.Audio)),
		zap.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)

	return resp, nil
}

// acquire takes a backend slot, giving up after the queue timeout
func (c *GRPCSpeechClient) acquire(ctx context.Context) error {
	queueTimeout := c.config.QueueTimeout
	if queueTimeout <= 0 {
		queueTimeout = 30 * time.Second
	}

	timer := time.NewTimer(queueTimeout)
	defer timer.Stop()

	select {
	case c.semaphore <- struct{}{}:
		return nil
	case <-timer.C:
		logging.LogWarn("Speech generation queue full", zap.Duration("queue_timeout", queueTimeout))
		return ErrSpeechQueueTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *GRPCSpeechClient) release() {
	<-c.semaphore
}

// Close closes the gRPC connection
func (c *GRPCSpeechClient) Close() error {
	if c.conn != nil {
		logging.LogTTSOperation("close", zap.String("target", c.target))
		return c.conn.Close()
	}
	return nil
}
