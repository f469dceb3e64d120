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

package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/events"
	"github.com/loqalabs/loqa-voice/internal/logging"
)

// DefaultSubject carries completion audit events
const DefaultSubject = "loqa.chat.completions"

// ErrNotConnected is returned when publishing before Connect
var ErrNotConnected = errors.New("NATS connection not established")

// natsConn is the subset of *nats.Conn the service uses
type natsConn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Close()
}

// NATSService publishes completion events to NATS
type NATSService struct {
	conn    natsConn
	url     string
	subject string
	opts    []nats.Option
}

// CompletionMessage is the payload published for each completion
type CompletionMessage struct {
	Type  string                  `json:"type"`
	Event *events.CompletionEvent `json:"event"`
}

// NewNATSService creates a new NATS service instance
func NewNATSService(cfg config.NATSConfig) *NATSService {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	return &NATSService{
		url:     cfg.URL,
		subject: subject,
		opts: []nats.Option{
			nats.Name("loqa-voice"),
			nats.ReconnectWait(cfg.ReconnectWait),
			nats.MaxReconnects(cfg.MaxReconnect),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logging.LogWarn("NATS disconnected", zap.Error(err))
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logging.LogNATSEvent(subject, "reconnected", zap.String("url", nc.ConnectedUrl()))
			}),
			nats.ClosedHandler(func(_ *nats.Conn) {
				logging.LogNATSEvent(subject, "closed")
			}),
		},
	}
}

// Connect establishes connection to NATS server
func (ns *NATSService) Connect() error {
	conn, err := nats.Connect(ns.url, ns.opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ns.conn = conn
	logging.LogNATSEvent(ns.subject, "connected", zap.String("url", conn.ConnectedUrl()))
	return nil
}

// Subject returns the subject completion events are published on
func (ns *NATSService) Subject() string {
	return ns.subject
}

// Record publishes a completion event. It satisfies the same sink contract
// as the SQLite store so the server can fan out to both.
func (ns *NATSService) Record(_ context.Context, event *events.CompletionEvent) error {
	if ns.conn == nil {
		return ErrNotConnected
	}

	data, err := sonic.Marshal(CompletionMessage{Type: "chat.completion", Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	if err := ns.conn.Publish(ns.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", ns.subject, err)
	}

	logging.LogNATSEvent(ns.subject, "published",
		zap.String("completion_id", event.CompletionID),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Close closes the NATS connection
func (ns *NATSService) Close() {
	if ns.conn != nil {
		ns.conn.Close()
		ns.conn = nil
	}
}

// IsConnected returns true if connected to NATS
func (ns *NATSService) IsConnected() bool {
	return ns.conn != nil && ns.conn.IsConnected()
}

