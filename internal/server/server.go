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

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/api"
	"github.com/loqalabs/loqa-voice/internal/chat"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/events"
	"github.com/loqalabs/loqa-voice/internal/logging"
	"github.com/loqalabs/loqa-voice/internal/voice"
)

// ChatCompletionsPath is the OpenAI-compatible completion route
const ChatCompletionsPath = "/v1/chat/completions"

// Composer produces the reply for a conversation
type Composer interface {
	Compose(ctx context.Context, req chat.ComposeRequest) *chat.Composition
}

// EventSink receives an audit record for every served completion
type EventSink interface {
	Record(ctx context.Context, event *events.CompletionEvent) error
}

// Dependencies are the collaborators the server is built from
type Dependencies struct {
	Composer Composer
	Events   api.EventReader // optional; enables /api/completion-events
	Sinks    []EventSink
}

// Server is the HTTP surface of the voice gateway
type Server struct {
	cfg      *config.Config
	mux      *http.ServeMux
	server   *http.Server
	composer Composer
	events   api.EventReader
	sinks    []EventSink
}

// New creates a new server
func New(cfg *config.Config, deps Dependencies) *Server {
	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		composer: deps.Composer,
		events:   deps.Events,
		sinks:    deps.Sinks,
	}

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.routes()
	return s
}

// Handler returns the routed handler wrapped in middleware
func (s *Server) Handler() http.Handler {
	return requestID(accessLog(recoverer(s.mux)))
}

// Start serves until Stop is called
func (s *Server) Start() error {
	if logging.Logger != nil {
		logging.Logger.Info("Loqa voice gateway starting",
			zap.String("addr", s.server.Addr),
			zap.Bool("completion_events_api", s.events != nil),
			zap.Int("event_sinks", len(s.sinks)),
		)
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if logging.Logger != nil {
		logging.Logger.Info("Loqa voice gateway shut down")
	}
	return nil
}

// routes sets up HTTP routing
func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleNotFound)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc(ChatCompletionsPath, s.handleChatCompletions)

	if s.events != nil {
		h := api.NewCompletionEventsHandler(s.events)
		s.mux.HandleFunc(api.CompletionEventsPath, h.HandleCompletionEvents)
		s.mux.HandleFunc(api.CompletionEventsPath+"/", h.HandleCompletionEventByID)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	api.WriteError(w, http.StatusNotFound, api.ErrorTypeNotFound, "Endpoint not found")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodHead)
		api.WriteError(w, http.StatusMethodNotAllowed, api.ErrorTypeInvalidRequest, "Method not allowed")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChatCompletions serves POST /v1/chat/completions
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		api.WriteError(w, http.StatusMethodNotAllowed, api.ErrorTypeInvalidRequest, "Method not allowed")
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.WriteError(w, http.StatusRequestEntityTooLarge, api.ErrorTypeInvalidRequest, "Request body too large")
			return
		}
		api.WriteError(w, http.StatusBadRequest, api.ErrorTypeInvalidRequest, "Could not read request body")
		return
	}

	req, err := decodeCompletionRequest(body)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorTypeInvalidRequest, err.Error())
		return
	}

	turns, err := req.turns()
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorTypeInvalidRequest, err.Error())
		return
	}

	ctx := r.Context()
	// backends must finish before the connection's write deadline
	if budget := s.cfg.Server.WriteTimeout - config.WriteReserve; budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	completionID := newCompletionID()
	event := events.NewCompletionEvent(completionID, logging.RequestID(ctx), req.Model)
	event.Modalities = req.Modalities

	composeReq := chat.ComposeRequest{Turns: turns, WantAudio: req.wantsAudio()}
	if req.Audio != nil {
		composeReq.VoiceID = req.Audio.Voice
		composeReq.ReferenceAudio = req.Audio.Data
	}

	comp := s.composer.Compose(ctx, composeReq)

	promptTokens, err := promptTokenCount(comp.Normalized)
	if err != nil {
		logging.LogError(err, "Failed to encode normalized conversation")
		api.WriteError(w, http.StatusInternalServerError, api.ErrorTypeServer, err.Error())
		return
	}
	completionTokens := utf8.RuneCountInString(comp.Reply.Text)

	resp := completionResponse{
		ID:      completionID,
		Object:  completionObject,
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []choice{{
			Index:        0,
			Message:      comp.Reply,
			FinishReason: finishReasonStop,
		}},
		Usage: usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}

	event.SetConversation(comp.Stats.TurnsIn, comp.Stats.TurnsRetained, comp.Stats.AudioParts, comp.Stats.AudioPartsFailed)
	profileLabel := ""
	if comp.Profile != nil {
		profileLabel = voice.Describe(comp.Profile)
		if cloned, ok := comp.Profile.(voice.ClonedVoice); ok {
			event.SetReferenceAudio(cloned.ReferenceAudio)
		}
	}
	event.SetAudioOutcome(comp.Audio.Requested, comp.Audio.Attached, profileLabel, comp.Audio.Err)
	event.SetUsage(promptTokens, completionTokens)

	s.record(context.WithoutCancel(ctx), event)

	logging.LogCompletion(event, "Chat completion served",
		zap.String("request_id", event.RequestID),
		zap.String("model", event.Model),
		zap.Int("turns_retained", event.TurnsRetained),
		zap.Bool("audio_attached", event.AudioAttached),
		zap.Int64("processing_time_ms", event.ProcessingTime),
	)

	api.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	reader := r.Body
	if s.cfg.Server.MaxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

// record hands the event to every sink. Sink failures never affect the reply.
func (s *Server) record(ctx context.Context, event *events.CompletionEvent) {
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, event); err != nil {
			logging.LogWarn("Failed to record completion event",
				zap.String("completion_id", event.CompletionID),
				zap.Error(err),
			)
		}
	}
}

// promptTokenCount approximates prompt tokens as the length of the JSON
// encoded conversation
func promptTokenCount(turns []chat.NormalizedTurn) (int, error) {
	if turns == nil {
		turns = []chat.NormalizedTurn{}
	}
	data, err := sonic.Marshal(turns)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func newCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
