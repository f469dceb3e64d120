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

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/events"
	"github.com/loqalabs/loqa-voice/internal/logging"
	"github.com/loqalabs/loqa-voice/internal/security"
	"github.com/loqalabs/loqa-voice/internal/storage"
)

// CompletionEventsPath is the collection route
const CompletionEventsPath = "/api/completion-events"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// EventReader is the read side of the completion events store
type EventReader interface {
	List(ctx context.Context, options storage.ListOptions) ([]*events.CompletionEvent, error)
	Count(ctx context.Context, options storage.ListOptions) (int64, error)
	GetByCompletionID(ctx context.Context, completionID string) (*events.CompletionEvent, error)
}

// CompletionEventsHandler handles HTTP requests for completion events
type CompletionEventsHandler struct {
	store EventReader
}

// NewCompletionEventsHandler creates a new completion events handler
func NewCompletionEventsHandler(store EventReader) *CompletionEventsHandler {
	return &CompletionEventsHandler{store: store}
}

// ListCompletionEventsResponse represents the response for listing completion events
type ListCompletionEventsResponse struct {
	Events     []*events.CompletionEvent `json:"events"`
	Total      int64                     `json:"total"`
	Page       int                       `json:"page"`
	PageSize   int                       `json:"page_size"`
	TotalPages int                       `json:"total_pages"`
}

// HandleCompletionEvents handles GET /api/completion-events
func (h *CompletionEventsHandler) HandleCompletionEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, ErrorTypeInvalidRequest, "Method not allowed")
		return
	}
	h.listCompletionEvents(w, r)
}

// HandleCompletionEventByID handles GET /api/completion-events/{id}
func (h *CompletionEventsHandler) HandleCompletionEventByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, ErrorTypeInvalidRequest, "Method not allowed")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, CompletionEventsPath), "/")
	if id == "" {
		h.listCompletionEvents(w, r)
		return
	}

	if err := security.ValidateCompletionID(id); err != nil {
		WriteError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, err.Error())
		return
	}

	event, err := h.store.GetByCompletionID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrEventNotFound) {
			WriteError(w, http.StatusNotFound, ErrorTypeNotFound, "Completion event not found")
			return
		}
		logging.LogError(err, "Failed to get completion event", zap.String("completion_id", id))
		WriteError(w, http.StatusInternalServerError, ErrorTypeServer, "Internal server error")
		return
	}

	WriteJSON(w, http.StatusOK, event)
}

// listCompletionEvents handles GET /api/completion-events
func (h *CompletionEventsHandler) listCompletionEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// Pagination
	page := parseIntParam(query.Get("page"), 1)
	pageSize := parseIntParam(query.Get("page_size"), defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if page < 1 {
		page = 1
	}

	// Filtering
	options := storage.ListOptions{
		Model:        query.Get("model"),
		VoiceProfile: query.Get("voice_profile"),
		Limit:        pageSize,
		Offset:       (page - 1) * pageSize,
		SortBy:       query.Get("sort_by"),
		SortOrder:    strings.ToUpper(query.Get("sort_order")),
	}

	if audioStr := query.Get("audio_attached"); audioStr != "" {
		if attached, err := strconv.ParseBool(audioStr); err == nil {
			options.AudioAttached = &attached
		}
	}

	if startTimeStr := query.Get("start_time"); startTimeStr != "" {
		if startTime, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			options.StartTime = &startTime
		}
	}
	if endTimeStr := query.Get("end_time"); endTimeStr != "" {
		if endTime, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			options.EndTime = &endTime
		}
	}

	total, err := h.store.Count(r.Context(), options)
	if err != nil {
		logging.LogError(err, "Failed to count completion events")
		WriteError(w, http.StatusInternalServerError, ErrorTypeServer, "Internal server error")
		return
	}

	eventsList, err := h.store.List(r.Context(), options)
	if err != nil {
		logging.LogError(err, "Failed to list completion events")
		WriteError(w, http.StatusInternalServerError, ErrorTypeServer, "Internal server error")
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	if logging.Logger != nil {
		logging.Logger.Debug("Completion events API request",
			zap.Int("page", page),
			zap.Int("page_size", pageSize),
			zap.Int64("total_results", total),
			zap.String("model", options.Model),
		)
	}

	WriteJSON(w, http.StatusOK, ListCompletionEventsResponse{
		Events:     eventsList,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// parseIntParam parses integer parameter with default value
func parseIntParam(param string, defaultValue int) int {
	if param == "" {
		return defaultValue
	}

	if value, err := strconv.Atoi(param); err == nil {
		return value
	}

	return defaultValue
}
