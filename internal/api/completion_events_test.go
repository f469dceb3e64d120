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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voice/internal/events"
	"github.com/loqalabs/loqa-voice/internal/storage"
)

type fakeReader struct {
	events   []*events.CompletionEvent
	lastOpts storage.ListOptions
	err      error
}

func (f *fakeReader) List(_ context.Context, options storage.ListOptions) ([]*events.CompletionEvent, error) {
	f.lastOpts = options
	if f.err != nil {
		return nil, f.err
	}
	end := options.Offset + options.Limit
	if end > len(f.events) {
		end = len(f.events)
	}
	if options.Offset >= end {
		return []*events.CompletionEvent{}, nil
	}
	return f.events[options.Offset:end], nil
}

func (f *fakeReader) Count(_ context.Context, _ storage.ListOptions) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.events)), nil
}

func (f *fakeReader) GetByCompletionID(_ context.Context, id string) (*events.CompletionEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, ev := range f.events {
		if ev.CompletionID == id {
			return ev, nil
		}
	}
	return nil, storage.ErrEventNotFound
}

func seededReader(n int) *fakeReader {
	reader := &fakeReader{}
	for i := 0; i < n; i++ {
		ev := events.NewCompletionEvent("chatcmpl-"+string(rune('a'+i)), "req", "gpt-4o-audio-preview")
		reader.events = append(reader.events, ev)
	}
	return reader
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestListCompletionEvents_Pagination(t *testing.T) {
	reader := seededReader(5)
	h := NewCompletionEventsHandler(reader)

	req := httptest.NewRequest(http.MethodGet, "/api/completion-events?page=2&page_size=2&model=openai&audio_attached=true&start_time=2025-01-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.HandleCompletionEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ListCompletionEventsResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.PageSize)
	assert.Equal(t, 3, resp.TotalPages)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "chatcmpl-c", resp.Events[0].CompletionID)

	assert.Equal(t, "openai", reader.lastOpts.Model)
	require.NotNil(t, reader.lastOpts.AudioAttached)
	assert.True(t, *reader.lastOpts.AudioAttached)
	require.NotNil(t, reader.lastOpts.StartTime)
	assert.True(t, reader.lastOpts.StartTime.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestListCompletionEvents_ClampsPageSize(t *testing.T) {
	reader := seededReader(1)
	h := NewCompletionEventsHandler(reader)

	rec := httptest.NewRecorder()
	h.HandleCompletionEvents(rec, httptest.NewRequest(http.MethodGet, "/api/completion-events?page_size=1000&page=-3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxPageSize, reader.lastOpts.Limit)
	assert.Equal(t, 0, reader.lastOpts.Offset)
}

func TestListCompletionEvents_StoreError(t *testing.T) {
	h := NewCompletionEventsHandler(&fakeReader{err: errors.New("disk full")})

	rec := httptest.NewRecorder()
	h.HandleCompletionEvents(rec, httptest.NewRequest(http.MethodGet, "/api/completion-events", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrorTypeServer, decodeError(t, rec).Error.Type)
}

func TestHandleCompletionEvents_MethodNotAllowed(t *testing.T) {
	h := NewCompletionEventsHandler(seededReader(0))

	rec := httptest.NewRecorder()
	h.HandleCompletionEvents(rec, httptest.NewRequest(http.MethodPost, "/api/completion-events", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, ErrorTypeInvalidRequest, decodeError(t, rec).Error.Type)
}

func TestHandleCompletionEventByID(t *testing.T) {
	h := NewCompletionEventsHandler(seededReader(2))

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantType string
	}{
		{name: "found", path: "/api/completion-events/chatcmpl-b", wantCode: http.StatusOK},
		{name: "missing", path: "/api/completion-events/chatcmpl-ff", wantCode: http.StatusNotFound, wantType: ErrorTypeNotFound},
		{name: "invalid id", path: "/api/completion-events/drop-table", wantCode: http.StatusBadRequest, wantType: ErrorTypeInvalidRequest},
		{name: "trailing slash lists", path: "/api/completion-events/", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleCompletionEventByID(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, decodeError(t, rec).Error.Type)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, ErrorTypeInvalidRequest, "Missing required 'messages' parameter")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t,
		`{"error":{"message":"Missing required 'messages' parameter","type":"invalid_request_error"}}`,
		rec.Body.String())
}

func TestParseIntParam(t *testing.T) {
	assert.Equal(t, 7, parseIntParam("", 7))
	assert.Equal(t, 3, parseIntParam("3", 7))
	assert.Equal(t, 7, parseIntParam("three", 7))
}
