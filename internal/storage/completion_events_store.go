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

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/events"
	"github.com/loqalabs/loqa-voice/internal/logging"
)

// ErrEventNotFound is returned when no completion event matches
var ErrEventNotFound = errors.New("completion event not found")

const completionEventColumns = `
	uuid, completion_id, request_id, timestamp, model, modalities,
	turns_in, turns_retained, audio_parts, audio_parts_failed,
	audio_requested, audio_attached, voice_profile, reference_audio_hash, audio_error,
	prompt_tokens, completion_tokens, processing_time_ms`

// sortColumns maps accepted sort keys to columns
var sortColumns = map[string]string{
	"timestamp":       "timestamp",
	"processing_time": "processing_time_ms",
	"prompt_tokens":   "prompt_tokens",
}

// CompletionEventsStore handles database operations for completion events
type CompletionEventsStore struct {
	db *Database
}

// NewCompletionEventsStore creates a new completion events store
func NewCompletionEventsStore(db *Database) *CompletionEventsStore {
	return &CompletionEventsStore{db: db}
}

// Record implements the completion event sink used by the chat surface
func (s *CompletionEventsStore) Record(ctx context.Context, event *events.CompletionEvent) error {
	return s.Insert(ctx, event)
}

// Insert stores a new completion event in the database
func (s *CompletionEventsStore) Insert(ctx context.Context, event *events.CompletionEvent) error {
	if err := event.IsValid(); err != nil {
		return fmt.Errorf("invalid completion event: %w", err)
	}

	modalitiesJSON, err := event.ModalitiesJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize modalities: %w", err)
	}

	query := `
		INSERT INTO completion_events (` + completionEventColumns + `
		) VALUES (
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?
		)`

	_, err = s.db.DB().ExecContext(ctx, query,
		event.UUID, event.CompletionID, event.RequestID, event.Timestamp.UTC(), event.Model, modalitiesJSON,
		event.TurnsIn, event.TurnsRetained, event.AudioParts, event.AudioPartsFailed,
		event.AudioRequested, event.AudioAttached, event.VoiceProfile, event.ReferenceAudioHash, event.AudioError,
		event.PromptTokens, event.CompletionTokens, event.ProcessingTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert completion event: %w", err)
	}

	logging.LogDatabaseOperation("insert", "completion_events",
		zap.String("completion_id", event.CompletionID),
	)
	return nil
}

// GetByCompletionID retrieves a completion event by its completion id
func (s *CompletionEventsStore) GetByCompletionID(ctx context.Context, completionID string) (*events.CompletionEvent, error) {
	query := `SELECT ` + completionEventColumns + ` FROM completion_events WHERE completion_id = ?`

	row := s.db.DB().QueryRowContext(ctx, query, completionID)
	return scanCompletionEvent(row)
}

// List retrieves completion events with pagination and filtering
func (s *CompletionEventsStore) List(ctx context.Context, options ListOptions) ([]*events.CompletionEvent, error) {
	query, args := buildListQuery(options)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	eventsList := []*events.CompletionEvent{}
	for rows.Next() {
		event, err := scanCompletionEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion event: %w", err)
		}
		eventsList = append(eventsList, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completion events: %w", err)
	}

	return eventsList, nil
}

// Count returns the total number of completion events matching the filter
func (s *CompletionEventsStore) Count(ctx context.Context, options ListOptions) (int64, error) {
	options.Limit = 0
	options.Offset = 0
	query, args := buildListQuery(options)

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS filtered"

	var count int64
	if err := s.db.DB().QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count completion events: %w", err)
	}

	return count, nil
}

// DeleteOlderThan removes events recorded before cutoff and returns how many went
func (s *CompletionEventsStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.DB().ExecContext(ctx, "DELETE FROM completion_events WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune completion events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	logging.LogDatabaseOperation("prune", "completion_events", zap.Int64("deleted", rowsAffected))
	return rowsAffected, nil
}

// ListOptions defines filtering and pagination options
type ListOptions struct {
	// Filtering
	Model         string
	VoiceProfile  string
	AudioAttached *bool // nil = all
	StartTime     *time.Time
	EndTime       *time.Time

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "timestamp", "processing_time", "prompt_tokens"
	SortOrder string // "ASC", "DESC"
}

// buildListQuery constructs the SQL query based on ListOptions
func buildListQuery(options ListOptions) (string, []interface{}) {
	query := `SELECT ` + completionEventColumns + ` FROM completion_events WHERE 1=1`

	var args []interface{}

	if options.Model != "" {
		query += " AND model = ?"
		args = append(args, options.Model)
	}

	if options.VoiceProfile != "" {
		query += " AND voice_profile = ?"
		args = append(args, options.VoiceProfile)
	}

	if options.AudioAttached != nil {
		query += " AND audio_attached = ?"
		args = append(args, *options.AudioAttached)
	}

	if options.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, options.StartTime.UTC())
	}

	if options.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, options.EndTime.UTC())
	}

	// Sort keys are whitelisted; anything else falls back to timestamp
	sortBy, ok := sortColumns[options.SortBy]
	if !ok {
		sortBy = "timestamp"
	}

	sortOrder := "DESC"
	if strings.EqualFold(options.SortOrder, "ASC") {
		sortOrder = "ASC"
	}

	query += fmt.Sprintf(" ORDER BY %s %s, uuid %s", sortBy, sortOrder, sortOrder)

	if options.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, options.Limit)

		if options.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, options.Offset)
		}
	}

	return query, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCompletionEvent scans a database row into a CompletionEvent struct
func scanCompletionEvent(row rowScanner) (*events.CompletionEvent, error) {
	var event events.CompletionEvent
	var modalitiesJSON string

	err := row.Scan(
		&event.UUID, &event.CompletionID, &event.RequestID, &event.Timestamp, &event.Model, &modalitiesJSON,
		&event.TurnsIn, &event.TurnsRetained, &event.AudioParts, &event.AudioPartsFailed,
		&event.AudioRequested, &event.AudioAttached, &event.VoiceProfile, &event.ReferenceAudioHash, &event.AudioError,
		&event.PromptTokens, &event.CompletionTokens, &event.ProcessingTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	if err := event.SetModalitiesFromJSON(modalitiesJSON); err != nil {
		return nil, fmt.Errorf("failed to parse modalities JSON: %w", err)
	}

	return &event, nil
}
