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
	"net/http"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voice/internal/logging"
)

// Error types reported in the envelope
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeNotFound       = "not_found_error"
	ErrorTypeServer         = "server_error"
)

// ErrorBody is the inner object of an error envelope
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorResponse wraps errors as {"error":{"message":...,"type":...}}
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteJSON encodes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		logging.LogError(err, "Failed to encode response body")
		status = http.StatusInternalServerError
		data = []byte(`{"error":{"message":"Internal server error","type":"server_error"}}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.LogWarn("Failed to write response body", zap.Error(err))
	}
}

// WriteError writes an error envelope
func WriteError(w http.ResponseWriter, status int, errType, message string) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{Message: message, Type: errType}})
}
