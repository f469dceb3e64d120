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

package security

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidCompletionID is returned when a completion id format is invalid
	ErrInvalidCompletionID = errors.New("invalid completion ID")

	// completionIDPattern matches ids minted by the chat surface
	completionIDPattern = regexp.MustCompile(`^chatcmpl-[0-9a-f]{1,64}$`)
)

// SanitizeLogInput removes newline characters to prevent log injection attacks
// This function should be used for all user-controlled data before logging
func SanitizeLogInput(input string) string {
	sanitized := strings.ReplaceAll(input, "\n", "")
	sanitized = strings.ReplaceAll(sanitized, "\r", "")
	return sanitized
}

// TruncateForLog sanitizes input and cuts it to at most maxRunes runes,
// marking the cut with an ellipsis.
func TruncateForLog(input string, maxRunes int) string {
	sanitized := SanitizeLogInput(input)
	if maxRunes <= 0 || utf8.RuneCountInString(sanitized) <= maxRunes {
		return sanitized
	}
	runes := []rune(sanitized)
	return string(runes[:maxRunes]) + "..."
}

// ValidateCompletionID ensures that an id taken from a URL path has the
// chatcmpl-<hex> shape before it reaches the database.
func ValidateCompletionID(id string) error {
	if id == "" {
		return ErrInvalidCompletionID
	}
	if !completionIDPattern.MatchString(id) {
		return ErrInvalidCompletionID
	}
	return nil
}
