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

// Package chat turns a multimodal conversation into a reply: it flattens
// turns to text, asks the generation backend for an answer and optionally
// speaks that answer.
package chat

// Roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PartKind identifies the payload of a content part
type PartKind string

const (
	PartText  PartKind = "text"
	PartAudio PartKind = "input_audio"
)

// Part is one element of mixed content
type Part struct {
	Kind         PartKind
	Text         string
	EncodedAudio string // base64, optionally with a data URL prefix
	Format       string // input audio format, e.g. "wav" or "pcm16"
}

// Content is either plain text or an ordered list of parts
type Content struct {
	Text  string
	Parts []Part
	Mixed bool
}

// TextContent returns plain text content
func TextContent(text string) Content {
	return Content{Text: text}
}

// MixedContent returns content made of parts
func MixedContent(parts ...Part) Content {
	return Content{Parts: parts, Mixed: true}
}

// Turn is one inbound conversation entry
type Turn struct {
	Role    string
	Content Content
}

// NormalizedTurn is a turn flattened to text
type NormalizedTurn struct {
	Role string `json:"role"`
	Text string `json:"content"`
}

// ReplyAudio is the spoken rendition of a reply
type ReplyAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// Reply is the assistant message sent back to the caller
type Reply struct {
	Role  string      `json:"role"`
	Text  string      `json:"content"`
	Audio *ReplyAudio `json:"audio,omitempty"`
}
