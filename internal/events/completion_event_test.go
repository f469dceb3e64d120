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

package events

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewCompletionEvent(t *testing.T) {
	ev := NewCompletionEvent("chatcmpl-abc", "req-1", "gpt-4o-audio-preview")

	if ev.UUID == "" {
		t.Error("UUID should be generated")
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if ev.GetCompletionID() != "chatcmpl-abc" {
		t.Errorf("GetCompletionID() = %q", ev.GetCompletionID())
	}
	if err := ev.IsValid(); err != nil {
		t.Errorf("IsValid() error = %v", err)
	}

	other := NewCompletionEvent("chatcmpl-abc", "req-1", "m")
	if other.UUID == ev.UUID {
		t.Error("UUIDs should be unique")
	}
}

func TestCompletionEvent_Setters(t *testing.T) {
	ev := NewCompletionEvent("chatcmpl-abc", "req-1", "m")
	ev.Timestamp = time.Now().Add(-25 * time.Millisecond)

	ev.SetConversation(3, 2, 1, 1)
	ev.SetAudioOutcome(true, false, "persona:nova", errors.New("backend down"))
	ev.SetReferenceAudio([]byte("RIFF"))
	ev.SetUsage(40, 12)

	if ev.TurnsIn != 3 || ev.TurnsRetained != 2 || ev.AudioParts != 1 || ev.AudioPartsFailed != 1 {
		t.Errorf("conversation counters = %+v", ev)
	}
	if ev.AudioError != "backend down" {
		t.Errorf("AudioError = %q", ev.AudioError)
	}
	if len(ev.ReferenceAudioHash) != 64 {
		t.Errorf("ReferenceAudioHash = %q, want sha256 hex", ev.ReferenceAudioHash)
	}
	if ev.TotalTokens() != 52 {
		t.Errorf("TotalTokens() = %d, want 52", ev.TotalTokens())
	}
	if ev.ProcessingTime < 25 {
		t.Errorf("ProcessingTime = %d, want >= 25", ev.ProcessingTime)
	}

	ev.SetReferenceAudio(nil)
	if ev.ReferenceAudioHash != "" {
		t.Error("empty reference should clear the hash")
	}
}

func TestCompletionEvent_ModalitiesJSON(t *testing.T) {
	ev := NewCompletionEvent("chatcmpl-abc", "", "m")
	ev.Modalities = []string{"text", "audio"}

	data, err := ev.ModalitiesJSON()
	if err != nil {
		t.Fatalf("ModalitiesJSON() error = %v", err)
	}
	if data != `["text","audio"]` {
		t.Errorf("ModalitiesJSON() = %s", data)
	}

	restored := NewCompletionEvent("chatcmpl-abc", "", "m")
	if err := restored.SetModalitiesFromJSON(data); err != nil {
		t.Fatalf("SetModalitiesFromJSON() error = %v", err)
	}
	if strings.Join(restored.Modalities, ",") != "text,audio" {
		t.Errorf("Modalities = %v", restored.Modalities)
	}

	if err := restored.SetModalitiesFromJSON("{not json"); err == nil {
		t.Error("SetModalitiesFromJSON() expected error")
	}
	if err := restored.SetModalitiesFromJSON(""); err != nil || len(restored.Modalities) != 0 {
		t.Errorf("empty JSON should reset modalities, got %v, %v", restored.Modalities, err)
	}
}

func TestCompletionEvent_IsValid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(ev *CompletionEvent)
		wantErr string
	}{
		{name: "Missing UUID", mutate: func(ev *CompletionEvent) { ev.UUID = "" }, wantErr: "UUID"},
		{name: "Missing completion id", mutate: func(ev *CompletionEvent) { ev.CompletionID = "" }, wantErr: "completionID"},
		{name: "Zero timestamp", mutate: func(ev *CompletionEvent) { ev.Timestamp = time.Time{} }, wantErr: "timestamp"},
		{name: "Retained exceeds inbound", mutate: func(ev *CompletionEvent) { ev.SetConversation(1, 2, 0, 0) }, wantErr: "retained"},
		{name: "Failed exceeds parts", mutate: func(ev *CompletionEvent) { ev.SetConversation(1, 1, 1, 2) }, wantErr: "failed audio"},
		{name: "Unrequested audio", mutate: func(ev *CompletionEvent) { ev.SetAudioOutcome(false, true, "", nil) }, wantErr: "attached"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := NewCompletionEvent("chatcmpl-abc", "req", "m")
			tt.mutate(ev)
			err := ev.IsValid()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("IsValid() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
