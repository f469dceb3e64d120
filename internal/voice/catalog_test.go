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

package voice

import (
	"reflect"
	"testing"
)

func TestResolve_KnownPersonas(t *testing.T) {
	for _, id := range []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"} {
		t.Run(id, func(t *testing.T) {
			p, ok := Resolve(id, nil).(Persona)
			if !ok {
				t.Fatalf("Resolve(%q) did not return a Persona", id)
			}
			if p.ID != id {
				t.Errorf("ID = %q, want %q", p.ID, id)
			}
			if p.StyleDescription == "" {
				t.Error("StyleDescription is empty")
			}
		})
	}
}

func TestResolve_UnknownFallsBackToDefault(t *testing.T) {
	for _, id := range []string{"", "af_bella", "ALLOYX", "verse", "  "} {
		t.Run(id, func(t *testing.T) {
			got := Resolve(id, nil)
			if !reflect.DeepEqual(got, Default()) {
				t.Errorf("Resolve(%q) = %#v, want default persona", id, got)
			}
			if got.(Persona).ID != DefaultPersonaID {
				t.Errorf("ID = %q, want %q", got.(Persona).ID, DefaultPersonaID)
			}
		})
	}
}

func TestResolve_CaseInsensitive(t *testing.T) {
	p := Resolve(" Nova ", nil).(Persona)
	if p.ID != "nova" {
		t.Errorf("ID = %q, want nova", p.ID)
	}
}

func TestResolve_ReferenceAudioWins(t *testing.T) {
	ref := []byte("RIFF....WAVE")

	for _, id := range []string{"", "nova", "unknown"} {
		got := Resolve(id, ref)
		cloned, ok := got.(ClonedVoice)
		if !ok {
			t.Fatalf("Resolve(%q, ref) = %T, want ClonedVoice", id, got)
		}
		if string(cloned.ReferenceAudio) != string(ref) {
			t.Errorf("ReferenceAudio = %q, want %q", cloned.ReferenceAudio, ref)
		}
		if got.Kind() != KindCloned {
			t.Errorf("Kind() = %q, want %q", got.Kind(), KindCloned)
		}
	}
}

func TestResolve_EmptyReferenceIgnored(t *testing.T) {
	got := Resolve("echo", []byte{})
	if got.Kind() != KindPersona {
		t.Fatalf("Kind() = %q, want persona", got.Kind())
	}
}

func TestResolve_Idempotent(t *testing.T) {
	ref := []byte{1, 2, 3}
	inputs := []struct {
		id  string
		ref []byte
	}{
		{"nova", nil},
		{"bogus", nil},
		{"echo", ref},
	}

	for _, in := range inputs {
		first := Resolve(in.id, in.ref)
		second := Resolve(in.id, in.ref)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Resolve(%q) not idempotent: %#v vs %#v", in.id, first, second)
		}
	}
}

func TestResolve_CopiesReference(t *testing.T) {
	ref := []byte{1, 2, 3}
	cloned := Resolve("", ref).(ClonedVoice)
	ref[0] = 9
	if cloned.ReferenceAudio[0] != 1 {
		t.Error("ClonedVoice shares the caller's buffer")
	}
}

func TestPersonas(t *testing.T) {
	want := []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
	if got := Personas(); !reflect.DeepEqual(got, want) {
		t.Errorf("Personas() = %v, want %v", got, want)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(Resolve("onyx", nil)); got != "persona:onyx" {
		t.Errorf("Describe() = %q", got)
	}
	if got := Describe(Resolve("", []byte{1})); got != "cloned" {
		t.Errorf("Describe() = %q", got)
	}
}
