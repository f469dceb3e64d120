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

// Package voice resolves the voice a reply is spoken in: one of the fixed
// personas, or a clone of caller-supplied reference audio.
package voice

import "strings"

// DefaultPersonaID is used when no known persona is requested
const DefaultPersonaID = "alloy"

// Kind distinguishes the two profile variants
type Kind string

const (
	KindPersona Kind = "persona"
	KindCloned  Kind = "cloned"
)

// Profile is either a Persona or a ClonedVoice. The unexported marker
// method keeps the set of variants closed to this package.
type Profile interface {
	Kind() Kind
	isProfile()
}

// Persona is a named speaking style from the catalog
type Persona struct {
	ID               string
	StyleDescription string
}

func (Persona) Kind() Kind { return KindPersona }
func (Persona) isProfile() {}

// ClonedVoice imitates the speaker of a reference recording
type ClonedVoice struct {
	ReferenceAudio []byte
}

func (ClonedVoice) Kind() Kind { return KindCloned }
func (ClonedVoice) isProfile() {}

// personas is ordered; Personas() reports ids in this order.
var personas = []Persona{
	{
		ID: "alloy",
		StyleDescription: "Speak with natural conversational warmth and genuine human connection. " +
			"Use a balanced, expressive voice with organic pacing and authentic emotional undertones.",
	},
	{
		ID: "echo",
		StyleDescription: "Speak with a clear, resonant voice that has depth and authority. " +
			"Use confident pacing with strong articulation and professional tone.",
	},
	{
		ID: "fable",
		StyleDescription: "Speak with a storytelling voice that is engaging and narrative. " +
			"Use expressive intonation with dramatic pauses and captivating delivery.",
	},
	{
		ID: "onyx",
		StyleDescription: "Speak with a deep, rich voice that conveys strength and reliability. " +
			"Use steady pacing with authoritative tone and grounded delivery.",
	},
	{
		ID: "nova",
		StyleDescription: "Speak with a bright, energetic voice that is youthful and dynamic. " +
			"Use lively pacing with enthusiastic tone and vibrant delivery.",
	},
	{
		ID: "shimmer",
		StyleDescription: "Speak with a gentle, melodic voice that is soothing and harmonious. " +
			"Use flowing pacing with soft tone and graceful delivery.",
	},
}

var personaIndex = func() map[string]Persona {
	idx := make(map[string]Persona, len(personas))
	for _, p := range personas {
		idx[p.ID] = p
	}
	return idx
}()

// Lookup returns the persona for id. Matching ignores case and
// surrounding whitespace.
func Lookup(id string) (Persona, bool) {
	p, ok := personaIndex[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// Default returns the default persona
func Default() Persona {
	return personaIndex[DefaultPersonaID]
}

// Personas lists the catalog ids
func Personas() []string {
	ids := make([]string, len(personas))
	for i, p := range personas {
		ids[i] = p.ID
	}
	return ids
}

// Resolve picks the profile for a reply. Non-empty reference audio always
// wins; otherwise the requested persona is used, falling back silently to
// the default for unknown or empty ids.
func Resolve(requestedID string, referenceAudio []byte) Profile {
	if len(referenceAudio) > 0 {
		ref := make([]byte, len(referenceAudio))
		copy(ref, referenceAudio)
		return ClonedVoice{ReferenceAudio: ref}
	}

	if p, ok := Lookup(requestedID); ok {
		return p
	}
	return Default()
}

// Describe returns a short loggable label for a profile
func Describe(p Profile) string {
	switch v := p.(type) {
	case Persona:
		return "persona:" + v.ID
	case ClonedVoice:
		return "cloned"
	default:
		return "unknown"
	}
}
