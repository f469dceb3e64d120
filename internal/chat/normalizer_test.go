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

package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voice/internal/audio"
)

type fakeSTT struct {
	text  string
	err   error
	calls [][]byte
}

func (f *fakeSTT) Transcribe(ctx context.Context, audioData []byte) (string, error) {
	f.calls = append(f.calls, audioData)
	return f.text, f.err
}

func audioPart(data []byte, format string) Part {
	return Part{Kind: PartAudio, EncodedAudio: audio.Encode(data), Format: format}
}

func TestNormalize_PlainText(t *testing.T) {
	n := NewNormalizer(&fakeSTT{}, 0)

	got, stats := n.Normalize(context.Background(), []Turn{
		{Role: "system", Content: TextContent("You are helpful.")},
		{Role: "user", Content: TextContent("  Hi there ")},
	})

	assert.Equal(t, []NormalizedTurn{
		{Role: "system", Text: "You are helpful."},
		{Role: "user", Text: "  Hi there "},
	}, got)
	assert.Equal(t, 2, stats.TurnsRetained)
	assert.Equal(t, 0, stats.TurnsDropped())
}

func TestNormalize_DropsEmptyTurnsAndKeepsOrder(t *testing.T) {
	n := NewNormalizer(&fakeSTT{}, 0)

	got, stats := n.Normalize(context.Background(), []Turn{
		{Role: "user", Content: TextContent("first")},
		{Role: "assistant", Content: TextContent("   ")},
		{Role: "user", Content: MixedContent()},
		{Role: "assistant", Content: MixedContent(Part{Kind: PartText, Text: " "})},
		{Role: "user", Content: TextContent("last")},
	})

	assert.Equal(t, []NormalizedTurn{
		{Role: "user", Text: "first"},
		{Role: "user", Text: "last"},
	}, got)
	assert.Equal(t, 5, stats.TurnsIn)
	assert.Equal(t, 3, stats.TurnsDropped())
}

func TestNormalize_MissingRoleDefaultsToUser(t *testing.T) {
	got, _ := NewNormalizer(&fakeSTT{}, 0).Normalize(context.Background(), []Turn{
		{Content: TextContent("hello")},
	})
	require.Len(t, got, 1)
	assert.Equal(t, RoleUser, got[0].Role)
}

func TestNormalize_TranscribesAudioInOrder(t *testing.T) {
	stt := &fakeSTT{text: "turn on the lights"}
	n := NewNormalizer(stt, 0)

	wav, err := audio.ToContainer([]float32{0, 0.1}, 16000)
	require.NoError(t, err)

	got, stats := n.Normalize(context.Background(), []Turn{{
		Role: "user",
		Content: MixedContent(
			Part{Kind: PartText, Text: "Please"},
			audioPart(wav, "wav"),
			Part{Kind: PartText, Text: "now."},
		),
	}})

	require.Len(t, got, 1)
	assert.Equal(t, "Please turn on the lights now.", got[0].Text)
	assert.Equal(t, 1, stats.AudioParts)
	assert.Equal(t, 0, stats.AudioPartsFailed)
	require.Len(t, stt.calls, 1)
	assert.Equal(t, wav, stt.calls[0])
}

func TestNormalize_ConvertsRawFormatsBeforeTranscription(t *testing.T) {
	stt := &fakeSTT{text: "ok"}
	n := NewNormalizer(stt, 0)

	_, _ = n.Normalize(context.Background(), []Turn{{
		Role:    "user",
		Content: MixedContent(audioPart([]byte{0, 0, 1, 0}, audio.FormatPCM16)),
	}})

	require.Len(t, stt.calls, 1)
	assert.True(t, audio.IsWAV(stt.calls[0]), "pcm16 input should be wrapped in a WAV container")
}

func TestNormalize_BadAudioKeepsSiblingText(t *testing.T) {
	tests := []struct {
		name string
		stt  *fakeSTT
		part Part
	}{
		{
			name: "Malformed base64",
			stt:  &fakeSTT{text: "unused"},
			part: Part{Kind: PartAudio, EncodedAudio: "!!!not base64!!!", Format: "wav"},
		},
		{
			name: "Transcription failure",
			stt:  &fakeSTT{err: errors.New("recognizer down")},
			part: audioPart([]byte("RIFF"), "wav"),
		},
		{
			name: "Unconvertible pcm16",
			stt:  &fakeSTT{text: "unused"},
			part: audioPart([]byte{1, 2, 3}, audio.FormatPCM16),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stats := NewNormalizer(tt.stt, 0).Normalize(context.Background(), []Turn{{
				Role:    "user",
				Content: MixedContent(Part{Kind: PartText, Text: "hello"}, tt.part),
			}})

			require.Len(t, got, 1)
			assert.Equal(t, "hello "+AudioPlaceholder, got[0].Text)
			assert.Equal(t, 1, stats.AudioPartsFailed)
		})
	}
}

func TestNormalize_AudioOnlyFailureKeepsPlaceholderTurn(t *testing.T) {
	got, _ := NewNormalizer(&fakeSTT{err: errors.New("boom")}, 0).Normalize(context.Background(), []Turn{{
		Role:    "user",
		Content: MixedContent(audioPart([]byte("RIFF"), "wav")),
	}})

	require.Len(t, got, 1)
	assert.Equal(t, AudioPlaceholder, got[0].Text)
}

func TestNormalize_SkipsEmptyAudioParts(t *testing.T) {
	stt := &fakeSTT{text: "unused"}
	got, stats := NewNormalizer(stt, 0).Normalize(context.Background(), []Turn{{
		Role: "user",
		Content: MixedContent(
			Part{Kind: PartText, Text: "just text"},
			Part{Kind: PartAudio, EncodedAudio: "", Format: "wav"},
		),
	}})

	require.Len(t, got, 1)
	assert.Equal(t, "just text", got[0].Text)
	assert.Equal(t, 0, stats.AudioParts)
	assert.Empty(t, stt.calls)
}

func TestNormalize_AudioSizeLimit(t *testing.T) {
	stt := &fakeSTT{text: "unused"}
	got, stats := NewNormalizer(stt, 4).Normalize(context.Background(), []Turn{{
		Role:    "user",
		Content: MixedContent(audioPart(make([]byte, 64), "wav")),
	}})

	require.Len(t, got, 1)
	assert.Equal(t, AudioPlaceholder, got[0].Text)
	assert.Equal(t, 1, stats.AudioPartsFailed)
	assert.Empty(t, stt.calls)
}
