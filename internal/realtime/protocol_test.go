package realtime

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/services/enigma"
)

func envelope(name, data string) Envelope {
	env := Envelope{Type: name}
	if data != "" {
		env.Data = json.RawMessage(data)
	}
	return env
}

func strPtr(s string) *string { return &s }

func TestDecodeIntent(t *testing.T) {
	tests := []struct {
		name   string
		env    Envelope
		want   Intent
		legacy bool
	}{
		{
			name: "join",
			env:  envelope("room.join", `{"code":" ab12c3 ","pseudo":"alice"}`),
			want: Intent{Type: IntentJoin, Code: "AB12C3", Pseudo: "alice"},
		},
		{
			name:   "legacy join",
			env:    envelope("room:join", `{"code":"AB12C3","pseudo":"alice"}`),
			want:   Intent{Type: IntentJoin, Code: "AB12C3", Pseudo: "alice"},
			legacy: true,
		},
		{
			name: "leave without payload",
			env:  envelope("room.leave", ""),
			want: Intent{Type: IntentLeave},
		},
		{
			name:   "legacy chat",
			env:    envelope("chat:send-message", `{"text":"hello"}`),
			want:   Intent{Type: IntentChatSend, Text: "hello"},
			legacy: true,
		},
		{
			name: "scene change",
			env:  envelope("game.changeScene", `{"scene":"enigma2"}`),
			want: Intent{Type: IntentChangeScene, Scene: model.SceneEnigma2},
		},
		{
			name: "move",
			env:  envelope("enigma.move", `{"items":[{"key":"image1","x":0.5,"y":-0.5}]}`),
			want: Intent{Type: IntentMove, Patch: enigma.Patch{
				Op:    enigma.OpMove,
				Items: []enigma.MoveItem{{Key: "image1", X: 0.5, Y: -0.5}},
			}},
		},
		{
			name: "legacy move as a bare list",
			env:  envelope("enigma1:move", `[{"key":"image2","x":1,"y":0}]`),
			want: Intent{Type: IntentMove, Enigma: model.Enigma1, Patch: enigma.Patch{
				Op:    enigma.OpMove,
				Items: []enigma.MoveItem{{Key: "image2", X: 1, Y: 0}},
			}},
			legacy: true,
		},
		{
			name: "swap",
			env:  envelope("enigma.swapSlots", `{"a":"image1","b":"image4"}`),
			want: Intent{Type: IntentSwapSlots, Patch: enigma.Patch{Op: enigma.OpSwap, A: "image1", B: "image4"}},
		},
		{
			name:   "legacy swap",
			env:    envelope("enigma1:swap-slots", `{"slot1":"image1","slot2":"image4"}`),
			want:   Intent{Type: IntentSwapSlots, Enigma: model.Enigma1, Patch: enigma.Patch{Op: enigma.OpSwap, A: "image1", B: "image4"}},
			legacy: true,
		},
		{
			name: "update with explicit enigma",
			env:  envelope("enigma.update", `{"enigma":"enigma3","index":2,"value":"rose"}`),
			want: Intent{Type: IntentUpdate, Enigma: model.Enigma3, Patch: enigma.Patch{Op: enigma.OpUpdate, Index: 2, Value: strPtr("rose")}},
		},
		{
			name: "update without index",
			env:  envelope("enigma.update", `{"value":"calm"}`),
			want: Intent{Type: IntentUpdate, Patch: enigma.Patch{Op: enigma.OpUpdate, Index: -1, Value: strPtr("calm")}},
		},
		{
			name:   "legacy lighting",
			env:    envelope("enigma2:update", `{"index":0,"lighting":"High-key"}`),
			want:   Intent{Type: IntentUpdate, Enigma: model.Enigma2, Patch: enigma.Patch{Op: enigma.OpUpdate, Index: 0, Value: strPtr("High-key")}},
			legacy: true,
		},
		{
			name:   "legacy role",
			env:    envelope("enigma3:update", `{"index":1,"role":"molly"}`),
			want:   Intent{Type: IntentUpdate, Enigma: model.Enigma3, Patch: enigma.Patch{Op: enigma.OpUpdate, Index: 1, Value: strPtr("molly")}},
			legacy: true,
		},
		{
			name:   "legacy ambiance sent under the roles name",
			env:    envelope("enigma3:update", `{"ambiance":"storm"}`),
			want:   Intent{Type: IntentUpdate, Enigma: model.Enigma4, Patch: enigma.Patch{Op: enigma.OpUpdate, Index: -1, Value: strPtr("storm")}},
			legacy: true,
		},
		{
			name: "update clearing a slot",
			env:  envelope("enigma.update", `{"index":1,"value":null}`),
			want: Intent{Type: IntentUpdate, Patch: enigma.Patch{Op: enigma.OpUpdate, Index: 1}},
		},
		{
			name:   "legacy submit",
			env:    envelope("enigma2:submit", ""),
			want:   Intent{Type: IntentSubmit, Enigma: model.Enigma2},
			legacy: true,
		},
		{
			name:   "legacy reset",
			env:    envelope("enigma4:reset", "null"),
			want:   Intent{Type: IntentReset, Enigma: model.Enigma4},
			legacy: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, legacy, err := DecodeIntent(tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.legacy, legacy)
		})
	}
}

func TestDecodeIntentErrors(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"unknown intent", envelope("room.explode", "")},
		{"join without pseudo", envelope("room.join", `{"code":"AB12C3"}`)},
		{"join without code", envelope("room.join", `{"pseudo":"alice"}`)},
		{"scene change without scene", envelope("game.changeScene", `{}`)},
		{"swap with one item", envelope("enigma.swapSlots", `{"a":"image1"}`)},
		{"malformed payload", envelope("chat.send", `{"text":42}`)},
		{"malformed move list", envelope("enigma.move", `[{"key":1}]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeIntent(tt.env)
			assert.ErrorIs(t, err, model.ErrValidationFailed)
		})
	}
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{model.ErrRoomFull, CodeRoomFull},
		{model.ErrRoomNotFound, CodeRoomNotFound},
		{model.ErrNotAuthorized, CodeNotAuthorized},
		{model.ErrInvalidSceneChange, CodeInvalidSceneChange},
		{fmt.Errorf("%w: text too long", model.ErrValidationFailed), CodeValidation},
		{model.ErrGameAlreadyStarted, CodeValidation},
		{fmt.Errorf("%w: player gone", model.ErrNotFound), CodeNotFound},
		{model.ErrVersionConflict, CodeInternal},
		{fmt.Errorf("connection refused"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, CodeFor(tt.err))
		})
	}
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		want Code
	}{
		{"errors:full", CodeRoomFull},
		{"error:full", CodeRoomFull},
		{"room:full", CodeRoomFull},
		{"room.full", CodeRoomFull},
		{"error:not-found", CodeRoomNotFound},
		{"room:not-found", CodeRoomNotFound},
		{"error:no-found", CodeNotFound},
		{"error.notFound", CodeNotFound},
		{"error:not-authorized", CodeNotAuthorized},
		{"room.invalidSceneChange", CodeInvalidSceneChange},
		{"error:something-new", CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeError(tt.name))
		})
	}

	assert.True(t, IsError("room:full"))
	assert.False(t, IsError("room:joined"))
}

func TestNamesRoundTrip(t *testing.T) {
	for current := range legacyMessages {
		legacy := MessageName(current, true)
		assert.NotEqual(t, current, legacy)
		assert.Equal(t, current, CanonicalMessage(legacy))
		assert.Equal(t, current, MessageName(current, false))
	}

	for code := range legacyErrors {
		assert.Equal(t, code, NormalizeError(ErrorName(code, true)))
		assert.Equal(t, code, NormalizeError(ErrorName(code, false)))
	}
}

func TestErrorFrame(t *testing.T) {
	frame := ErrorFrame(CodeRoomFull, "room is full")

	name, data := decode(t, frame.Bytes(false))
	assert.Equal(t, "room.full", name)
	assert.Equal(t, "room is full", data["message"])

	name, data = decode(t, frame.Bytes(true))
	assert.Equal(t, "room:full", name)
	assert.Nil(t, data)
}
