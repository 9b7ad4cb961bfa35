// Package realtime carries the room protocol over websockets: intents from
// clients, room events to every connection in a room.
package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/services/enigma"
)

// Envelope is one frame on the wire
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Intents sent by clients
const (
	IntentJoin        = "room.join"
	IntentLeave       = "room.leave"
	IntentChatSend    = "chat.send"
	IntentStart       = "game.start"
	IntentChangeScene = "game.changeScene"
	IntentMove        = "enigma.move"
	IntentSwapSlots   = "enigma.swapSlots"
	IntentSubmit      = "enigma.submit"
	IntentUpdate      = "enigma.update"
	IntentReset       = "enigma.reset"
)

// Messages sent by the server
const (
	MsgJoined             = "room.joined"
	MsgNewPlayer          = "room.newPlayer"
	MsgPlayerDisconnected = "room.playerDisconnected"
	MsgPlayerLeft         = "room.playerLeft"
	MsgReconnected        = "room.reconnected"
	MsgHostChanged        = "room.hostChanged"
	MsgGameStarted        = "game.started"
	MsgSceneChanged       = "game.sceneChanged"
	MsgGameUpdate         = "game.update"
	MsgGameOver           = "game.over"
	MsgChatMessage        = "chat.newMessage"
)

// Code is a client-visible error. Errors are sent with the code as the
// message type.
type Code string

const (
	CodeRoomFull           Code = "room.full"
	CodeRoomNotFound       Code = "room.notFound"
	CodeNotAuthorized      Code = "room.notAuthorized"
	CodeInvalidSceneChange Code = "room.invalidSceneChange"
	CodeValidation         Code = "error.validation"
	CodeNotFound           Code = "error.notFound"
	CodeInternal           Code = "error.internal"
	CodeUnknown            Code = "error.unknown"
)

// CodeFor maps an error returned by the services to the code sent to the
// client. Anything outside the domain taxonomy is internal.
func CodeFor(err error) Code {
	switch {
	case errors.Is(err, model.ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, model.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, model.ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, model.ErrInvalidSceneChange):
		return CodeInvalidSceneChange
	case errors.Is(err, model.ErrValidationFailed), errors.Is(err, model.ErrGameAlreadyStarted):
		return CodeValidation
	case errors.Is(err, model.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// ErrorData is the payload of an error message
type ErrorData struct {
	Message string `json:"message,omitempty"`
}

// Compatibility with the first browser client, which used colon-separated
// names and one intent per puzzle. Every renamed name lives here.

type legacyIntent struct {
	name   string
	enigma model.EnigmaID
}

var legacyIntents = map[string]legacyIntent{
	"room:join":          {name: IntentJoin},
	"room:leave":         {name: IntentLeave},
	"chat:send-message":  {name: IntentChatSend},
	"game:start":         {name: IntentStart},
	"game:change-scene":  {name: IntentChangeScene},
	"enigma1:move":       {name: IntentMove, enigma: model.Enigma1},
	"enigma1:swap-slots": {name: IntentSwapSlots, enigma: model.Enigma1},
	"enigma1:submit":     {name: IntentSubmit, enigma: model.Enigma1},
	"enigma2:update":     {name: IntentUpdate, enigma: model.Enigma2},
	"enigma2:reset":      {name: IntentReset, enigma: model.Enigma2},
	"enigma2:submit":     {name: IntentSubmit, enigma: model.Enigma2},
	"enigma3:update":     {name: IntentUpdate, enigma: model.Enigma3},
	"enigma3:reset":      {name: IntentReset, enigma: model.Enigma3},
	"enigma3:submit":     {name: IntentSubmit, enigma: model.Enigma3},
	"enigma4:update":     {name: IntentUpdate, enigma: model.Enigma4},
	"enigma4:reset":      {name: IntentReset, enigma: model.Enigma4},
	"enigma4:submit":     {name: IntentSubmit, enigma: model.Enigma4},
}

var legacyMessages = map[string]string{
	MsgJoined:             "room:joined",
	MsgNewPlayer:          "room:new-player",
	MsgPlayerDisconnected: "room:player-disconnected",
	MsgPlayerLeft:         "room:player-left",
	MsgReconnected:        "room:reconnected",
	MsgHostChanged:        "room:host-changed",
	MsgGameStarted:        "game:started",
	MsgSceneChanged:       "game:scene-changed",
	MsgGameUpdate:         "game:update",
	MsgGameOver:           "game:over",
	MsgChatMessage:        "chat:new-message",
}

var legacyErrors = map[Code]string{
	CodeRoomFull:           "room:full",
	CodeRoomNotFound:       "room:not-found",
	CodeNotAuthorized:      "error:not-authorized",
	CodeInvalidSceneChange: "error:invalid-scene-change",
	CodeValidation:         "error:validation",
	CodeNotFound:           "error:no-found",
	CodeInternal:           "error:internal",
	CodeUnknown:            "error:unknown",
}

// errorSynonyms maps every error name any server version has sent to its code
var errorSynonyms = map[string]Code{
	"errors:full":                CodeRoomFull,
	"error:full":                 CodeRoomFull,
	"room:full":                  CodeRoomFull,
	"error:not-found":            CodeRoomNotFound,
	"room:not-found":             CodeRoomNotFound,
	"error:no-found":             CodeNotFound,
	"error:not-authorized":       CodeNotAuthorized,
	"room:not-authorized":        CodeNotAuthorized,
	"error:invalid-scene-change": CodeInvalidSceneChange,
	"room:invalid-scene-change":  CodeInvalidSceneChange,
	"error:validation":           CodeValidation,
	"error:internal":             CodeInternal,
}

func init() {
	for _, code := range []Code{
		CodeRoomFull, CodeRoomNotFound, CodeNotAuthorized, CodeInvalidSceneChange,
		CodeValidation, CodeNotFound, CodeInternal, CodeUnknown,
	} {
		errorSynonyms[string(code)] = code
	}
}

// IsError reports whether a message type names an error, in any naming
func IsError(messageType string) bool {
	_, ok := errorSynonyms[messageType]
	return ok
}

// NormalizeError maps an error message type, current or historical, to its
// code. Unrecognized names map to CodeUnknown.
func NormalizeError(messageType string) Code {
	if code, ok := errorSynonyms[messageType]; ok {
		return code
	}
	return CodeUnknown
}

// MessageName returns the name a message is sent under
func MessageName(name string, legacy bool) string {
	if legacy {
		if old, ok := legacyMessages[name]; ok {
			return old
		}
	}
	return name
}

// ErrorName returns the name an error is sent under
func ErrorName(code Code, legacy bool) string {
	if legacy {
		if old, ok := legacyErrors[code]; ok {
			return old
		}
	}
	return string(code)
}

// CanonicalMessage maps a server message name from any protocol version to
// its current name
func CanonicalMessage(name string) string {
	for current, old := range legacyMessages {
		if old == name {
			return current
		}
	}
	return name
}

// Intent is a decoded client request in canonical form
type Intent struct {
	Type   string
	Enigma model.EnigmaID // empty targets the puzzle on the player's scene

	Code   model.RoomCode
	Pseudo string
	Text   string
	Scene  model.Scene
	Patch  enigma.Patch
}

// intentPayload accepts the fields of every intent, including the names
// used by the first client
type intentPayload struct {
	Code   string            `json:"code"`
	Pseudo string            `json:"pseudo"`
	Text   string            `json:"text"`
	Scene  string            `json:"scene"`
	Enigma string            `json:"enigma"`
	Items  []enigma.MoveItem `json:"items"`
	A      string            `json:"a"`
	B      string            `json:"b"`
	Index  *int              `json:"index"`
	Value  *string           `json:"value"`

	Slot1    string  `json:"slot1"`
	Slot2    string  `json:"slot2"`
	Lighting *string `json:"lighting"`
	Role     *string `json:"role"`
	Ambiance *string `json:"ambiance"`
}

// DecodeIntent resolves the intent name through the compatibility table and
// decodes its payload. It reports whether the legacy naming was used.
func DecodeIntent(env Envelope) (Intent, bool, error) {
	name, target, legacy := env.Type, model.EnigmaID(""), false
	if old, ok := legacyIntents[env.Type]; ok {
		name, target, legacy = old.name, old.enigma, true
	}

	intent := Intent{Type: name, Enigma: target}
	var p intentPayload

	data := bytes.TrimSpace(env.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case name == IntentMove && data[0] == '[':
		// The first client sent moves as a bare list
		if err := json.Unmarshal(data, &p.Items); err != nil {
			return intent, legacy, fmt.Errorf("%w: %s payload: %v", model.ErrValidationFailed, env.Type, err)
		}
	default:
		if err := json.Unmarshal(data, &p); err != nil {
			return intent, legacy, fmt.Errorf("%w: %s payload: %v", model.ErrValidationFailed, env.Type, err)
		}
	}

	if p.Enigma != "" {
		intent.Enigma = model.EnigmaID(p.Enigma)
	}

	switch name {
	case IntentJoin:
		if p.Code == "" || p.Pseudo == "" {
			return intent, legacy, fmt.Errorf("%w: join needs a code and a pseudo", model.ErrValidationFailed)
		}
		intent.Code = model.RoomCode(strings.ToUpper(strings.TrimSpace(p.Code)))
		intent.Pseudo = p.Pseudo
	case IntentChatSend:
		intent.Text = p.Text
	case IntentChangeScene:
		if p.Scene == "" {
			return intent, legacy, fmt.Errorf("%w: scene change needs a scene", model.ErrValidationFailed)
		}
		intent.Scene = model.Scene(p.Scene)
	case IntentMove:
		intent.Patch = enigma.Patch{Op: enigma.OpMove, Items: p.Items}
	case IntentSwapSlots:
		a, b := firstNonEmpty(p.A, p.Slot1), firstNonEmpty(p.B, p.Slot2)
		if a == "" || b == "" {
			return intent, legacy, fmt.Errorf("%w: swap needs two items", model.ErrValidationFailed)
		}
		intent.Patch = enigma.Patch{Op: enigma.OpSwap, A: a, B: b}
	case IntentUpdate:
		index := -1
		if p.Index != nil {
			index = *p.Index
		}
		value := p.Value
		for _, alias := range []*string{p.Lighting, p.Role, p.Ambiance} {
			if value == nil {
				value = alias
			}
		}
		intent.Patch = enigma.Patch{Op: enigma.OpUpdate, Index: index, Value: value}
		// The first client's ambiance screen reused the enigma3 intent name
		if legacy && target == model.Enigma3 && p.Role == nil && p.Ambiance != nil {
			intent.Enigma = model.Enigma4
		}
	case IntentLeave, IntentStart, IntentSubmit, IntentReset:
	default:
		return intent, legacy, fmt.Errorf("%w: unknown intent %q", model.ErrValidationFailed, env.Type)
	}
	return intent, legacy, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Encode builds a frame
func Encode(messageType string, data any) ([]byte, error) {
	env := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: messageType, Data: data}
	return json.Marshal(env)
}
