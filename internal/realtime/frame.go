package realtime

import (
	"github.com/mcoot/escaperoom/internal/api/response"
)

// Frame is a message encoded for both protocol versions, so a broadcast is
// encoded once however many clients receive it.
type Frame struct {
	current []byte
	legacy  []byte
}

// NewFrame encodes a message. legacyData replaces data for legacy clients
// when the first client expected another shape; nil means the same shape.
func NewFrame(name string, data, legacyData any) (Frame, error) {
	if legacyData == nil {
		legacyData = data
	}
	current, err := Encode(MessageName(name, false), data)
	if err != nil {
		return Frame{}, err
	}
	legacy, err := Encode(MessageName(name, true), legacyData)
	if err != nil {
		return Frame{}, err
	}
	return Frame{current: current, legacy: legacy}, nil
}

// ErrorFrame encodes an error signal
func ErrorFrame(code Code, message string) Frame {
	// ErrorData always encodes
	current, _ := Encode(ErrorName(code, false), ErrorData{Message: message})
	legacy, _ := Encode(ErrorName(code, true), nil)
	return Frame{current: current, legacy: legacy}
}

// Bytes returns the encoding for a client of the given protocol version
func (f Frame) Bytes(legacy bool) []byte {
	if legacy {
		return f.legacy
	}
	return f.current
}

// Payloads

type joinedData struct {
	Room response.Room   `json:"room"`
	Self response.Player `json:"self"`
}

type playerData struct {
	Player response.Player `json:"player"`
}

type hostChangedData struct {
	PlayerID string `json:"playerId"`
}

type sceneData struct {
	Scene string `json:"scene"`
}

type changeData struct {
	Kind string `json:"kind"`
	Data any    `json:"data,omitempty"`
}

type updateData struct {
	Room  response.Room `json:"room"`
	Event changeData    `json:"event"`
}

type gameOverData struct {
	Room   response.Room `json:"room"`
	Reason string        `json:"reason"`
}

type messageData struct {
	Message response.Message `json:"message"`
}
