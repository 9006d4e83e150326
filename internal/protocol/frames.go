// Package protocol defines the JSON frames exchanged with chat clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
)

// Inbound frame types.
const (
	TypeJoin    = "join"
	TypeMessage = "message"
	TypeLeave   = "leave"
	TypePing    = "ping"
)

// Outbound frame types. TypeMessage is shared with inbound.
const (
	TypeJoined     = "joined"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeLeft       = "left"
	TypePong       = "pong"
	TypeError      = "error"
)

var ErrMalformed = errors.New("malformed frame")

// Inbound is the union of every client frame; unused fields stay empty.
type Inbound struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId,omitempty"`
	Credential string `json:"credential,omitempty"`
	Content    string `json:"content,omitempty"`
}

// Decode parses one client frame. Only structural problems are errors;
// an unknown type decodes fine and is rejected by the dispatcher.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return in, nil
}

// Outbound is the envelope of every server frame.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type JoinedData struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type PresenceData struct {
	User domain.User `json:"user"`
}

func Encode(out Outbound) (core.Frame, error) {
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", out.Type, err)
	}
	return b, nil
}

func Joined(room domain.RoomID, user domain.UserID) Outbound {
	return Outbound{Type: TypeJoined, Data: JoinedData{RoomID: room, UserID: user}}
}

func UserJoined(u domain.User) Outbound {
	return Outbound{Type: TypeUserJoined, Data: PresenceData{User: u}}
}

func UserLeft(u domain.User) Outbound {
	return Outbound{Type: TypeUserLeft, Data: PresenceData{User: u}}
}

func Message(m domain.ChatMessage) Outbound {
	return Outbound{Type: TypeMessage, Data: m}
}

func Left() Outbound { return Outbound{Type: TypeLeft} }

func Pong() Outbound { return Outbound{Type: TypePong} }

func Error(reason string) Outbound {
	return Outbound{Type: TypeError, Error: reason}
}
