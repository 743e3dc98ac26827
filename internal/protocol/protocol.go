// Package protocol defines the JSON frames exchanged over a chat connection.
//
// Every frame is a single JSON object with a "type" field. Requests are
// decoded into one concrete type per frame type and validated before they
// reach the chat engine; responses share the Frame envelope.
package protocol

import (
	"encoding/json"
	"time"
)

// Request frame types.
const (
	TypeRegister   = "register"
	TypeMessage    = "message"
	TypeCreateRoom = "create_room"
	TypeJoinRoom   = "join_room"
	TypeLeaveRoom  = "leave_room"
	TypeListRooms  = "list_rooms"
	TypeListUsers  = "list_users"
	TypeHistory    = "history"
)

// Response frame types. Broadcast chat messages reuse TypeMessage and
// history replies reuse TypeHistory.
const (
	TypeRegistered  = "registered"
	TypeRoomCreated = "room_created"
	TypeRoomJoined  = "room_joined"
	TypeRoomLeft    = "room_left"
	TypeRoomList    = "room_list"
	TypeUserList    = "user_list"
	TypeError       = "error"
)

// Frame is the envelope of every server-to-client frame.
type Frame struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// RegisteredData is the payload of a registered frame.
type RegisteredData struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connected_at"`
}

// RoomLeftData is the payload of a room_left frame.
type RoomLeftData struct {
	Name string `json:"name"`
}

// Encode builds a frame of type typ carrying data.
func Encode(typ string, data any) ([]byte, error) {
	return json.Marshal(Frame{Type: typ, Data: data})
}

// EncodeError builds an error frame.
func EncodeError(message string) []byte {
	b, err := json.Marshal(Frame{Type: TypeError, Message: message})
	if err != nil {
		return []byte(`{"type":"error","message":"internal server error"}`)
	}
	return b
}
