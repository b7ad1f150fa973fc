// Package dto defines the JSON messages exchanged with websocket clients.
package dto

import (
	"encoding/json"
	"fmt"

	"github.com/viki-777/colabio-backend/internal/domain"
)

// Inbound event names.
const (
	EventCreateRoom   = "create_room"
	EventCheckRoom    = "check_room"
	EventJoinRoom     = "join_room"
	EventJoinedRoom   = "joined_room"
	EventLeaveRoom    = "leave_room"
	EventDraw         = "draw"
	EventDeleteStroke = "delete_stroke"
	EventUndo         = "undo"
	EventMouseMove    = "mouse_move"
	EventSendMsg      = "send_msg"
	EventSendReaction = "send_reaction"
)

// Outbound event names.
const (
	EventCreated          = "created"
	EventRoomExists       = "room_exists"
	EventJoined           = "joined"
	EventRoom             = "room"
	EventNewUser          = "new_user"
	EventUserDisconnected = "user_disconnected"
	EventYourMove         = "your_move"
	EventUserDraw         = "user_draw"
	EventUserUndo         = "user_undo"
	EventStrokeDeleted    = "stroke_deleted"
	EventMouseMoved       = "mouse_moved"
	EventNewMsg           = "new_msg"
	EventReactionReceived = "reaction_received"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event name")
	}
	return env, nil
}

// Decode unmarshals the envelope data into v. An absent payload leaves v untouched.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// --- inbound payloads ---

type CreateRoomRequest struct {
	User *domain.User `json:"user"`
}

type CheckRoomRequest struct {
	RoomID string `json:"roomId"`
}

type JoinRoomRequest struct {
	RoomID string       `json:"roomId"`
	User   *domain.User `json:"user"`
}

// IncomingMove is the client's stroke. Any id/timestamp fields are discarded.
type IncomingMove struct {
	Path    []domain.Point     `json:"path"`
	Options domain.MoveOptions `json:"options"`
}

type DrawRequest struct {
	Move IncomingMove `json:"move"`
}

type DeleteStrokeRequest struct {
	MoveID string `json:"moveId"`
}

type MouseMoveRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type SendMsgRequest struct {
	Msg string `json:"msg"`
}

// --- outbound payloads ---

type CreatedPayload struct {
	RoomID string `json:"roomId"`
}

type RoomExistsPayload struct {
	Exists bool `json:"exists"`
}

type JoinedPayload struct {
	RoomID   string `json:"roomId,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
}

// RoomPayload is the full state sent in reply to joined_room.
type RoomPayload struct {
	Room       RoomInfo              `json:"room"`
	UsersMoves []domain.SessionMoves `json:"usersMoves"`
	Users      []domain.User         `json:"users"`
}

// RoomInfo is the room record without the per-session ledger.
type RoomInfo struct {
	ID       string               `json:"id"`
	Drawn    []domain.Move        `json:"drawn"`
	Sessions []domain.SessionUser `json:"sessions"`
}

// NewRoomPayload builds the joined_room reply from a snapshot.
func NewRoomPayload(snap domain.RoomSnapshot) RoomPayload {
	return RoomPayload{
		Room: RoomInfo{
			ID:       snap.ID,
			Drawn:    snap.Drawn,
			Sessions: snap.Users,
		},
		UsersMoves: snap.UsersMoves,
		Users:      snap.UniqueUsers(),
	}
}

type NewUserPayload struct {
	UserID string      `json:"userId"`
	User   domain.User `json:"user"`
}

type UserDisconnectedPayload struct {
	UserID string `json:"userId"`
}

type YourMovePayload struct {
	Move domain.Move `json:"move"`
}

// UserDrawPayload.UserID carries the sender's session id.
type UserDrawPayload struct {
	Move   domain.Move `json:"move"`
	UserID string      `json:"userId"`
}

type UserUndoPayload struct {
	UserID string `json:"userId"`
}

type StrokeDeletedPayload struct {
	MoveID string `json:"moveId"`
}

type MouseMovedPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	UserID string  `json:"userId"`
}

type NewMsgPayload struct {
	UserID string `json:"userId"`
	Msg    string `json:"msg"`
}
