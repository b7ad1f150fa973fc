package service

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrInvalidUser      = errors.New("invalid user: id and name are required")
	ErrInvalidAction    = errors.New("invalid action data")
	ErrSessionNotInRoom = errors.New("session is not a member of the room")
	ErrInternalServer   = errors.New("internal server error")
)

// IsBenign reports whether err is a not-found condition the protocol layer
// swallows, since disconnect races make them routine.
func IsBenign(err error) bool {
	return errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrSessionNotInRoom)
}
