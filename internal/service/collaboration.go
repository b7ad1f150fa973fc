package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/viki-777/colabio-backend/internal/domain"
)

// DefaultMaxSessionMoves bounds a session's uncommitted (undoable) history.
const DefaultMaxSessionMoves = 500

// MoveInput is the client-supplied part of a stroke. Any id or timestamp the
// client sends is ignored.
type MoveInput struct {
	Path    []domain.Point
	Options domain.MoveOptions
}

// CollaborationService 负责处理实时的白板协作逻辑：绘制、撤销、删除笔画。
type CollaborationService struct {
	rooms           *RoomService
	maxSessionMoves int

	now   func() time.Time
	newID func() string
}

// NewCollaborationService 创建 CollaborationService 实例。
// maxSessionMoves <= 0 disables the per-session history cap.
func NewCollaborationService(rooms *RoomService, maxSessionMoves int) *CollaborationService {
	if rooms == nil {
		panic("RoomService cannot be nil for CollaborationService")
	}
	return &CollaborationService{
		rooms:           rooms,
		maxSessionMoves: maxSessionMoves,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// Draw stamps the input with a server id and timestamp and appends it to the
// session's uncommitted moves.
func (s *CollaborationService) Draw(ctx context.Context, roomID, sessionID string, input MoveInput) (domain.Move, error) {
	if len(input.Path) == 0 {
		return domain.Move{}, ErrInvalidAction
	}
	move := domain.Move{
		ID:        s.newID(),
		Path:      append([]domain.Point(nil), input.Path...),
		Options:   input.Options,
		Timestamp: s.now().UnixMilli(),
	}

	err := s.rooms.WithRoom(ctx, roomID, func(room *domain.Room) error {
		if !room.Append(sessionID, move, s.maxSessionMoves) {
			return ErrSessionNotInRoom
		}
		return nil
	})
	if err != nil {
		return domain.Move{}, err
	}
	logrus.WithFields(logrus.Fields{
		"room_id":    roomID,
		"session_id": sessionID,
		"move_id":    move.ID,
		"points":     len(move.Path),
	}).Debug("Move appended")
	return move, nil
}

// Undo pops the session's most recent uncommitted move. ok is false when there
// was nothing to undo.
func (s *CollaborationService) Undo(ctx context.Context, roomID, sessionID string) (undone domain.Move, ok bool, err error) {
	err = s.rooms.WithRoom(ctx, roomID, func(room *domain.Room) error {
		if !room.HasSession(sessionID) {
			return ErrSessionNotInRoom
		}
		undone, ok = room.UndoLast(sessionID)
		return nil
	})
	return undone, ok, err
}

// DeleteStroke removes the move with moveID from whichever tier holds it.
func (s *CollaborationService) DeleteStroke(ctx context.Context, roomID, moveID string) (bool, error) {
	if moveID == "" {
		return false, ErrInvalidAction
	}
	var deleted bool
	err := s.rooms.WithRoom(ctx, roomID, func(room *domain.Room) error {
		deleted = room.DeleteByID(moveID)
		return nil
	})
	return deleted, err
}
