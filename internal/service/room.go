package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/viki-777/colabio-backend/internal/domain"
	"github.com/viki-777/colabio-backend/internal/repository"
)

const (
	// DefaultRoomCapacity is the session ceiling per room.
	DefaultRoomCapacity = 12

	roomCodeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength      = 4
	maxRoomCodeAttempts = 64
)

// JoinResult is the outcome of JoinRoom.
type JoinResult struct {
	Accepted bool
	RoomID   string
	// FirstSession is true when this is the user's first session in the room.
	FirstSession bool
}

// LeaveResult is the outcome of LeaveRoom.
type LeaveResult struct {
	RoomID         string
	User           domain.User
	Left           bool // false if the session was not in the room
	LeftCompletely bool // true if it was the user's last session in the room
	Committed      []domain.Move
}

// RoomService is the room registry: it owns room creation, membership and
// capacity. All room mutations, including ledger updates made through
// CollaborationService, happen under its lock.
type RoomService struct {
	mu       sync.Mutex
	roomRepo repository.RoomRepository
	presence *PresenceService
	capacity int

	now     func() time.Time
	newCode func() (string, error)
}

// NewRoomService 创建 RoomService 实例。capacity <= 0 时使用默认容量。
func NewRoomService(roomRepo repository.RoomRepository, presence *PresenceService, capacity int) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if presence == nil {
		panic("PresenceService cannot be nil for RoomService")
	}
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return &RoomService{
		roomRepo: roomRepo,
		presence: presence,
		capacity: capacity,
		now:      time.Now,
		newCode:  randomRoomCode,
	}
}

// Capacity returns the per-room session ceiling.
func (s *RoomService) Capacity() int { return s.capacity }

// CreateRoom creates a room seeded with the creator's session and returns its code.
func (s *RoomService) CreateRoom(ctx context.Context, user domain.User, sessionID string) (string, error) {
	if !user.Valid() {
		return "", ErrInvalidUser
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": user.ID, "session_id": sessionID})

	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, err := s.generateUniqueRoomCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique room code")
		return "", ErrInternalServer
	}
	logCtx = logCtx.WithField("room_id", roomID)

	room := domain.NewRoom(roomID, s.now())
	if err := s.roomRepo.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Error("Room code collided after uniqueness check")
		} else {
			logCtx.WithError(err).Error("Failed to save new room")
		}
		return "", ErrInternalServer
	}
	room.AddSession(sessionID, user)
	s.presence.AddSession(roomID, user.ID, sessionID)

	logCtx.Info("Room created")
	return roomID, nil
}

// JoinRoom adds the session to roomID, creating the room if it does not exist.
// A full room yields Accepted=false and ErrRoomFull, and is left untouched.
func (s *RoomService) JoinRoom(ctx context.Context, roomID string, user domain.User, sessionID string) (JoinResult, error) {
	if !user.Valid() {
		return JoinResult{}, ErrInvalidUser
	}
	if roomID == "" {
		return JoinResult{}, ErrRoomNotFound
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": user.ID, "session_id": sessionID})

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomRepo.FindByID(ctx, roomID)
	switch {
	case errors.Is(err, repository.ErrRoomNotFound):
		room = domain.NewRoom(roomID, s.now())
		if err := s.roomRepo.Create(ctx, room); err != nil {
			logCtx.WithError(err).Error("Failed to create room on join")
			return JoinResult{}, ErrInternalServer
		}
		logCtx.Info("Room created on first join")
	case err != nil:
		logCtx.WithError(err).Error("Failed to look up room")
		return JoinResult{}, ErrInternalServer
	}

	if room.HasSession(sessionID) {
		return JoinResult{Accepted: true, RoomID: roomID}, nil
	}
	if room.Size() >= s.capacity {
		logCtx.WithField("capacity", s.capacity).Warn("Join rejected: room full")
		return JoinResult{Accepted: false}, ErrRoomFull
	}

	room.AddSession(sessionID, user)
	first := s.presence.AddSession(roomID, user.ID, sessionID)
	logCtx.WithField("first_session", first).Info("Session joined room")
	return JoinResult{Accepted: true, RoomID: roomID, FirstSession: first}, nil
}

// HasCapacity reports whether JoinRoom would accept sessionID into roomID.
// Unknown rooms always have room; a session already in the room counts as
// accepted.
func (s *RoomService) HasCapacity(ctx context.Context, roomID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return errors.Is(err, repository.ErrRoomNotFound)
	}
	return room.HasSession(sessionID) || room.Size() < s.capacity
}

// LeaveRoom commits the session's moves to the room history and removes it
// from the roster and presence table. Unknown rooms or sessions are a no-op.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, sessionID string) LeaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return LeaveResult{RoomID: roomID}
	}
	user, ok := room.User(sessionID)
	if !ok {
		return LeaveResult{RoomID: roomID}
	}
	committed := room.Commit(sessionID)
	room.RemoveSession(sessionID, s.now())
	leftCompletely := s.presence.RemoveSession(roomID, user.ID, sessionID)

	logrus.WithFields(logrus.Fields{
		"room_id":         roomID,
		"session_id":      sessionID,
		"user_id":         user.ID,
		"committed":       len(committed),
		"left_completely": leftCompletely,
	}).Info("Session left room")

	return LeaveResult{
		RoomID:         roomID,
		User:           user,
		Left:           true,
		LeftCompletely: leftCompletely,
		Committed:      committed,
	}
}

// CheckRoom reports whether the room is present in the registry.
func (s *RoomService) CheckRoom(ctx context.Context, roomID string) bool {
	if roomID == "" {
		return false
	}
	exists, err := s.roomRepo.IsRoomIDExists(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("CheckRoom: repository error")
		return false
	}
	return exists
}

// Snapshot returns a copy of the room state.
func (s *RoomService) Snapshot(ctx context.Context, roomID string) (domain.RoomSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return domain.RoomSnapshot{}, false
	}
	return room.Snapshot(), true
}

// WithRoom runs fn on the live room under the registry lock.
func (s *RoomService) WithRoom(ctx context.Context, roomID string, fn func(room *domain.Room) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("find room %s: %w", roomID, err)
	}
	return fn(room)
}

// SweepIdle deletes rooms that have had no sessions for at least ttl and
// returns their ids.
func (s *RoomService) SweepIdle(ctx context.Context, ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.roomRepo.FindAll(ctx)
	if err != nil {
		logrus.WithError(err).Error("SweepIdle: failed to list rooms")
		return nil
	}
	now := s.now()
	var removed []string
	for _, room := range rooms {
		since := room.EmptySince()
		if room.Size() > 0 || since.IsZero() || now.Sub(since) < ttl {
			continue
		}
		if err := s.roomRepo.Delete(ctx, room.ID); err != nil {
			logrus.WithError(err).WithField("room_id", room.ID).Error("SweepIdle: failed to delete room")
			continue
		}
		removed = append(removed, room.ID)
	}
	if len(removed) > 0 {
		logrus.WithField("rooms", removed).Info("Idle rooms removed")
	}
	return removed
}

// Stats returns the number of live rooms and sessions across them.
func (s *RoomService) Stats(ctx context.Context) (rooms, sessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.roomRepo.FindAll(ctx)
	if err != nil {
		return 0, 0
	}
	for _, room := range all {
		sessions += room.Size()
	}
	return len(all), sessions
}

// generateUniqueRoomCode samples codes until one is not in the registry.
// Caller holds s.mu.
func (s *RoomService) generateUniqueRoomCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxRoomCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		exists, err := s.roomRepo.IsRoomIDExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check room code uniqueness: %w", err)
		}
		if !exists {
			logrus.WithField("room_id", code).Debugf("Generated unique room code after %d attempt(s)", attempt+1)
			return code, nil
		}
		logrus.WithField("room_id", code).Warnf("Room code already in use, retrying (attempt %d)", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room code after %d attempts", maxRoomCodeAttempts)
}

func randomRoomCode() (string, error) {
	b := make([]byte, roomCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	// len(alphabet) divides 256, so the modulo is unbiased
	for i := range b {
		b[i] = roomCodeAlphabet[int(b[i])%len(roomCodeAlphabet)]
	}
	return string(b), nil
}
