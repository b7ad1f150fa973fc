package service

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// PresenceService tracks which sessions (tabs) hold a logical user's presence
// in a room, so join/leave notifications fire once per user rather than once
// per session.
type PresenceService struct {
	mu    sync.RWMutex
	rooms map[string]map[string]map[string]struct{} // roomID -> userID -> sessionIDs
}

// NewPresenceService 创建空的在线状态表
func NewPresenceService() *PresenceService {
	return &PresenceService{rooms: make(map[string]map[string]map[string]struct{})}
}

// AddSession registers sessionID under userID in roomID and reports whether it
// is the user's first active session there.
func (s *PresenceService) AddSession(roomID, userID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.rooms[roomID]
	if !ok {
		users = make(map[string]map[string]struct{})
		s.rooms[roomID] = users
	}
	sessions, ok := users[userID]
	if !ok {
		sessions = make(map[string]struct{})
		users[userID] = sessions
	}
	first := len(sessions) == 0
	sessions[sessionID] = struct{}{}

	logrus.WithFields(logrus.Fields{
		"room_id":    roomID,
		"user_id":    userID,
		"session_id": sessionID,
		"sessions":   len(sessions),
	}).Debug("Presence: session added")
	return first
}

// RemoveSession drops sessionID and reports whether it was the user's last
// session in the room. Empty user and room entries are pruned.
func (s *PresenceService) RemoveSession(roomID, userID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	sessions, ok := users[userID]
	if !ok {
		return false
	}
	if _, ok := sessions[sessionID]; !ok {
		return false
	}
	delete(sessions, sessionID)
	if len(sessions) > 0 {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.rooms, roomID)
	}
	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
	}).Debug("Presence: user left room completely")
	return true
}

// SessionCount returns how many sessions the user holds in the room.
func (s *PresenceService) SessionCount(roomID, userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID][userID])
}

// Users lists the user ids present in the room, sorted.
func (s *PresenceService) Users(roomID string) []string {
	s.mu.RLock()
	users := make([]string, 0, len(s.rooms[roomID]))
	for userID := range s.rooms[roomID] {
		users = append(users, userID)
	}
	s.mu.RUnlock()
	sort.Strings(users)
	return users
}

// HasRoom reports whether any presence is recorded for the room.
func (s *PresenceService) HasRoom(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}
