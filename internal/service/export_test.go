package service

import "time"

// SetClock replaces the time source. Used by tests.
func (s *RoomService) SetClock(now func() time.Time) { s.now = now }

// SetCodeGenerator replaces the room code generator. Used by tests.
func (s *RoomService) SetCodeGenerator(gen func() (string, error)) { s.newCode = gen }

// SetIDGenerator replaces the move id generator. Used by tests.
func (s *CollaborationService) SetIDGenerator(gen func() string) { s.newID = gen }

// SetClock replaces the time source. Used by tests.
func (s *CollaborationService) SetClock(now func() time.Time) { s.now = now }

// RandomRoomCode exposes the production code generator.
var RandomRoomCode = randomRoomCode
