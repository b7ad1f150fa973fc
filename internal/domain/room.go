package domain

import "time"

// Room is one collaborative drawing space.
//
// Every session key in users has a matching (possibly empty) entry in
// sessionMoves. Room is not safe for concurrent use; callers serialize access.
type Room struct {
	ID           string
	Drawn        []Move
	sessionMoves map[string][]Move
	users        map[string]User
	sessionOrder []string  // 加入顺序，用于稳定的快照输出
	emptySince   time.Time // 最后一个 session 离开的时间；非空房间为零值
}

// NewRoom creates an empty room.
func NewRoom(id string, now time.Time) *Room {
	return &Room{
		ID:           id,
		Drawn:        make([]Move, 0),
		sessionMoves: make(map[string][]Move),
		users:        make(map[string]User),
		emptySince:   now,
	}
}

// Size is the number of sessions currently in the room.
func (r *Room) Size() int { return len(r.users) }

// HasSession reports whether the session is a current member.
func (r *Room) HasSession(sessionID string) bool {
	_, ok := r.users[sessionID]
	return ok
}

// User returns the user a member session acts as.
func (r *Room) User(sessionID string) (User, bool) {
	u, ok := r.users[sessionID]
	return u, ok
}

// AddSession registers a session with an empty uncommitted move list.
// Re-adding an existing session keeps its moves.
func (r *Room) AddSession(sessionID string, user User) {
	if _, ok := r.users[sessionID]; !ok {
		r.sessionOrder = append(r.sessionOrder, sessionID)
	}
	r.users[sessionID] = user
	if _, ok := r.sessionMoves[sessionID]; !ok {
		r.sessionMoves[sessionID] = make([]Move, 0)
	}
	r.emptySince = time.Time{}
}

// RemoveSession drops a session from the roster. Its uncommitted moves must be
// committed beforehand; any left over are committed here so none are lost.
func (r *Room) RemoveSession(sessionID string, now time.Time) (User, bool) {
	u, ok := r.users[sessionID]
	if !ok {
		return User{}, false
	}
	r.Commit(sessionID)
	delete(r.users, sessionID)
	for i, id := range r.sessionOrder {
		if id == sessionID {
			r.sessionOrder = append(r.sessionOrder[:i], r.sessionOrder[i+1:]...)
			break
		}
	}
	if len(r.users) == 0 {
		r.emptySince = now
	}
	return u, true
}

// EmptySince returns when the room last became empty, or the zero time while
// sessions are present.
func (r *Room) EmptySince() time.Time { return r.emptySince }

// Append pushes move onto the session's uncommitted stack. It is a no-op for
// sessions that are not members. When limit > 0 and the stack is already at
// limit, the oldest uncommitted move is committed first.
func (r *Room) Append(sessionID string, move Move, limit int) bool {
	moves, ok := r.sessionMoves[sessionID]
	if !ok || !r.HasSession(sessionID) {
		return false
	}
	if limit > 0 && len(moves) >= limit {
		overflow := len(moves) - limit + 1
		r.Drawn = append(r.Drawn, moves[:overflow]...)
		moves = append(moves[:0:0], moves[overflow:]...)
	}
	r.sessionMoves[sessionID] = append(moves, move)
	return true
}

// UndoLast pops the session's most recent uncommitted move.
func (r *Room) UndoLast(sessionID string) (Move, bool) {
	moves := r.sessionMoves[sessionID]
	if len(moves) == 0 {
		return Move{}, false
	}
	last := moves[len(moves)-1]
	r.sessionMoves[sessionID] = moves[:len(moves)-1]
	return last, true
}

// DeleteByID removes the first move with the given id, searching the
// committed list before every session's uncommitted list.
func (r *Room) DeleteByID(moveID string) bool {
	if i := indexOfMove(r.Drawn, moveID); i >= 0 {
		r.Drawn = append(r.Drawn[:i], r.Drawn[i+1:]...)
		return true
	}
	for _, sessionID := range r.sessionOrder {
		moves := r.sessionMoves[sessionID]
		if i := indexOfMove(moves, moveID); i >= 0 {
			r.sessionMoves[sessionID] = append(moves[:i], moves[i+1:]...)
			return true
		}
	}
	return false
}

// Commit migrates the session's uncommitted moves, in order, to the end of
// Drawn and removes the session's ledger entry.
func (r *Room) Commit(sessionID string) []Move {
	moves, ok := r.sessionMoves[sessionID]
	if !ok {
		return nil
	}
	delete(r.sessionMoves, sessionID)
	r.Drawn = append(r.Drawn, moves...)
	return moves
}

// SessionMoves returns a copy of the session's uncommitted moves.
func (r *Room) SessionMoves(sessionID string) ([]Move, bool) {
	moves, ok := r.sessionMoves[sessionID]
	if !ok {
		return nil, false
	}
	return append([]Move(nil), moves...), true
}

// Snapshot copies the room into a value that is safe to hand to other goroutines.
func (r *Room) Snapshot() RoomSnapshot {
	snap := RoomSnapshot{
		ID:         r.ID,
		Drawn:      append([]Move{}, r.Drawn...),
		UsersMoves: make([]SessionMoves, 0, len(r.sessionOrder)),
		Users:      make([]SessionUser, 0, len(r.sessionOrder)),
	}
	for _, sessionID := range r.sessionOrder {
		snap.UsersMoves = append(snap.UsersMoves, SessionMoves{
			SessionID: sessionID,
			Moves:     append([]Move{}, r.sessionMoves[sessionID]...),
		})
		snap.Users = append(snap.Users, SessionUser{SessionID: sessionID, User: r.users[sessionID]})
	}
	return snap
}

func indexOfMove(moves []Move, moveID string) int {
	for i := range moves {
		if moves[i].ID == moveID {
			return i
		}
	}
	return -1
}

// RoomSnapshot is a read-only copy of a room's state.
type RoomSnapshot struct {
	ID         string         `json:"id"`
	Drawn      []Move         `json:"drawn"`
	UsersMoves []SessionMoves `json:"usersMoves"`
	Users      []SessionUser  `json:"users"`
}

// SessionMoves pairs a session with its uncommitted moves.
type SessionMoves struct {
	SessionID string `json:"sessionId"`
	Moves     []Move `json:"moves"`
}

// SessionUser pairs a session with the user it acts as.
type SessionUser struct {
	SessionID string `json:"sessionId"`
	User      User   `json:"user"`
}

// UniqueUsers returns one entry per logical user, in first-seen order.
func (s RoomSnapshot) UniqueUsers() []User {
	seen := make(map[string]struct{}, len(s.Users))
	out := make([]User, 0, len(s.Users))
	for _, su := range s.Users {
		if _, ok := seen[su.User.ID]; ok {
			continue
		}
		seen[su.User.ID] = struct{}{}
		out = append(out, su.User)
	}
	return out
}
