package hub

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/viki-777/colabio-backend/internal/domain"
	"github.com/viki-777/colabio-backend/internal/dto"
	"github.com/viki-777/colabio-backend/internal/metrics"
	"github.com/viki-777/colabio-backend/internal/service"
)

// Target selects who receives an Emission.
type Target int

const (
	ToSender Target = iota
	ToRoomExceptSender
	ToRoom
)

func (t Target) String() string {
	switch t {
	case ToSender:
		return "sender"
	case ToRoomExceptSender:
		return "room_except_sender"
	case ToRoom:
		return "room"
	}
	return "unknown"
}

// Emission is one outbound message and its fanout rule.
type Emission struct {
	Target   Target
	RoomID   string
	SenderID string
	Envelope dto.Envelope
}

type sessionState struct {
	authUserID string // identity verified at upgrade time; empty when auth is off
	roomID     string
	user       domain.User
}

// Router validates inbound events, applies them to the room services and
// computes fanout. It is owned by the Hub goroutine and is not safe for
// concurrent use.
type Router struct {
	rooms   *service.RoomService
	collab  *service.CollaborationService
	metrics *metrics.Metrics

	sessions  map[string]*sessionState
	members   map[string]map[string]struct{} // roomID -> sessionIDs
	// announced holds the users whose new_user has gone out in each room.
	// An entry lives until the user's last session leaves the room.
	announced map[string]map[string]struct{} // roomID -> userIDs
}

// NewRouter 创建协议路由器。metrics 可以为 nil。
func NewRouter(rooms *service.RoomService, collab *service.CollaborationService, m *metrics.Metrics) *Router {
	if rooms == nil || collab == nil {
		panic("RoomService and CollaborationService must be non-nil for Router")
	}
	return &Router{
		rooms:     rooms,
		collab:    collab,
		metrics:   m,
		sessions:  make(map[string]*sessionState),
		members:   make(map[string]map[string]struct{}),
		announced: make(map[string]map[string]struct{}),
	}
}

// Connect registers a new session that is not yet in any room.
func (r *Router) Connect(sessionID, authUserID string) {
	r.sessions[sessionID] = &sessionState{authUserID: authUserID}
}

// Disconnect runs leave cleanup for the session and forgets it.
func (r *Router) Disconnect(ctx context.Context, sessionID string) []Emission {
	out := r.leave(ctx, sessionID)
	delete(r.sessions, sessionID)
	return out
}

// RoomOf returns the room the session is currently in.
func (r *Router) RoomOf(sessionID string) (string, bool) {
	st, ok := r.sessions[sessionID]
	if !ok || st.roomID == "" {
		return "", false
	}
	return st.roomID, true
}

// Members returns the sessions currently in the room.
func (r *Router) Members(roomID string) []string {
	set := r.members[roomID]
	out := make([]string, 0, len(set))
	for sessionID := range set {
		out = append(out, sessionID)
	}
	return out
}

// Handle processes one inbound event from sessionID.
func (r *Router) Handle(ctx context.Context, sessionID string, env dto.Envelope) []Emission {
	st, ok := r.sessions[sessionID]
	if !ok {
		logrus.WithField("session_id", sessionID).Warn("Router: event from unknown session dropped")
		return nil
	}
	r.metrics.EventHandled(env.Event)
	logCtx := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"room_id":    st.roomID,
		"event":      env.Event,
	})

	switch env.Event {
	case dto.EventCreateRoom:
		return r.handleCreateRoom(ctx, sessionID, st, env, logCtx)
	case dto.EventCheckRoom:
		return r.handleCheckRoom(ctx, sessionID, env, logCtx)
	case dto.EventJoinRoom:
		return r.handleJoinRoom(ctx, sessionID, st, env, logCtx)
	case dto.EventJoinedRoom:
		return r.handleJoinedRoom(ctx, sessionID, st, logCtx)
	case dto.EventLeaveRoom:
		return r.leave(ctx, sessionID)
	case dto.EventDraw:
		return r.handleDraw(ctx, sessionID, st, env, logCtx)
	case dto.EventUndo:
		return r.handleUndo(ctx, sessionID, st, logCtx)
	case dto.EventDeleteStroke:
		return r.handleDeleteStroke(ctx, sessionID, st, env, logCtx)
	case dto.EventMouseMove:
		return r.handleMouseMove(sessionID, st, env, logCtx)
	case dto.EventSendMsg:
		return r.handleSendMsg(sessionID, st, env, logCtx)
	case dto.EventSendReaction:
		return r.handleSendReaction(sessionID, st, env)
	default:
		logCtx.Debug("Router: unknown event dropped")
		return nil
	}
}

func (r *Router) handleCreateRoom(ctx context.Context, sessionID string, st *sessionState, env dto.Envelope, logCtx *logrus.Entry) []Emission {
	var req dto.CreateRoomRequest
	if err := env.Decode(&req); err != nil {
		logCtx.WithError(err).Warn("Router: malformed create_room dropped")
		return nil
	}
	user, err := r.checkUser(st, req.User)
	if err != nil {
		logCtx.WithError(err).Warn("Router: create_room with invalid user dropped")
		return nil
	}

	out := r.leave(ctx, sessionID)
	roomID, err := r.rooms.CreateRoom(ctx, user, sessionID)
	if err != nil {
		logCtx.WithError(err).Error("Router: create_room failed")
		return out
	}
	r.enter(sessionID, st, roomID, user)
	return append(out, r.emit(ToSender, roomID, sessionID, dto.EventCreated, dto.CreatedPayload{RoomID: roomID}))
}

func (r *Router) handleCheckRoom(ctx context.Context, sessionID string, env dto.Envelope, logCtx *logrus.Entry) []Emission {
	var req dto.CheckRoomRequest
	if err := env.Decode(&req); err != nil {
		logCtx.WithError(err).Warn("Router: malformed check_room dropped")
		return nil
	}
	exists := r.rooms.CheckRoom(ctx, req.RoomID)
	return []Emission{r.emit(ToSender, "", sessionID, dto.EventRoomExists, dto.RoomExistsPayload{Exists: exists})}
}

func (r *Router) handleJoinRoom(ctx context.Context, sessionID string, st *sessionState, env dto.Envelope, logCtx *logrus.Entry) []Emission {
	var req dto.JoinRoomRequest
	if err := env.Decode(&req); err != nil {
		logCtx.WithError(err).Warn("Router: malformed join_room dropped")
		return nil
	}
	roomID := strings.TrimSpace(req.RoomID)
	user, err := r.checkUser(st, req.User)
	if err != nil || roomID == "" {
		logCtx.WithError(err).WithField("requested_room", roomID).Warn("Router: join_room rejected: invalid input")
		return []Emission{r.emit(ToSender, "", sessionID, dto.EventJoined, dto.JoinedPayload{Rejected: true})}
	}

	if st.roomID == roomID {
		return []Emission{r.emit(ToSender, roomID, sessionID, dto.EventJoined, dto.JoinedPayload{RoomID: roomID})}
	}
	// a rejected join keeps the session where it is
	if !r.rooms.HasCapacity(ctx, roomID, sessionID) {
		r.metrics.JoinRejected()
		logCtx.WithField("requested_room", roomID).Info("Router: join_room rejected: room full")
		return []Emission{r.emit(ToSender, "", sessionID, dto.EventJoined, dto.JoinedPayload{Rejected: true})}
	}
	out := r.leave(ctx, sessionID)

	res, err := r.rooms.JoinRoom(ctx, roomID, user, sessionID)
	if err != nil || !res.Accepted {
		if errors.Is(err, service.ErrRoomFull) {
			r.metrics.JoinRejected()
		} else {
			logCtx.WithError(err).Error("Router: join_room failed")
		}
		return append(out, r.emit(ToSender, "", sessionID, dto.EventJoined, dto.JoinedPayload{Rejected: true}))
	}
	r.enter(sessionID, st, res.RoomID, user)
	return append(out, r.emit(ToSender, res.RoomID, sessionID, dto.EventJoined, dto.JoinedPayload{RoomID: res.RoomID}))
}

func (r *Router) handleJoinedRoom(ctx context.Context, sessionID string, st *sessionState, logCtx *logrus.Entry) []Emission {
	if st.roomID == "" {
		return nil
	}
	snap, ok := r.rooms.Snapshot(ctx, st.roomID)
	if !ok {
		logCtx.Warn("Router: joined_room for a room that no longer exists")
		return nil
	}
	out := []Emission{r.emit(ToSender, st.roomID, sessionID, dto.EventRoom, dto.NewRoomPayload(snap))}
	if r.markAnnounced(st.roomID, st.user.ID) {
		out = append(out, r.emit(ToRoomExceptSender, st.roomID, sessionID, dto.EventNewUser,
			dto.NewUserPayload{UserID: st.user.ID, User: st.user}))
	}
	return out
}

func (r *Router) handleDraw(ctx context.Context, sessionID string, st *sessionState, env dto.Envelope, logCtx *logrus.Entry) []Emission {
	if st.roomID == "" {
		return nil
	}
	var req dto.DrawRequest
	if err := env.Decode(&req); err != nil {
		logCtx.WithError(err).Warn("Router: malformed draw dropped")
		return nil
	}
	move, err := r.collab.Draw(ctx, st.roomID, sessionID, service.MoveInput{
		Path:    req.Move.Path,
		Options: req.Move.Options,
	})
	if err != nil {
		if !service.IsBenign(err) {
			logCtx.WithError(err).Warn("Router: draw rejected")
		}
		return nil
	}
	return []Emission{
		r.emit(ToSender, st.roomID, sessionID, dto.EventYourMove, dto.YourMovePayload{Move: move}),
		r.emit(ToRoomExceptSender, st.roomID, sessionID, dto.EventUserDraw, dto.UserDrawPayload{Move: move, UserID: sessionID}),
	}
}

func (r *Router) handleUndo(ctx context.Context, sessionID string, st *sessionState, logCtx *logrus.Entry) []Emission {
	if st.roomID == "" {
		return nil
	}
	_, ok, err := r.collab.Undo(ctx, st.roomID, sessionID)
	if err != nil {
		if !service.IsBenign(err) {
			logCtx.WithError(err).Warn("Router: undo failed")
		}
		return nil
	}
	if !ok {
		return nil
	}
	return []Emission{r.emit(ToRoomExceptSender, st.roomID, sessionID, dto.EventUserUndo, dto.UserUndoPayload{UserID: sessionID})}
}

func (r *Router) handleDeleteStroke(ctx context.Context, sessionID string, st *sessionState, env dto.Envelope, logCtx *logrus.Entry) []Emission {
	if st.roomID == "" {
		return nil
	}
	var req dto.DeleteStrokeRequest
	if err := env.Decode(&req); err != nil || req.MoveID == "" {
		logCtx.WithError(err).Warn("Router: malformed delete_stroke dropped")
		return nil
	}
	if _, err := r.collab.DeleteStroke(ctx, st.roomID, req.MoveID); err != nil {
		if !service.IsBenign(err) {
			logCtx.WithError(err).Warn("Router: delete_stroke failed")
		}
		return nil
	}
	return []Emission{r.emit(ToRoom, st.roomID, sessionID, dto.EventStrokeDeleted, dto.StrokeDeletedPayload{MoveID: req.MoveID})}
}

func (r *Router) handleMouseMove(sessionID string, st *sessionState, env dto.Envelope, logCtx *logrus.Entry) []Emission {
	if st.roomID == "" {
		return nil
	}
	var req dto.MouseMoveRequest
	if err := env.Decode(&req); err != nil {
		logCtx.WithError(err).Debug("Router: malformed mouse_move dropped")
		return nil
	}
	return []Emission{r.emit(ToRoomExceptSender, st.roomID, sessionID, dto.EventMouseMoved,
		dto.MouseMovedPayload{X: req.X, Y: req.Y, UserID: sessionID})}
}

func (r *Router) handleSendMsg(sessionID string, st *sessionState, env dto.Envelope, logCtx *logrus.Entry) []Emission {
	if st.roomID == "" {
		return nil
	}
	var req dto.SendMsgRequest
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.Msg) == "" {
		logCtx.WithError(err).Debug("Router: empty or malformed send_msg dropped")
		return nil
	}
	return []Emission{r.emit(ToRoom, st.roomID, sessionID, dto.EventNewMsg, dto.NewMsgPayload{UserID: st.user.ID, Msg: req.Msg})}
}

func (r *Router) handleSendReaction(sessionID string, st *sessionState, env dto.Envelope) []Emission {
	if st.roomID == "" {
		return nil
	}
	// reaction payload is opaque to the server
	return []Emission{{
		Target:   ToRoomExceptSender,
		RoomID:   st.roomID,
		SenderID: sessionID,
		Envelope: dto.Envelope{Event: dto.EventReactionReceived, Data: env.Data},
	}}
}

// leave takes the session out of its current room, committing its moves.
func (r *Router) leave(ctx context.Context, sessionID string) []Emission {
	st, ok := r.sessions[sessionID]
	if !ok || st.roomID == "" {
		return nil
	}
	roomID := st.roomID
	st.roomID = ""
	if set, ok := r.members[roomID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.members, roomID)
		}
	}

	res := r.rooms.LeaveRoom(ctx, roomID, sessionID)
	if !res.LeftCompletely {
		return nil
	}
	if users, ok := r.announced[roomID]; ok {
		delete(users, res.User.ID)
		if len(users) == 0 {
			delete(r.announced, roomID)
		}
	}
	return []Emission{r.emit(ToRoomExceptSender, roomID, sessionID, dto.EventUserDisconnected,
		dto.UserDisconnectedPayload{UserID: res.User.ID})}
}

func (r *Router) enter(sessionID string, st *sessionState, roomID string, user domain.User) {
	st.roomID = roomID
	st.user = user
	set, ok := r.members[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.members[roomID] = set
	}
	set[sessionID] = struct{}{}
}

// markAnnounced records that userID has been announced in roomID. It returns
// false if that had already happened.
func (r *Router) markAnnounced(roomID, userID string) bool {
	users, ok := r.announced[roomID]
	if !ok {
		users = make(map[string]struct{})
		r.announced[roomID] = users
	}
	if _, done := users[userID]; done {
		return false
	}
	users[userID] = struct{}{}
	return true
}

// checkUser validates the client-supplied user against the upgrade identity.
func (r *Router) checkUser(st *sessionState, user *domain.User) (domain.User, error) {
	if !user.Valid() {
		return domain.User{}, service.ErrInvalidUser
	}
	if st.authUserID != "" && user.ID != st.authUserID {
		return domain.User{}, service.ErrInvalidUser
	}
	return *user, nil
}

func (r *Router) emit(target Target, roomID, senderID, event string, payload interface{}) Emission {
	env, err := dto.NewEnvelope(event, payload)
	if err != nil {
		// payloads are plain structs; marshal failure is a programming error
		logrus.WithError(err).WithField("event", event).Error("Router: failed to encode payload")
	}
	return Emission{Target: target, RoomID: roomID, SenderID: senderID, Envelope: env}
}
