package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/viki-777/colabio-backend/internal/dto"
	"github.com/viki-777/colabio-backend/internal/metrics"
	"github.com/viki-777/colabio-backend/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Long strokes carry many points.
	maxMessageSize = 512 * 1024

	sendBufferSize = 256
)

// HubMessage is one unit of work for the hub loop.
type HubMessage struct {
	Type     string // "register", "unregister", "event"
	Client   *Client
	Envelope dto.Envelope
}

// Options tunes the hub.
type Options struct {
	// IdleRoomTTL is how long an empty room is kept. Zero keeps rooms forever.
	IdleRoomTTL time.Duration
	// SweepInterval is how often idle rooms are checked for.
	SweepInterval time.Duration
	// QueueSize is the capacity of the hub's inbound channel.
	QueueSize int
}

// Hub is the single writer for all room state. Register, unregister and
// client events are processed one at a time in arrival order, so each handler
// is atomic and messages to a room leave in the order they were processed.
type Hub struct {
	messageChan chan HubMessage
	done        chan struct{}
	stopOnce    sync.Once

	clients   map[string]*Client
	clientsMu sync.RWMutex

	router  *Router
	rooms   *service.RoomService
	metrics *metrics.Metrics
	opts    Options
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(rooms *service.RoomService, collab *service.CollaborationService, m *metrics.Metrics, opts Options) *Hub {
	if rooms == nil {
		panic("RoomService cannot be nil for Hub")
	}
	if collab == nil {
		panic("CollaborationService cannot be nil for Hub")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &Hub{
		messageChan: make(chan HubMessage, opts.QueueSize),
		done:        make(chan struct{}),
		clients:     make(map[string]*Client),
		router:      NewRouter(rooms, collab, m),
		rooms:       rooms,
		metrics:     m,
		opts:        opts,
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行。
// It returns when Stop is called.
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	sweep := time.NewTicker(h.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case msg := <-h.messageChan:
			h.process(msg)
		case <-sweep.C:
			h.sweepIdleRooms()
		case <-h.done:
			h.closeAll()
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop ends the Run loop and closes every client's send channel.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ConnectedClients returns the number of registered sessions.
func (h *Hub) ConnectedClients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// Returns false if the queue is full or the hub has stopped.
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		h.metrics.MessageDropped("hub_queue_full")
		return false
	}
}

// submit blocks until the hub accepts msg or stops. Used for client events and
// unregister, which must not be silently dropped.
func (h *Hub) submit(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	case <-h.done:
		return false
	}
}

// process handles one message. A panic in a handler is contained to that
// message.
func (h *Hub) process(msg HubMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			fields := logrus.Fields{"message_type": msg.Type, "panic": fmt.Sprint(rec)}
			if msg.Client != nil {
				fields["session_id"] = msg.Client.SessionID()
			}
			logrus.WithFields(fields).Error("Hub: recovered from handler panic")
		}
	}()

	if msg.Client == nil {
		logrus.WithField("message_type", msg.Type).Error("Hub: message without client")
		return
	}
	ctx := context.Background()
	switch msg.Type {
	case "register":
		h.registerClient(msg.Client)
	case "unregister":
		h.unregisterClient(ctx, msg.Client)
	case "event":
		if _, ok := h.lookup(msg.Client.SessionID()); !ok {
			return
		}
		emissions := h.router.Handle(ctx, msg.Client.SessionID(), msg.Envelope)
		switch msg.Envelope.Event {
		case dto.EventCreateRoom, dto.EventJoinRoom:
			// both may add a room to the registry
			h.refreshRoomGauge(ctx)
		}
		h.deliverAll(emissions)
	default:
		logrus.Warnf("Hub: received unknown message type: %s", msg.Type)
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.SessionID()] = client
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.router.Connect(client.SessionID(), client.AuthUserID())
	h.metrics.SetConnectedClients(count)
	logrus.WithFields(logrus.Fields{
		"session_id": client.SessionID(),
		"user_id":    client.AuthUserID(),
	}).Info("Client registered to Hub")
}

// unregisterClient runs the disconnect transition to completion (commit and
// presence cleanup) before forgetting the client.
func (h *Hub) unregisterClient(ctx context.Context, client *Client) {
	sessionID := client.SessionID()
	h.clientsMu.RLock()
	current, ok := h.clients[sessionID]
	h.clientsMu.RUnlock()
	if !ok || current != client {
		return
	}

	h.deliverAll(h.router.Disconnect(ctx, sessionID))

	h.clientsMu.Lock()
	delete(h.clients, sessionID)
	count := len(h.clients)
	h.clientsMu.Unlock()
	client.closeSend()

	h.metrics.SetConnectedClients(count)
	logrus.WithField("session_id", sessionID).Info("Client unregistered from Hub")
}

func (h *Hub) lookup(sessionID string) (*Client, bool) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	c, ok := h.clients[sessionID]
	return c, ok
}

func (h *Hub) deliverAll(emissions []Emission) {
	for _, e := range emissions {
		h.deliver(e)
	}
}

// deliver resolves the emission's recipients and enqueues the frame on each.
func (h *Hub) deliver(e Emission) {
	frame, err := json.Marshal(e.Envelope)
	if err != nil {
		logrus.WithError(err).WithField("event", e.Envelope.Event).Error("Hub: failed to marshal outbound message")
		return
	}

	var recipients []string
	switch e.Target {
	case ToSender:
		recipients = []string{e.SenderID}
	case ToRoomExceptSender, ToRoom:
		for _, sessionID := range h.router.Members(e.RoomID) {
			if e.Target == ToRoomExceptSender && sessionID == e.SenderID {
				continue
			}
			recipients = append(recipients, sessionID)
		}
	}

	for _, sessionID := range recipients {
		client, ok := h.lookup(sessionID)
		if !ok {
			continue
		}
		if !client.enqueue(frame) {
			h.metrics.MessageDropped("send_buffer_full")
			logrus.WithFields(logrus.Fields{
				"session_id": sessionID,
				"event":      e.Envelope.Event,
			}).Warn("Client send channel full, message dropped")
		}
	}
}

func (h *Hub) sweepIdleRooms() {
	ctx := context.Background()
	removed := h.rooms.SweepIdle(ctx, h.opts.IdleRoomTTL)
	h.metrics.RoomsSwept(len(removed))
	h.refreshRoomGauge(ctx)
}

func (h *Hub) refreshRoomGauge(ctx context.Context) {
	if h.metrics == nil {
		return
	}
	rooms, _ := h.rooms.Stats(ctx)
	h.metrics.SetRooms(rooms)
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, client := range h.clients {
		client.closeSend()
		delete(h.clients, id)
	}
	h.metrics.SetConnectedClients(0)
}
