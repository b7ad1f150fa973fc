package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/viki-777/colabio-backend/internal/dto"
)

// Ephemeral events are rate limited per client; ledger events never are.
const (
	ephemeralRate  = rate.Limit(60)
	ephemeralBurst = 30
)

var ephemeralEvents = map[string]bool{
	dto.EventMouseMove:    true,
	dto.EventSendMsg:      true,
	dto.EventSendReaction: true,
}

// Client 代表一个连接到 Hub 的 WebSocket 会话（一个浏览器标签页）。
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	sessionID  string
	authUserID string
	send       chan []byte
	limiter    *rate.Limiter
	closeOnce  sync.Once
}

// NewClient creates a client with a fresh session id. authUserID is the
// identity verified at upgrade time, or empty when authentication is off.
func NewClient(hub *Hub, conn *websocket.Conn, authUserID string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		sessionID:  uuid.NewString(),
		authUserID: authUserID,
		send:       make(chan []byte, sendBufferSize),
		limiter:    rate.NewLimiter(ephemeralRate, ephemeralBurst),
	}
}

func (c *Client) SessionID() string  { return c.sessionID }
func (c *Client) AuthUserID() string { return c.authUserID }
func (c *Client) CloseConn()         { c.conn.Close() }

// Register queues the client with the hub and starts its pumps. It returns
// false if the hub could not accept it; the connection is closed in that case.
func (c *Client) Register() bool {
	if !c.hub.QueueMessage(HubMessage{Type: "register", Client: c}) {
		c.conn.Close()
		return false
	}
	go c.WritePump()
	go c.ReadPump()
	return true
}

// enqueue is called from the hub goroutine only.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend is called from the hub goroutine only.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub。
// On exit it always hands the hub an unregister so disconnect cleanup runs.
func (c *Client) ReadPump() {
	logCtx := logrus.WithField("session_id", c.sessionID)
	defer func() {
		c.hub.submit(HubMessage{Type: "unregister", Client: c})
		c.conn.Close()
		logCtx.Debug("readPump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Ignoring non-text message type: %d", messageType)
			continue
		}

		env, err := dto.DecodeEnvelope(message)
		if err != nil {
			logCtx.WithError(err).Warn("Dropping malformed frame")
			continue
		}
		if ephemeralEvents[env.Event] && !c.limiter.Allow() {
			c.hub.metrics.MessageDropped("rate_limited")
			continue
		}
		if !c.hub.submit(HubMessage{Type: "event", Client: c, Envelope: env}) {
			return
		}
	}
}

// WritePump 将消息从 send 通道泵送到 WebSocket 连接，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	logCtx := logrus.WithField("session_id", c.sessionID)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Debug("Failed to send ping")
				return
			}
		}
	}
}
