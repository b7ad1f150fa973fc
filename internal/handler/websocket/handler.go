package websocket

import (
	"net/http"
	"strings"

	"github.com/viki-777/colabio-backend/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader  websocket.Upgrader
	hub       *hub.Hub
	origins   map[string]bool
	anyOrigin bool
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigins 为空或包含 "*" 时允许所有来源。
func NewWebSocketHandler(h *hub.Hub, allowedOrigins []string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	handler := &WebSocketHandler{
		hub:     h,
		origins: make(map[string]bool, len(allowedOrigins)),
	}
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			handler.anyOrigin = true
		}
		if o != "" {
			handler.origins[o] = true
		}
	}
	if len(handler.origins) == 0 {
		handler.anyOrigin = true
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     handler.checkOrigin,
	}
	return handler
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.anyOrigin {
		// non-browser clients send no Origin
		return true
	}
	return h.origins[strings.TrimRight(origin, "/")]
}

// HandleConnection upgrades the request and hands the connection to the hub.
// When the Auth middleware ran, its user_id becomes the session's identity.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	authUserID := c.GetString("user_id")
	logCtx := logrus.WithFields(logrus.Fields{
		"remote_addr": c.ClientIP(),
		"user_id":     authUserID,
	})

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写入 HTTP 错误响应
		logCtx.WithError(err).Warn("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, authUserID)
	if !client.Register() {
		logCtx.Error("WS Handler: Hub unavailable, connection closed")
		return
	}
	logCtx.WithField("session_id", client.SessionID()).Info("WS Handler: Client connected")
}
