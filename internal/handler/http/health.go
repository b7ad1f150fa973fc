package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ClientCounter reports how many websocket sessions are connected.
type ClientCounter interface {
	ConnectedClients() int
}

// HealthHandler serves the liveness endpoints.
type HealthHandler struct {
	clients ClientCounter
	now     func() time.Time
}

func NewHealthHandler(clients ClientCounter) *HealthHandler {
	if clients == nil {
		panic("ClientCounter cannot be nil for HealthHandler")
	}
	return &HealthHandler{clients: clients, now: time.Now}
}

// Root 处理 GET /
func (h *HealthHandler) Root(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{
		"message":          "Whiteboard server is running",
		"timestamp":        h.now().UTC().Format(time.RFC3339),
		"connectedClients": h.clients.ConnectedClients(),
	})
}

// Health 处理 GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{
		"status":           "Healthy",
		"timestamp":        h.now().UTC().Format(time.RFC3339),
		"connectedClients": h.clients.ConnectedClients(),
	})
}
