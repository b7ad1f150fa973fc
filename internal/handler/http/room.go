package http

import (
	"net/http"
	"strings"

	"github.com/viki-777/colabio-backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomHandler exposes read-only room information over HTTP.
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// RoomInfoResponse 描述房间的概要信息
type RoomInfoResponse struct {
	RoomID   string `json:"roomId"`
	Sessions int    `json:"sessions"`
	Users    int    `json:"users"`
	Capacity int    `json:"capacity"`
	Strokes  int    `json:"strokes"`
}

// GetRoom 处理 GET /api/rooms/:roomId，房间不存在时返回 404。
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomId"))
	snap, ok := h.roomService.Snapshot(c.Request.Context(), roomID)
	if !ok {
		logrus.WithField("room_id", roomID).Debug("Handler.GetRoom: Room not found")
		HandleServiceError(c, service.ErrRoomNotFound)
		return
	}

	strokes := len(snap.Drawn)
	for _, sm := range snap.UsersMoves {
		strokes += len(sm.Moves)
	}
	SuccessResponse(c, http.StatusOK, RoomInfoResponse{
		RoomID:   snap.ID,
		Sessions: len(snap.Users),
		Users:    len(snap.UniqueUsers()),
		Capacity: h.roomService.Capacity(),
		Strokes:  strokes,
	})
}
