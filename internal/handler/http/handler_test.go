package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viki-777/colabio-backend/internal/domain"
	httpHandler "github.com/viki-777/colabio-backend/internal/handler/http"
	"github.com/viki-777/colabio-backend/internal/infra/memory"
	"github.com/viki-777/colabio-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedCounter int

func (n fixedCounter) ConnectedClients() int { return int(n) }

func doGet(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealthHandler(t *testing.T) {
	h := httpHandler.NewHealthHandler(fixedCounter(3))
	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	w, body := doGet(t, r, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, float64(3), body["connectedClients"])

	w, body = doGet(t, r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Healthy", body["status"])
	assert.Equal(t, float64(3), body["connectedClients"])
}

func TestNewHealthHandler_PanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { httpHandler.NewHealthHandler(nil) })
}

func TestRoomHandler_GetRoom(t *testing.T) {
	ctx := context.Background()
	rooms := service.NewRoomService(memory.NewRoomRepository(), service.NewPresenceService(), 0)
	alice := domain.User{ID: "alice", Name: "Alice"}
	_, err := rooms.JoinRoom(ctx, "ROOM", alice, "tab-1")
	require.NoError(t, err)
	_, err = rooms.JoinRoom(ctx, "ROOM", alice, "tab-2")
	require.NoError(t, err)
	_, err = service.NewCollaborationService(rooms, 0).Draw(ctx, "ROOM", "tab-1", service.MoveInput{Path: []domain.Point{{X: 1}}})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/api/rooms/:roomId", httpHandler.NewRoomHandler(rooms).GetRoom)

	w, body := doGet(t, r, "/api/rooms/ROOM")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ROOM", body["roomId"])
	assert.Equal(t, float64(2), body["sessions"])
	assert.Equal(t, float64(1), body["users"])
	assert.Equal(t, float64(service.DefaultRoomCapacity), body["capacity"])
	assert.Equal(t, float64(1), body["strokes"])

	w, body = doGet(t, r, "/api/rooms/NOPE")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, service.ErrRoomNotFound.Error(), body["error"])
}

func TestHandleServiceError(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{service.ErrRoomNotFound, http.StatusNotFound},
		{service.ErrRoomFull, http.StatusConflict},
		{service.ErrInvalidUser, http.StatusBadRequest},
		{service.ErrInvalidAction, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			httpHandler.HandleServiceError(c, tc.err)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
