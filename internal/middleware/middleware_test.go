package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viki-777/colabio-backend/internal/middleware"
)

const testSecret = "very-secret-key"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

// newAuthRouter echoes the user_id the middleware stored.
func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.GET("/ws", middleware.Auth(testSecret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})
	return r
}

func TestAuth(t *testing.T) {
	valid := signToken(t, testSecret, jwt.MapClaims{"user_id": "alice", "exp": time.Now().Add(time.Hour).Unix()})
	numeric := signToken(t, testSecret, jwt.MapClaims{"user_id": float64(42), "exp": time.Now().Add(time.Hour).Unix()})
	expired := signToken(t, testSecret, jwt.MapClaims{"user_id": "alice", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey := signToken(t, "other-secret", jwt.MapClaims{"user_id": "alice"})
	noUser := signToken(t, testSecret, jwt.MapClaims{"sub": "alice"})

	testCases := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{name: "bearer header", header: "Bearer " + valid, wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "query parameter", query: "?token=" + valid, wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "numeric user id", header: "Bearer " + numeric, wantStatus: http.StatusOK, wantBody: "42"},
		{name: "missing token", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", header: "Token " + valid, wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "wrong signing key", header: "Bearer " + wrongKey, wantStatus: http.StatusUnauthorized},
		{name: "missing user_id claim", header: "Bearer " + noUser, wantStatus: http.StatusUnauthorized},
	}

	router := newAuthRouter()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, w.Body.String())
			}
		})
	}
}

func TestAuth_PanicsWithoutSecret(t *testing.T) {
	assert.Panics(t, func() { middleware.Auth("") })
}

func TestRateLimit_PanicsOnBadArguments(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	assert.Panics(t, func() { middleware.RateLimit(nil, "", 1, time.Second) })
	assert.Panics(t, func() { middleware.RateLimit(client, "", 0, time.Second) })
	assert.Panics(t, func() { middleware.RateLimit(client, "", 1, 0) })
}

func TestRateLimit_AllowsWhenRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := gin.New()
	r.GET("/", middleware.RateLimit(client, "test:", 1, time.Second), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestLogger_LogsStatusAndHidesToken(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.DebugLevel)

	r := gin.New()
	r.Use(middleware.Logger(log))
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing?x=1", nil))
	assert.Contains(t, buf.String(), `"status_code":404`)
	assert.Contains(t, buf.String(), `"level":"warning"`)
	assert.Contains(t, buf.String(), `/missing?x=1`)

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws?token=secret", nil))
	assert.Contains(t, buf.String(), `"status_code":200`)
	assert.NotContains(t, buf.String(), "secret")
}
