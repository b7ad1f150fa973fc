package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadConfig reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "CLIENT_URL", "LOG_LEVEL", "APP_ENV", "ROOM_CAPACITY", "MAX_SESSION_MOVES",
		"ROOM_IDLE_TTL", "ROOM_SWEEP_INTERVAL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"REDIS_KEY_PREFIX", "RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW", "JWT_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, 12, cfg.RoomCapacity)
	assert.Equal(t, 500, cfg.MaxSessionMoves)
	assert.Equal(t, 30*time.Minute, cfg.RoomIdleTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("CLIENT_URL", "https://a.example.com/, https://b.example.com")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ROOM_CAPACITY", "4")
	t.Setenv("ROOM_IDLE_TTL", "0s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RATE_LIMIT_WINDOW", "2s")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.RoomCapacity)
	assert.Zero(t, cfg.RoomIdleTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestLoadConfig_Invalid(t *testing.T) {
	testCases := map[string]map[string]string{
		"non-numeric capacity":  {"ROOM_CAPACITY": "twelve"},
		"zero capacity":         {"ROOM_CAPACITY": "0"},
		"bad duration":          {"ROOM_IDLE_TTL": "soon"},
		"negative ttl":          {"ROOM_IDLE_TTL": "-1m"},
		"bad port":              {"PORT": "http"},
		"zero sweep interval":   {"ROOM_SWEEP_INTERVAL": "0s"},
		"rate limit with redis": {"REDIS_ADDR": "localhost:6379", "RATE_LIMIT_MAX": "0"},
	}
	for name, env := range testCases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfigValidate_NormalizesLogLevel(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.LogLevel = "chatty"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, SplitOrigins(" http://a/ ,,http://b"))
	assert.Empty(t, SplitOrigins(""))
}
