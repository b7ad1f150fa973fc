package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/viki-777/colabio-backend/internal/service"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	ServerPort      string
	AllowedOrigins  []string
	LogLevel        string
	AppEnv          string // development / production
	RoomCapacity    int
	MaxSessionMoves int
	RoomIdleTTL     time.Duration // 0 表示永不清理空房间
	SweepInterval   time.Duration
	RedisAddr       string // 为空时不启用 HTTP 限流
	RedisPassword   string
	RedisDB         int
	KeyPrefix       string
	RateLimitMax    int
	RateLimitWindow time.Duration
	JWTSecret       string // 为空时 /ws 不做认证
}

// LoadConfig 从环境变量加载配置。.env 文件存在时先加载它。
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:     envOr("PORT", "8080"),
		AllowedOrigins: SplitOrigins(envOr("CLIENT_URL", "http://localhost:3000")),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		AppEnv:         envOr("APP_ENV", "development"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:      envOr("REDIS_KEY_PREFIX", "wb:"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
	}

	var err error
	if cfg.RoomCapacity, err = envInt("ROOM_CAPACITY", service.DefaultRoomCapacity); err != nil {
		return nil, err
	}
	if cfg.MaxSessionMoves, err = envInt("MAX_SESSION_MOVES", service.DefaultMaxSessionMoves); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.RoomIdleTTL, err = envDuration("ROOM_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = envDuration("ROOM_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and normalizes the log level. Called again after
// command-line overrides are applied.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid port %q: %w", c.ServerPort, err)
	}
	if c.RoomCapacity <= 0 {
		return fmt.Errorf("ROOM_CAPACITY must be positive, got %d", c.RoomCapacity)
	}
	if c.MaxSessionMoves < 0 {
		return fmt.Errorf("MAX_SESSION_MOVES must not be negative, got %d", c.MaxSessionMoves)
	}
	if c.RoomIdleTTL < 0 {
		return fmt.Errorf("ROOM_IDLE_TTL must not be negative, got %s", c.RoomIdleTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("ROOM_SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.RedisAddr != "" && (c.RateLimitMax <= 0 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive when REDIS_ADDR is set")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", c.LogLevel)
		c.LogLevel = "info"
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return d, nil
}

// SplitOrigins parses a comma-separated origin list.
func SplitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}
