package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	httpHandler "github.com/viki-777/colabio-backend/internal/handler/http"
	wsHandler "github.com/viki-777/colabio-backend/internal/handler/websocket"
	"github.com/viki-777/colabio-backend/internal/hub"
	"github.com/viki-777/colabio-backend/internal/infra/memory"
	"github.com/viki-777/colabio-backend/internal/infra/setup"
	"github.com/viki-777/colabio-backend/internal/metrics"
	"github.com/viki-777/colabio-backend/internal/middleware"
	"github.com/viki-777/colabio-backend/internal/service"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	RedisClient *redis.Client // nil 表示未启用限流
	Hub         *hub.Hub
	Router      *gin.Engine
	HttpServer  *http.Server
}

// NewApp 创建并初始化应用的所有组件
func NewApp(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	log := newLogger(cfg)
	setLogger(log)
	log.Info("Configuration loaded successfully")

	// 可选基础设施
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		client, err := setup.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		redisClient = client
	} else {
		log.Info("REDIS_ADDR not set, HTTP rate limiting disabled")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "whiteboard")

	// Services
	roomRepo := memory.NewRoomRepository()
	presence := service.NewPresenceService()
	roomService := service.NewRoomService(roomRepo, presence, cfg.RoomCapacity)
	collabService := service.NewCollaborationService(roomService, cfg.MaxSessionMoves)
	log.Info("Services initialized")

	hubInstance := hub.NewHub(roomService, collabService, m, hub.Options{
		IdleRoomTTL:   cfg.RoomIdleTTL,
		SweepInterval: cfg.SweepInterval,
	})

	router := newRouter(cfg, log, hubInstance, roomService, redisClient, reg)

	app := &App{
		Config:      cfg,
		Log:         log,
		RedisClient: redisClient,
		Hub:         hubInstance,
		Router:      router,
		HttpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	log.Info("Application assembled successfully")
	return app, nil
}

func newLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	return log
}

// setLogger applies the app logger's settings to the package-level logger
// used by the hub and services.
func setLogger(log *logrus.Logger) {
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(log.GetLevel())
	logrus.SetOutput(log.Out)
}

func newRouter(cfg *Config, log *logrus.Logger, h *hub.Hub, rooms *service.RoomService, redisClient *redis.Client, reg *prometheus.Registry) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	health := httpHandler.NewHealthHandler(h)
	router.GET("/", health.Root)
	router.GET("/health", health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	if redisClient != nil {
		api.Use(middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	api.GET("/rooms/:roomId", httpHandler.NewRoomHandler(rooms).GetRoom)

	ws := wsHandler.NewWebSocketHandler(h, cfg.AllowedOrigins)
	if cfg.JWTSecret != "" {
		router.GET("/ws", middleware.Auth(cfg.JWTSecret), ws.HandleConnection)
	} else {
		log.Warn("JWT_SECRET not set, /ws accepts unauthenticated connections")
		router.GET("/ws", ws.HandleConnection)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			c.AllowCredentials = false
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}
	c.AllowOrigins = origins
	return c
}

// Start 启动 Hub 和 HTTP 服务器。HTTP 服务器异常退出时错误写入返回的通道。
func (a *App) Start() <-chan error {
	errCh := make(chan error, 1)
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return errCh
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown(ctx context.Context) {
	a.Log.Info("Shutting down application...")

	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 关闭所有客户端的发送通道，WritePump 随之发送 close 帧
	a.Hub.Stop()

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}
	a.Log.Info("Application shutdown complete.")
}
