package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"llm-crypto-trader/internal/events"
	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

// EngineController starts and stops the single trading engine.
type EngineController interface {
	Start(ctx context.Context, cfg types.EngineConfig) (interfaces.Engine, error)
	Stop(ctx context.Context) error
	IsRunning() bool
	Status(ctx context.Context) types.Status
}

type Config struct {
	Addr        string
	CORSOrigins []string
	Release     bool
}

type Deps struct {
	Engines  EngineController
	Store    interfaces.TradeStore
	Bus      *events.Bus
	Defaults types.EngineConfig
	// Validate checks a start request's configuration before the engine is built.
	Validate func(types.EngineConfig) error
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        Config
	deps       Deps
	startedAt  time.Time

	// closing ends open event streams so Shutdown does not wait on them.
	closing   chan struct{}
	closeOnce sync.Once
}

func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Engines == nil || deps.Store == nil || deps.Bus == nil {
		return nil, errors.New("server needs an engine controller, a trade store and an event bus")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", RequestIDHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", RequestIDHeader}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		cfg:       cfg,
		deps:      deps,
		startedAt: time.Now(),
		closing:   make(chan struct{}),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		eng := api.Group("/engine")
		eng.POST("/start", s.handleStart)
		eng.POST("/stop", s.handleStop)
		eng.GET("/status", s.handleStatus)

		api.GET("/trades", s.handleTrades)
		api.GET("/trades/today", s.handleTodayTrades)

		api.GET("/events", s.handleEvents)
		api.GET("/ws", s.handleWebSocket)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	logger.Info(context.Background(), "Starting HTTP server", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.httpServer == nil {
		return nil
	}
	logger.Info(ctx, "Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
