// Package api serves the local ops interface. It rides on the same agent
// the MQTT topics drive, so an operator on the device network can inspect
// and control the printer when the cloud side is unreachable.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printerd/internal/api/handlers"
	"github.com/orrn/printerd/internal/api/middleware"
	"github.com/orrn/printerd/internal/config"
	"github.com/orrn/printerd/internal/core"
)

type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

func NewServer(cfg config.ServerConfig, agent *core.Agent, auth *middleware.AuthMiddleware, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	statusHandler := handlers.NewStatusHandler(agent)
	jobHandler := handlers.NewJobHandler(agent)
	historyHandler := handlers.NewHistoryHandler()
	deviceHandler := handlers.NewDeviceHandler(agent)

	engine.GET("/healthz", statusHandler.Healthz)

	public := engine.Group("/api")
	auth.RegisterRoutes(public)

	protected := engine.Group("/api")
	protected.Use(auth.RequireAuth())
	statusHandler.RegisterRoutes(protected)
	jobHandler.RegisterRoutes(protected)
	historyHandler.RegisterRoutes(protected)
	deviceHandler.RegisterRoutes(protected)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Listen,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout.Std(),
			WriteTimeout: cfg.WriteTimeout.Std(),
		},
		log: log,
	}
}

// Handler exposes the assembled routes. Tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() {
	go func() {
		s.log.Info("ops api listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ops api server failed", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
