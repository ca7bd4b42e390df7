// Package api runs the read-only HTTP control plane.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thrillee/smppsim/internal/api/handlers"
	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/store"
)

// Server wraps the gin router and its http.Server.
type Server struct {
	httpServer *http.Server
}

// NewRouter builds the gin engine with every route under /api/v1.
func NewRouter(st store.Store, src handlers.StatusSource) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	apiV1 := router.Group("/api/v1")
	handlers.SetupRoutes(apiV1, st, src)
	return router
}

// NewServer creates the API server from cfg.
func NewServer(cfg config.APIConfig, st store.Store, src handlers.StatusSource) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(st, src),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		},
	}
}

// Serve accepts on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("Starting API server", slog.String("address", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("API server error", slog.Any("error", err))
		return err
	}
	slog.Info("API server stopped")
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.DebugContext(c.Request.Context(), "API request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
