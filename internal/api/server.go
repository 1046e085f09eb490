// Package api wires the gateway's HTTP routes, middleware chain, and
// server lifecycle on top of Gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kiro-gateway/gateway/internal/api/handlers"
	"github.com/kiro-gateway/gateway/internal/api/middleware"
	"github.com/kiro-gateway/gateway/internal/config"
	"github.com/kiro-gateway/gateway/internal/debuglog"
	"github.com/kiro-gateway/gateway/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server owns the Gin engine and the underlying http.Server.
type Server struct {
	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the engine, registers every route with its middleware
// chain, and returns a Server ready to Start.
func NewServer(state *handlers.State, cfg *config.Config, recorder *debuglog.Recorder) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.CORS())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(logging.GinLogrusLogger())
	engine.Use(middleware.DebugCapture(recorder))

	engine.GET("/", handlers.Root)
	engine.GET("/health", handlers.Health)

	if state.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(state.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	authed := engine.Group("/")
	authed.Use(middleware.Auth(cfg.ProxyAPIKey))
	authed.GET("/v1/models", state.ListModels)
	authed.POST("/v1/chat/completions", state.ChatCompletions)
	authed.POST("/v1/messages", state.Messages)
	authed.POST("/v1/messages/count_tokens", state.CountTokens)

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
			Handler: engine,
		},
	}
}

// Start runs the server until it's shut down, blocking the calling
// goroutine. A clean Stop is reported as a nil error.
func (s *Server) Start() error {
	log.WithField("addr", s.http.Addr).Info("gateway listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests to
// finish until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
