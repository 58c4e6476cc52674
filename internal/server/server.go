// Package server exposes the engine's read-only HTTP and websocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/server/handler"
	"github.com/alanyoungcy/weatherbot/internal/server/middleware"
	"github.com/alanyoungcy/weatherbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Handlers aggregates the HTTP handlers the server registers. Nil handlers
// leave their routes unregistered.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Signals  *handler.SignalHandler
	Trades   *handler.TradeHandler
	Accuracy *handler.AccuracyHandler
	// Metrics serves the Prometheus exposition format.
	Metrics http.Handler
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, rate
// limiting and auth, outermost first. Health and metrics stay unauthenticated.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, handlers, wsHub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Routes builds the full handler chain.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Signals != nil {
		mux.HandleFunc("GET /api/signals", handlers.Signals.ListSignals)
	}
	if handlers.Trades != nil {
		mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
		mux.HandleFunc("GET /api/trades/{id}/alerts", handlers.Trades.ListAlerts)
	}
	if handlers.Accuracy != nil {
		mux.HandleFunc("GET /api/accuracy", handlers.Accuracy.ListAccuracy)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var limiter *middleware.ClientLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewClientLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(limiter)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
