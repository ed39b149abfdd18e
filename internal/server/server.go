package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/server/handler"
	"github.com/alanyoungcy/tradedesk/internal/server/middleware"
	"github.com/alanyoungcy/tradedesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Signals   *handler.SignalHandler
	Positions *handler.PositionHandler
	Users     *handler.UserHandler
	Trading   *handler.TradingHandler
	Analytics *handler.AnalyticsHandler
}

// Server is the HTTP + WebSocket gateway for the trading dashboard.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, rate limit, auth) wired around it.
// limiter may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required, registered outside /api).
	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)

	// Signal lifecycle and views.
	mux.HandleFunc("POST /api/signals/{id}/confirm", handlers.Signals.Confirm)
	mux.HandleFunc("POST /api/signals/{id}/reject", handlers.Signals.Reject)
	mux.HandleFunc("GET /api/signals/pending", handlers.Signals.ListPending)
	mux.HandleFunc("GET /api/signals/history", handlers.Signals.ListHistory)
	mux.HandleFunc("GET /api/signals/{id}", handlers.Signals.Get)

	// Positions.
	mux.HandleFunc("GET /api/positions", handlers.Positions.List)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.Get)

	// Discord identity.
	mux.HandleFunc("GET /api/users/{id}/discord", handlers.Users.GetDiscordID)
	mux.HandleFunc("GET /api/users/{id}/config", handlers.Users.GetConfig)
	mux.HandleFunc("GET /api/users/by-discord/{discordId}", handlers.Users.GetByDiscordID)
	mux.HandleFunc("POST /api/users/link-discord", handlers.Users.LinkDiscord)

	// Trading pause toggle.
	mux.HandleFunc("POST /api/trading/pause", handlers.Trading.Pause)
	mux.HandleFunc("POST /api/trading/resume", handlers.Trading.Resume)
	mux.HandleFunc("GET /api/trading/status", handlers.Trading.Status)

	// Analytics.
	mux.HandleFunc("GET /api/analytics/pnl", handlers.Analytics.PnL)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
