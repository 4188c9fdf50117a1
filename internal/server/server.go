// Package server exposes the bidding engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/salvagehub/salvagebid/internal/domain"
	"github.com/salvagehub/salvagebid/internal/server/handler"
	"github.com/salvagehub/salvagebid/internal/server/middleware"
	"github.com/salvagehub/salvagebid/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	APIKey       string // if empty, authentication is disabled
	RateLimitRPS int    // if zero, per-IP request limiting is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Bids     *handler.BidHandler
	Auctions *handler.AuctionHandler
	Vendors  *handler.VendorHandler
	Ratings  *handler.RatingHandler
	Audit    *handler.AuditHandler
	Archives *handler.ArchiveHandler // nil when object storage is not configured
}

// Server is the HTTP + WebSocket API server for the bidding engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Auction endpoints.
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("GET /api/auctions/{id}/summary", handlers.Auctions.GetSummary)
	mux.HandleFunc("GET /api/auctions/{id}/bids", handlers.Auctions.ListBids)
	mux.HandleFunc("POST /api/auctions/{id}/watch", handlers.Auctions.Watch)
	mux.HandleFunc("DELETE /api/auctions/{id}/watch", handlers.Auctions.Unwatch)

	// Bidding protocol endpoints.
	mux.HandleFunc("POST /api/auctions/{id}/bids", handlers.Bids.SubmitBid)
	mux.HandleFunc("POST /api/bids/confirm", handlers.Bids.ConfirmBid)

	// Vendor endpoints.
	mux.HandleFunc("GET /api/vendors/{id}", handlers.Vendors.GetVendor)
	mux.HandleFunc("GET /api/vendors/{id}/fraud-flags", handlers.Vendors.ListFraudFlags)
	mux.HandleFunc("GET /api/vendors/{id}/ratings", handlers.Ratings.ListRatings)
	mux.HandleFunc("POST /api/vendors/{id}/ratings", handlers.Ratings.RateVendor)

	// Operator endpoints.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListEntries)
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
		mux.HandleFunc("GET /api/archives/{month}", handlers.Archives.GetArchive)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-IP request limiting when configured.
	if limiter != nil && cfg.RateLimitRPS > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitRPS, time.Second)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
