package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/faucetdb/keygate/internal/handler"
	"github.com/faucetdb/keygate/internal/model"
	"github.com/faucetdb/keygate/internal/server/middleware"
	"github.com/faucetdb/keygate/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimit       int    // requests per minute, per IP and per key; 0 disables
	APIKeyHeader    string // header accepted alongside Authorization: Bearer
	MaxBodySize     int64  // bytes
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            7700,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		RateLimit:       600,
		APIKeyHeader:    "X-API-Key",
		MaxBodySize:     1 << 20, // 1MB
	}
}

const readyTimeout = 5 * time.Second

// Pinger reports whether the key store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the top-level HTTP server for keygate. It owns the Chi router,
// the key service and the store used for readiness checks.
type Server struct {
	cfg        Config
	router     chi.Router
	store      Pinger
	keys       *service.KeyService
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call Run to start accepting connections.
func New(cfg Config, store Pinger, keys *service.KeyService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		keys:   keys,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.apiKeyHeader(), "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}
	if s.cfg.RateLimit > 0 {
		r.Use(middleware.RateLimit(s.cfg.RateLimit))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, http.StatusNotFound, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.apiKeyHeader()).ServeSpec)

	// --- Key management ---
	auth := middleware.Auth{Keys: s.keys, Header: s.apiKeyHeader()}
	keyHandler := handler.NewKeyHandler(s.keys)

	r.Route("/keys", func(r chi.Router) {
		withAction := func(action model.Action) chi.Router {
			g := r.With(auth.RequireAction(action))
			if s.cfg.RateLimit > 0 {
				g = g.With(middleware.RateLimitByKey(s.cfg.RateLimit))
			}
			return g
		}

		withAction(model.ActionKeysGet).Get("/", keyHandler.List)
		withAction(model.ActionKeysCreate).Post("/", keyHandler.Create)
		withAction(model.ActionKeysGet).Get("/{keyId}", keyHandler.Get)
		withAction(model.ActionKeysUpdate).Patch("/{keyId}", keyHandler.Update)
		withAction(model.ActionKeysDelete).Delete("/{keyId}", keyHandler.Delete)
	})

	s.router = r
}

func (s *Server) apiKeyHeader() string {
	if s.cfg.APIKeyHeader == "" {
		return "X-API-Key"
	}
	return s.cfg.APIKeyHeader
}

// handleHealthz reports that the process is up.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports 503 while the key store cannot be reached, since no
// key can be checked without it.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeStatus(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"checks": map[string]string{"store": "error: " + err.Error()},
		})
		return
	}
	writeStatus(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"checks": map[string]string{"store": "ok"},
	})
}

func writeRouteError(w http.ResponseWriter, status int, message string) {
	writeStatus(w, status, model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}

func writeStatus(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully within
// the configured timeout. It returns early if the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr, "auth", s.keys.MasterKeyConfigured())
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down, draining connections", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
