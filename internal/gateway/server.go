// Package gateway is the HTTP boundary stations sync through. Every
// concern is a separate middleware or helper: CORS, security headers, rate
// limiting, bearer auth, ETag caching, input sanitization and the shared
// error envelope.
package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/repository"
)

// Config tunes the gateway.
type Config struct {
	AllowedOrigin        string
	CORSMaxAge           time.Duration
	RateLimit            int
	RateWindow           time.Duration
	AuthEnabled          bool
	MaxBodyBytes         int64
	MaxEntriesPerRequest int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		AllowedOrigin:        "http://localhost:5173",
		CORSMaxAge:           24 * time.Hour,
		RateLimit:            100,
		RateWindow:           time.Minute,
		AuthEnabled:          true,
		MaxBodyBytes:         1 << 20,
		MaxEntriesPerRequest: 500,
	}
}

// Pinger reports backend health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server serves the sync API.
type Server struct {
	races    repository.RaceRepository
	resolver TokenResolver
	health   Pinger
	limiter  *RateLimiter
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
}

// NewServer creates a gateway over races. resolver may be nil only when
// cfg.AuthEnabled is false; health may be nil.
func NewServer(races repository.RaceRepository, resolver TokenResolver, health Pinger, cfg Config, clk clock.Clock, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk = clock.OrReal(clk)
	return &Server{
		races:    races,
		resolver: resolver,
		health:   health,
		limiter:  NewRateLimiter(cfg.RateLimit, cfg.RateWindow, clk),
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
	}
}

// Limiter exposes the rate limiter.
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS(s.cfg.AllowedOrigin, s.cfg.CORSMaxAge))
	r.Use(s.requestLogger)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		NotFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		MethodNotAllowed(w)
	})

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		if s.cfg.AuthEnabled {
			r.Use(AuthMiddleware(s.resolver))
		}

		r.Get("/races/{raceID}", s.handleGetRace)
		r.Post("/races/{raceID}/entries", s.handleSubmitEntries)
		r.Delete("/races/{raceID}/entries/{entryID}", s.handleDeleteEntry)
	})

	return r
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic serving request", "path", r.URL.Path, "panic", rec)
				ServerError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"client_ip", ClientIP(r),
			"duration", time.Since(start),
		)
	})
}
