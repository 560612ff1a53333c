package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gokaybiz/site-api/internal/logging"
)

const (
	// DefaultAddr is the default server address.
	DefaultAddr = ":8080"

	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr string

	// CORSOrigins are allowed by the preflight middleware. Empty or "*"
	// allows any origin.
	CORSOrigins []string

	// RateLimitRequests per RateLimitWindow per client IP on /api.
	// Zero disables rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Gatherer is exposed on /metrics when set.
	Gatherer prometheus.Gatherer

	Logger zerolog.Logger
}

// Server is the HTTP server for the API.
type Server struct {
	router          chi.Router
	server          *http.Server
	handlers        *Handlers
	logger          zerolog.Logger
	shutdownTimeout time.Duration
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, handlers *Handlers) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		router:          chi.NewRouter(),
		handlers:        handlers,
		logger:          cfg.Logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	s.setupMiddleware(cfg)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// AllowOrigin returns the Access-Control-Allow-Origin value handlers should
// send for origins, or "" when the CORS middleware must decide per request.
func AllowOrigin(origins []string) string {
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return "*"
	}
	return ""
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware(cfg ServerConfig) {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RealIP)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{logging.RequestIDHeader},
		MaxAge:         300,
		// Preflights reach the handlers, which answer them.
		OptionsPassthrough: true,
	}))
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes(cfg ServerConfig) {
	s.router.Get("/healthz", s.handlers.Health)

	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		// Method dispatch happens in the handlers so that every method gets
		// CORS headers and a JSON body.
		r.With(rateLimit(cfg, s.handlers.songsLimited)).HandleFunc("/songs", s.handlers.Songs)
		r.With(rateLimit(cfg, s.handlers.photosLimited)).HandleFunc("/photos", s.handlers.Photos)
	})
}

// rateLimit limits requests per client IP. Requests over the limit are
// answered by onLimit, which serves the endpoint's empty payload.
func rateLimit(cfg ServerConfig, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	if cfg.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.RateLimitRequests,
		cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(onLimit),
	)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and shuts it down gracefully once ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
