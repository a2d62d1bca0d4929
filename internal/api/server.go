// Package api serves the HTTP collaborators of the streaming protocol:
// session creation, metrics snapshots, results and health.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel/trace"

	"github.com/verte-zerg/typestream/internal/clock"
	"github.com/verte-zerg/typestream/internal/model"
	"github.com/verte-zerg/typestream/internal/session"
	"github.com/verte-zerg/typestream/internal/telemetry"
)

const (
	DefaultMinWords          = 10
	DefaultMaxWords          = 200
	DefaultWordCount         = 50
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

// Config defines the listener and session creation settings.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	MinWords          int
	MaxWords          int
	DefaultWords      int
}

// TextSource produces practice text of a given word count.
type TextSource interface {
	Text(count int) string
}

// ResultsReader reads recorded results.
type ResultsReader interface {
	ListResults(ctx context.Context, filter model.ResultFilter) ([]model.Result, error)
	Summary(ctx context.Context) (model.ResultSummary, error)
}

// StreamHandler serves the streaming endpoint and can drop its connections on shutdown.
type StreamHandler interface {
	http.Handler
	CloseAll()
}

// Server hosts the HTTP API and the streaming endpoint.
type Server struct {
	cfg        Config
	sessions   session.Store
	text       TextSource
	stream     StreamHandler
	results    ResultsReader
	clock      clock.Clock
	logger     hclog.Logger
	tracer     trace.Tracer
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock sets the clock used for metrics snapshots.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithResults enables GET /api/results.
func WithResults(r ResultsReader) Option {
	return func(s *Server) { s.results = r }
}

// New builds a Server. Zero config values fall back to the package defaults.
func New(cfg Config, sessions session.Store, text TextSource, stream StreamHandler, opts ...Option) (*Server, error) {
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if text == nil {
		return nil, errors.New("text source is required")
	}
	if stream == nil {
		return nil, errors.New("stream handler is required")
	}
	cfg = withDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		text:     text,
		stream:   stream,
		clock:    clock.System{},
		logger:   hclog.NewNullLogger(),
		tracer:   telemetry.Tracer("github.com/verte-zerg/typestream/internal/api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	s.httpServer.RegisterOnShutdown(stream.CloseAll)
	return s, nil
}

func withDefaults(cfg Config) Config {
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MinWords == 0 {
		cfg.MinWords = DefaultMinWords
	}
	if cfg.MaxWords == 0 {
		cfg.MaxWords = DefaultMaxWords
	}
	if cfg.DefaultWords == 0 {
		cfg.DefaultWords = DefaultWordCount
	}
	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.MinWords <= 0 {
		return fmt.Errorf("min words must be > 0")
	}
	if cfg.MaxWords < cfg.MinWords {
		return fmt.Errorf("max words must be >= min words")
	}
	if cfg.DefaultWords < cfg.MinWords || cfg.DefaultWords > cfg.MaxWords {
		return fmt.Errorf("default words must be between %d and %d", cfg.MinWords, cfg.MaxWords)
	}
	return nil
}

// Handler returns the routing tree. The streaming endpoint bypasses the
// request middleware because it hijacks the connection.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/session", s.handleCreateSession)
	api.HandleFunc("GET /api/session/{sessionId}/metrics", s.handleSessionMetrics)
	api.HandleFunc("GET /api/results", s.handleResults)
	api.HandleFunc("GET /health", s.handleHealth)

	root := http.NewServeMux()
	root.Handle("/ws", s.stream)
	root.Handle("/", s.instrument(api))
	return root
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		return errors.New("http address is required")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the context ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	s.logger.Info("server listening", "addr", ln.Addr().String())
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
