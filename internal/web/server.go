// Package web serves the learnhub JSON API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/roasbeef/learnhub/internal/cache"
	"github.com/roasbeef/learnhub/internal/plan"
	"github.com/roasbeef/learnhub/internal/ratelimit"
	"github.com/roasbeef/learnhub/internal/summary"
	"github.com/roasbeef/learnhub/internal/transcript"
)

const (
	// DefaultAddr is the default HTTP listen address.
	DefaultAddr = ":8080"

	// DefaultRateLimit is how many rate limited calls a client may make
	// per window.
	DefaultRateLimit = 10

	// DefaultRateWindow is the rate limit window.
	DefaultRateWindow = time.Minute

	// DefaultMaxBodyBytes caps request bodies.
	DefaultMaxBodyBytes = 2 << 20
)

// Config holds configuration for the HTTP server.
type Config struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr"`

	// DevMode adds internal error detail to error responses.
	DevMode bool `mapstructure:"dev_mode"`

	// RateLimit is the per-client request budget for the summarize and
	// submit endpoints.
	RateLimit int `mapstructure:"rate_limit"`

	// RateWindow is the sliding window RateLimit applies to.
	RateWindow time.Duration `mapstructure:"rate_window"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// Version is reported by the health endpoint.
	Version string `mapstructure:"-"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         DefaultAddr,
		RateLimit:    DefaultRateLimit,
		RateWindow:   DefaultRateWindow,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Summarizer produces video summaries.
type Summarizer interface {
	Summarize(ctx context.Context, req summary.Request) (*summary.Response,
		error)

	Stats() summary.Stats
}

// PlanExchange runs the learning plan handshake.
type PlanExchange interface {
	Submit(ctx context.Context, profile map[string]any) (*plan.SubmitResult,
		error)

	HandleCallback(ctx context.Context, raw []byte) (*plan.CallbackResult,
		error)

	Poll(ctx context.Context, id string) (*plan.Record, error)

	Delete(ctx context.Context, id string) error

	Stats() plan.Stats
}

// CacheStatser reports summary cache statistics.
type CacheStatser interface {
	Stats() cache.Stats
}

// Deps are the services the server routes to.
type Deps struct {
	Summaries    Summarizer
	Plans        PlanExchange
	Transcripts  transcript.Provider
	SummaryCache CacheStatser
	Limiter      *ratelimit.Limiter

	// StoreBackend names the plan store in use, for the health endpoint.
	StoreBackend string
}

// Server is the learnhub HTTP server.
type Server struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mux *http.ServeMux
	srv *http.Server
}

// NewServer creates a server and registers its routes.
func NewServer(cfg Config, deps Deps, log *slog.Logger) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultRateWindow
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter()
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log.With("component", "web"),
		mux:  http.NewServeMux(),
	}
	s.registerAPIV1Routes()

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,

		// Summaries wait on the LLM, including backoff.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.mux)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("Starting web server", "addr", ln.Addr().String())

	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
