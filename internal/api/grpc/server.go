// Package learnrpc serves the learnhub gRPC endpoint. It carries the
// standard health service, reporting per-component readiness, and server
// reflection.
package learnrpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const (
	// DefaultListenAddr is the default gRPC listen address.
	DefaultListenAddr = "localhost:10009"

	// DefaultCheckInterval is how often readiness checks run.
	DefaultCheckInterval = 30 * time.Second

	// checkTimeout bounds a single readiness check.
	checkTimeout = 5 * time.Second
)

// CheckFunc reports whether a component is ready to serve.
type CheckFunc func(ctx context.Context) error

// ServerConfig holds configuration for the gRPC server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., "localhost:10009").
	// An empty address disables the gRPC server.
	ListenAddr string `mapstructure:"listen_addr"`

	// ServerPingTime is the duration after which the server pings the
	// client.
	ServerPingTime time.Duration `mapstructure:"server_ping_time"`

	// ServerPingTimeout is the duration the server waits for ping ack.
	ServerPingTimeout time.Duration `mapstructure:"server_ping_timeout"`

	// ClientPingMinWait is the minimum time between client pings.
	ClientPingMinWait time.Duration `mapstructure:"client_ping_min_wait"`

	// ClientAllowPingWithoutStream allows pings even without active
	// streams.
	ClientAllowPingWithoutStream bool `mapstructure:"client_allow_ping_without_stream"`

	// CheckInterval is how often readiness checks are re-run.
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:                   DefaultListenAddr,
		ServerPingTime:               5 * time.Minute,
		ServerPingTimeout:            1 * time.Minute,
		ClientPingMinWait:            5 * time.Second,
		ClientAllowPingWithoutStream: true,
		CheckInterval:                DefaultCheckInterval,
	}
}

// Server is the gRPC server for learnhub.
type Server struct {
	cfg    ServerConfig
	log    *slog.Logger
	checks map[string]CheckFunc

	health     *health.Server
	grpcServer *grpc.Server
	listener   net.Listener

	started bool
	mu      sync.RWMutex

	// quit is closed when the server is shutting down.
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewServer creates a new gRPC server instance. Each entry of checks is
// exposed as a health service name; the overall ("") status is SERVING
// only while every check passes.
func NewServer(cfg ServerConfig, checks map[string]CheckFunc,
	log *slog.Logger) *Server {

	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}

	return &Server{
		cfg:    cfg,
		log:    log.With("component", "grpc"),
		checks: checks,
		health: health.NewServer(),
		quit:   make(chan struct{}),
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("server already started")
	}

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w",
			s.cfg.ListenAddr, err)
	}
	s.listener = lis

	s.grpcServer = grpc.NewServer(s.buildServerOptions()...)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	// Start NOT_SERVING until the first round of checks completes.
	s.setAll(healthpb.HealthCheckResponse_NOT_SERVING)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.log.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := s.grpcServer.Serve(lis); err != nil {
			select {
			case <-s.quit:
			default:
				s.log.Error("gRPC server error", "err", err)
			}
		}
	}()

	s.started = true

	return nil
}

// RunChecks runs the readiness checks now and then every CheckInterval
// until ctx is done.
func (s *Server) RunChecks(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		s.CheckNow(ctx)

		select {
		case <-ticker.C:

		case <-ctx.Done():
			return

		case <-s.quit:
			return
		}
	}
}

// CheckNow runs every readiness check once and publishes the results.
func (s *Server) CheckNow(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING

	for name, check := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(checkCtx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = st

			s.log.WarnContext(ctx, "Readiness check failed",
				"service", name, "err", err)
		}

		s.health.SetServingStatus(name, st)
	}

	s.health.SetServingStatus("", overall)
}

// setAll sets every service, and the overall status, to st.
func (s *Server) setAll(st healthpb.HealthCheckResponse_ServingStatus) {
	for name := range s.checks {
		s.health.SetServingStatus(name, st)
	}
	s.health.SetServingStatus("", st)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	close(s.quit)
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.wg.Wait()

	s.started = false
	s.log.Info("gRPC server stopped")

	return nil
}

// buildServerOptions creates gRPC server options with keepalive and
// interceptors.
func (s *Server) buildServerOptions() []grpc.ServerOption {
	serverKeepalive := keepalive.ServerParameters{
		Time:    s.cfg.ServerPingTime,
		Timeout: s.cfg.ServerPingTimeout,
	}

	clientKeepalive := keepalive.EnforcementPolicy{
		MinTime:             s.cfg.ClientPingMinWait,
		PermitWithoutStream: s.cfg.ClientAllowPingWithoutStream,
	}

	return []grpc.ServerOption{
		grpc.KeepaliveParams(serverKeepalive),
		grpc.KeepaliveEnforcementPolicy(clientKeepalive),

		// Logging runs before the shutdown check.
		grpc.ChainUnaryInterceptor(
			s.loggingUnaryInterceptor,
			s.shutdownUnaryInterceptor,
		),
		grpc.ChainStreamInterceptor(
			s.loggingStreamInterceptor,
		),
	}
}

// loggingUnaryInterceptor logs all unary RPC calls.
func (s *Server) loggingUnaryInterceptor(ctx context.Context, req any,
	info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	start := time.Now()
	resp, err := handler(ctx, req)

	if err != nil {
		s.log.WarnContext(ctx, "RPC failed", "method", info.FullMethod,
			"duration", time.Since(start), "err", err)
	} else {
		s.log.DebugContext(ctx, "RPC completed",
			"method", info.FullMethod, "duration", time.Since(start))
	}

	return resp, err
}

// shutdownUnaryInterceptor rejects calls once the server is stopping.
func (s *Server) shutdownUnaryInterceptor(ctx context.Context, req any,
	_ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	select {
	case <-s.quit:
		return nil, status.Error(codes.Unavailable,
			"server is shutting down")
	default:
	}

	return handler(ctx, req)
}

// loggingStreamInterceptor logs streaming RPC calls, such as health
// watches and reflection.
func (s *Server) loggingStreamInterceptor(srv any, ss grpc.ServerStream,
	info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {

	start := time.Now()
	err := handler(srv, ss)

	if err != nil {
		s.log.Debug("Stream RPC ended with error",
			"method", info.FullMethod, "duration", time.Since(start),
			"err", err)
	}

	return err
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.started
}
