package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	learnrpc "github.com/roasbeef/learnhub/internal/api/grpc"
	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/roasbeef/learnhub/internal/build"
	"github.com/roasbeef/learnhub/internal/cache"
	"github.com/roasbeef/learnhub/internal/config"
	"github.com/roasbeef/learnhub/internal/llm"
	"github.com/roasbeef/learnhub/internal/mcp"
	"github.com/roasbeef/learnhub/internal/plan"
	"github.com/roasbeef/learnhub/internal/ratelimit"
	"github.com/roasbeef/learnhub/internal/store"
	"github.com/roasbeef/learnhub/internal/summary"
	"github.com/roasbeef/learnhub/internal/transcript"
	"github.com/roasbeef/learnhub/internal/web"
	"golang.org/x/sync/errgroup"
)

const (
	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 15 * time.Second

	// probePlanKey is polled by the readiness check. It is never stored.
	probePlanKey = "readiness@learnhub.invalid"
)

// runDaemon wires every component and blocks until a signal arrives or a
// server fails.
func runDaemon(ctx context.Context, cfg *config.Config,
	withMCP bool) error {

	if ctx == nil {
		ctx = context.Background()
	}

	log, closeLog, err := build.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "Starting learnhubd",
		"version", build.VersionString())

	if cfg.LLM.APIKey == "" {
		log.WarnContext(ctx, "No LLM API key configured, summaries "+
			"will fail until one is set")
	}

	// Storage.
	planStore, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open plan store: %w", err)
	}
	defer planStore.Close()

	summaryCache, l1, closeCache := openSummaryCache(ctx, cfg, log)
	defer closeCache()

	// Services.
	provider := transcript.NewYouTube(cfg.Transcript, log)
	summaries := summary.NewService(
		cfg.Summary, llm.NewGemini(cfg.LLM, log), summaryCache, log,
		summary.WithProvider(provider),
	)
	if err := summaries.Validate(); err != nil {
		return err
	}

	exchange := plan.NewExchange(cfg.Plan, planStore, log)
	defer exchange.WaitNotifications()

	if cfg.Plan.WorkflowURL == "" {
		log.WarnContext(ctx, "No workflow URL configured, plan "+
			"submissions will be rejected")
	}

	limiter := ratelimit.NewLimiter()

	webCfg := cfg.Web
	webCfg.Version = build.Version()
	webServer := web.NewServer(webCfg, web.Deps{
		Summaries:    summaries,
		Plans:        exchange,
		Transcripts:  provider,
		SummaryCache: summaryCache,
		Limiter:      limiter,
		StoreBackend: storeLabel(cfg.Store.Backend, planStore),
	}, log)

	// gRPC health binds before HTTP so a failed start leaves nothing
	// serving.
	var grpcServer *learnrpc.Server
	if addr := cfg.GRPC.ListenAddr; addr != "" && addr != "off" {
		checks := map[string]learnrpc.CheckFunc{
			"learnhub.Summaries": func(context.Context) error {
				return summaries.Validate()
			},
			"learnhub.Plans": func(ctx context.Context) error {
				_, err := exchange.Poll(ctx, probePlanKey)
				if apperr.Is(err, apperr.KindNotFound) {
					return nil
				}

				return err
			},
		}

		grpcServer = learnrpc.NewServer(cfg.GRPC, checks, log)
		if err := grpcServer.Start(); err != nil {
			return fmt.Errorf("start grpc: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(webServer.Start)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		return webServer.Shutdown(shutdownCtx)
	})

	if grpcServer != nil {
		g.Go(func() error {
			grpcServer.RunChecks(gctx)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return grpcServer.Stop()
		})
	}

	// Sweepers.
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = config.DefaultSweepInterval
	}
	g.Go(func() error {
		l1.RunSweeper(gctx, interval)
		return nil
	})
	g.Go(func() error {
		limiter.RunSweeper(gctx, interval, cfg.Web.RateWindow)
		return nil
	})
	g.Go(func() error {
		exchange.RunSweeper(gctx, interval)
		return nil
	})

	// MCP on stdio ends the daemon when the client disconnects.
	if withMCP {
		mcpServer := mcp.NewServer(mcp.Config{
			Version: build.Version(),
		}, &mcp.Local{
			Summaries:   summaries,
			Transcripts: provider,
			Plans:       exchange,
		}, log)

		g.Go(func() error {
			defer stop()

			err := mcpServer.Run(gctx, &sdkmcp.StdioTransport{})
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})
	}

	err = g.Wait()
	log.InfoContext(context.Background(), "learnhubd stopped", "err", err)

	return err
}

// openSummaryCache builds the summary cache, adding the redis tier when one
// is configured and reachable.
func openSummaryCache(ctx context.Context, cfg *config.Config,
	log *slog.Logger) (*cache.Tiered[summary.Result],
	*cache.Cache[summary.Result], func()) {

	l1 := cache.New[summary.Result]()

	var (
		remote  cache.Remote
		closeFn = func() {}
	)
	if cfg.Cache.RedisURL != "" {
		client, err := cache.DialRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			log.WarnContext(ctx, "Redis cache tier unavailable, "+
				"using memory only", "err", err)
		} else {
			remote = cache.NewRedisRemote(client)
			closeFn = func() { _ = client.Close() }
		}
	}

	tiered := cache.NewTiered(
		l1, remote, cfg.Cache.Prefix, cfg.Summary.CacheTTL, log,
	)

	return tiered, l1, closeFn
}

// storeLabel names the plan store actually in use, which is memory when the
// configured backend could not be opened.
func storeLabel(configured store.Backend, s store.PlanStore) string {
	if _, ok := s.(*store.MemoryStore); ok {
		return string(store.BackendMemory)
	}

	return string(configured)
}
