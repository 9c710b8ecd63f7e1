// Command trustcore-server runs the trust core's HTTP API: agent
// registry, event ledger, capability tokens, and reputation scoring
// (spec §6), wired the way the teacher's process entrypoints wire a
// store, a set of engines, and pkg/health.Server behind graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agenttrust/trustcore/internal/api"
	"github.com/agenttrust/trustcore/internal/authn"
	"github.com/agenttrust/trustcore/internal/capability"
	"github.com/agenttrust/trustcore/internal/config"
	"github.com/agenttrust/trustcore/internal/ledger"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/metrics"
	"github.com/agenttrust/trustcore/internal/ratelimit"
	"github.com/agenttrust/trustcore/internal/registry"
	"github.com/agenttrust/trustcore/internal/reputation"
	"github.com/agenttrust/trustcore/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "trustcore-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	log.Info("starting trust core", logger.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := postgres.NewStore(ctx, postgres.Config{
		Host: cfg.Postgres.Host, Port: cfg.Postgres.Port, User: cfg.Postgres.User,
		Password: cfg.Postgres.Password, Database: cfg.Postgres.Database,
		SSLMode: cfg.Postgres.SSLMode, MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer st.Close()

	reg := registry.New(st, log.WithFields(logger.String("component", "registry")))
	ldg := ledger.New(st, log.WithFields(logger.String("component", "ledger")))
	cap := capability.New(st, log.WithFields(logger.String("component", "capability")))
	rep := reputation.New(st, log.WithFields(logger.String("component", "reputation")))
	auth := authn.New(cfg.ServiceKey, cfg.AgentReplayWindow, reg)

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window,
		cfg.RateLimit.Grace, cfg.RateLimit.CleanupInterval)
	defer limiter.Stop()

	srv := api.NewServer(api.Deps{
		Registry: reg, Ledger: ldg, Capability: cap, Reputation: rep,
		Authn: auth, Limiter: limiter, Log: log.WithFields(logger.String("component", "api")),
		RateLimitWindow: cfg.RateLimit.Window,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(gctx, cfg.HTTPAddr)
	})

	if cfg.MetricsEnabled {
		go func() {
			log.Info("metrics server listening", logger.String("addr", cfg.MetricsAddr))
			if err := metrics.StartServer(cfg.MetricsAddr); err != nil {
				log.Error("metrics server stopped", logger.String("error", err.Error()))
			}
		}()
	}

	g.Go(func() error {
		runCapabilitySweep(gctx, cap, log, cfg.CapabilitySweepInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("trust core stopped cleanly")
	return nil
}

// runCapabilitySweep periodically expires due capabilities until ctx
// is cancelled (spec §4.4: expiry is also enforced lazily by Validate,
// so a missed or slow sweep never admits an expired token).
func runCapabilitySweep(ctx context.Context, cap *capability.Engine, log *logger.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := cap.ExpireSweep(ctx); err != nil {
				log.Error("capability sweep failed", logger.String("error", err.Error()))
			} else if n > 0 {
				log.Info("capability sweep", logger.Int64("expired", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
