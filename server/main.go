package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/api"
	"github.com/meikuraledutech/workflow/autosave"
	"github.com/meikuraledutech/workflow/internal/config"
	"github.com/meikuraledutech/workflow/internal/logging"
	"github.com/meikuraledutech/workflow/layout"
	"github.com/meikuraledutech/workflow/metrics"
	"github.com/meikuraledutech/workflow/postgres"
	"github.com/meikuraledutech/workflow/redisstore"
	"github.com/meikuraledutech/workflow/session"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg := config.NewDefaultConfig()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := session.NewRegistry(store, session.Options{
		RefreshActionsAfterSave: cfg.Autosave.RefreshActionsAfterSave,
		Autosave:                autosaveConfig(cfg),
		Layout:                  layoutConfig(cfg),
		Logger:                  logger,
		Metrics:                 metrics.NewCollector(cfg.MetricsNamespace, reg),
	})
	defer registry.CloseAll()

	app := api.New(store, registry, reg, logger).App()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening", zap.String("addr", cfg.Addr),
			zap.String("store", cfg.Store))
		return app.Listen(cfg.Addr, fiber.ListenConfig{
			DisableStartupMessage: true,
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		sctx, cancel := context.WithTimeout(
			context.Background(), cfg.ShutdownTimeout,
		)
		defer cancel()
		return app.ShutdownWithContext(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(
	ctx context.Context, cfg *config.Config,
) (workflow.Store, func(), error) {
	var store workflow.Store
	var closeFn func()

	switch cfg.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = redisstore.New(client, cfg.Redis.Prefix)
		closeFn = func() { _ = client.Close() }
	default:
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		store = postgres.New(pool)
		closeFn = pool.Close
	}

	if err := store.CreateSchema(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("schema: %w", err)
	}
	return store, closeFn, nil
}

// autosaveConfig maps the configured timings. A configured zero window
// means no suppression, which the controller spells as a negative window.
func autosaveConfig(cfg *config.Config) autosave.Config {
	ac := autosave.Config{
		Delay:          cfg.Autosave.Delay,
		SuppressWindow: cfg.Autosave.SuppressWindow,
		SaveTimeout:    cfg.Autosave.SaveTimeout,
	}
	if ac.SuppressWindow == 0 {
		ac.SuppressWindow = -1
	}
	return ac
}

func layoutConfig(cfg *config.Config) layout.Config {
	lc := layout.DefaultConfig()
	lc.RankSep = cfg.Layout.RankSep
	lc.NodeSep = cfg.Layout.NodeSep
	return lc
}
