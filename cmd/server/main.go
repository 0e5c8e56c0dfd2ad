package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playtrivia/knockout/internal/breaker"
	"github.com/playtrivia/knockout/internal/config"
	"github.com/playtrivia/knockout/internal/database"
	"github.com/playtrivia/knockout/internal/dispatch"
	"github.com/playtrivia/knockout/internal/gamestate"
	"github.com/playtrivia/knockout/internal/lock"
	"github.com/playtrivia/knockout/internal/migrations"
	"github.com/playtrivia/knockout/internal/orchestrator"
	"github.com/playtrivia/knockout/internal/server"
	"github.com/playtrivia/knockout/internal/store"
	"github.com/playtrivia/knockout/internal/workerpool"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite (durable record) ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	// --- Redis (shared state, locks, dedup) ---
	// Startup succeeds without Redis: the engine then runs single-process on
	// local memory, with no cross-process visibility or crash recovery.
	rdb, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, running in memory-only degraded mode", "error", err)
		rdb = nil
	} else {
		defer rdb.Close()
		logger.Info("connected to redis")
	}

	memStates := gamestate.NewMemoryStore()
	var (
		states gamestate.Store  = memStates
		locks  lock.Locker      = lock.NewMemoryLocker()
		dedup  dispatch.Deduper = dispatch.NewMemoryDeduper()
	)
	if rdb != nil {
		states = gamestate.NewFallback(gamestate.NewRedisStore(rdb), memStates, logger)
		locks = lock.NewFallback(lock.NewRedisLocker(rdb), lock.NewMemoryLocker(), logger)
		dedup = dispatch.NewFallbackDeduper(dispatch.NewRedisDeduper(rdb), dispatch.NewMemoryDeduper())
	}

	// --- Engine ---
	durable := store.New(db)
	queue := dispatch.NewQueue(dispatch.NewLogGateway(logger), dedup, logger, dispatch.Options{
		BatchSize:   cfg.BatchSize,
		BatchWindow: cfg.BatchWindow,
		DedupTTL:    cfg.DedupTTL,
		MaxRetries:  cfg.MaxRetries,
	})
	defer queue.Close()

	brk := breaker.New(cfg.BreakerThreshold, cfg.BreakerMinSamples, cfg.BreakerWindow, cfg.BreakerCooldown, logger)
	pool := workerpool.New(cfg.WorkerCount, cfg.WorkerTimeout, logger, orchestrator.PoolHandlers())

	orch := orchestrator.New(logger, states, locks, durable, queue, brk, pool, orchestrator.Config{
		StartDelay:    cfg.StartDelay,
		QuestionTimer: cfg.QuestionTimer,
		QuestionGap:   cfg.QuestionGap,
		StateTTL:      cfg.StateTTL,
		LockTTL:       cfg.LockTTL,
		SweepInterval: cfg.SweepInterval,
		BulkThreshold: cfg.BulkThreshold,
	})

	if err := orch.Recover(ctx); err != nil {
		logger.Error("recovering in-flight games", "error", err)
	}

	// --- HTTP control surface ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Orchestrator: orch,
		DB:           db,
		Redis:        rdb,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		if err := orch.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
