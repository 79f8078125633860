package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/adforge/internal/batch"
	"github.com/phrazzld/adforge/internal/config"
	"github.com/phrazzld/adforge/internal/events"
	"github.com/phrazzld/adforge/internal/platform/gemini"
	"github.com/phrazzld/adforge/internal/platform/postgres"
	"github.com/phrazzld/adforge/internal/platform/redis"
	"github.com/phrazzld/adforge/internal/platform/storage"
	"github.com/phrazzld/adforge/internal/service"
)

// worker holds the processor, the sweeper and the connections they share.
type worker struct {
	logger *slog.Logger

	redis  *goredis.Client
	db     *sql.DB
	assets storage.AssetStore

	processor *batch.Processor
	sweeper   *batch.Sweeper
}

func newWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*worker, error) {
	w := &worker{logger: logger}

	var err error
	w.redis, err = redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	w.db, err = postgres.Open(ctx, cfg.Database)
	if err != nil {
		w.cleanup()
		return nil, fmt.Errorf("failed to connect to archive database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, w.db, logger); err != nil {
			w.cleanup()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	w.assets, err = storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		w.cleanup()
		return nil, fmt.Errorf("failed to open asset storage: %w", err)
	}

	generator, err := gemini.NewImageGenerator(ctx, cfg.LLM, w.assets, logger)
	if err != nil {
		w.cleanup()
		return nil, fmt.Errorf("failed to initialize image generator: %w", err)
	}
	logger.Info("Image generator initialized", "model", cfg.LLM.ModelName)

	// Completed jobs are archived from the worker that finished their last task.
	emitter := events.NewInMemoryEventEmitter(logger)
	queue := redis.NewQueue(w.redis,
		redis.QueueConfigFrom(cfg.Redis, cfg.Queue),
		redis.WithLogger(logger),
		redis.WithEmitter(emitter))

	globalLimiter := redis.NewRateLimiter(w.redis, cfg.Redis.KeyPrefix,
		redis.RateLimiterConfigFrom(cfg.RateLimit), logger)
	limiter := batch.WithLocalBound(globalLimiter, cfg.RateLimit.LocalRPS, cfg.Queue.BatchSize)

	jobs, err := service.NewJobService(queue, postgres.NewJobArchiveStore(w.db), globalLimiter, logger)
	if err != nil {
		w.cleanup()
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}
	emitter.Subscribe(events.TypeJobCompleted, service.NewArchiveHandler(jobs, logger))

	w.processor, err = batch.NewProcessor(queue, limiter, generator, batch.NewConfig(cfg.Queue), logger)
	if err != nil {
		w.cleanup()
		return nil, fmt.Errorf("failed to create batch processor: %w", err)
	}
	w.sweeper = batch.NewSweeper(queue, cfg.Queue.SweepInterval(), logger)

	logger.Info("Worker initialized successfully")
	return w, nil
}

// Run drives the processor and the sweeper until ctx is cancelled. The
// processor drains its in-flight workers before returning.
func (w *worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.processor.Run(gctx) })
	g.Go(func() error { return w.sweeper.Run(gctx) })

	err := g.Wait()
	w.logger.Info("Worker stopped", "stats", w.processor.Stats())
	return err
}

func (w *worker) cleanup() {
	if c, ok := w.assets.(io.Closer); ok {
		if err := c.Close(); err != nil {
			w.logger.Error("Error closing asset storage", "error", err)
		}
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			w.logger.Error("Error closing database connection", "error", err)
		}
		w.db = nil
	}
	if w.redis != nil {
		if err := w.redis.Close(); err != nil {
			w.logger.Error("Error closing redis connection", "error", err)
		}
		w.redis = nil
	}
}
