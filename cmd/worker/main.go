// Package main implements the adforge worker. Each worker process runs the
// batch processor against the shared queue and, alongside it, the sweeper
// that reclaims expired leases. Any number of workers may share one Redis.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/adforge/internal/config"
	"github.com/phrazzld/adforge/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("adforge worker: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("Worker configuration loaded",
		"batch_size", cfg.Queue.BatchSize,
		"batch_interval_seconds", cfg.Queue.BatchIntervalSeconds,
		"worker_timeout_seconds", cfg.Queue.WorkerTimeoutSeconds,
		"storage_backend", cfg.Storage.Backend,
		"model", cfg.LLM.ModelName)

	w, err := newWorker(ctx, cfg, l)
	if err != nil {
		l.Error("failed to initialize worker", "error", err)
		return err
	}
	defer w.cleanup()

	return w.Run(ctx)
}
