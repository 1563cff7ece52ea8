package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/doclane/doclane/internal/app"
	"github.com/doclane/doclane/internal/config"
	"github.com/doclane/doclane/internal/logger"
	"github.com/doclane/doclane/internal/service"
	"github.com/doclane/doclane/internal/task"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)

	app, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		panic(err)
	}
	defer func() {
		closeErr := app.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := task.NewRunner(app.Queue, cfg.WorkerConcurrency)
	if err != nil {
		slog.Error("failed to create task runner", "error", err)
		panic(err)
	}

	handlers := service.NewTaskHandlers(app.FileRepository, app.Store, app.Staging, app.VectorizeService)
	handlers.Register(runner)

	go reconcileLoop(ctx, app.VectorizeService, cfg.ReconcileInterval)

	slog.Info("worker starting", "concurrency", cfg.WorkerConcurrency, "queue", cfg.TaskQueue)
	if err := runner.Start(ctx); err != nil {
		slog.Error("task runner failed", "error", err)
		panic(err)
	}
}

// reconcileLoop periodically clears chunks of vectorized documents
// whose validity window has closed.
func reconcileLoop(ctx context.Context, vectorize *service.VectorizeService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := vectorize.ReconcileExpired(ctx, time.Now().UTC())
			if err != nil {
				slog.Error("expiry reconciliation failed", "error", err)
				continue
			}
			if count > 0 {
				slog.Info("expired documents reconciled", "count", count)
			}
		}
	}
}
