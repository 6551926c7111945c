package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/pdfaccess/internal/app"
	"github.com/nikhilbhutani/pdfaccess/internal/config"
	"github.com/nikhilbhutani/pdfaccess/internal/queue"
	"github.com/nikhilbhutani/pdfaccess/internal/queue/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	app.NewLogger(cfg.Log)

	if !cfg.QueueEnabled() {
		slog.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start services", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
	)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeDocumentAnalyze, workers.NewAnalyzeWorker(a.Analysis))
	registry.Register(queue.TypeRemediationBulk, workers.NewBulkWorker(a.Bulk))

	slog.Info("starting worker", "concurrency", cfg.Worker.Concurrency)
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("shutting down worker...")
	srv.Shutdown()
	slog.Info("worker stopped")
}
