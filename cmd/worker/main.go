package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	httpadapter "github.com/kirillkom/ai-processing-pipeline/internal/adapters/http"
	"github.com/kirillkom/ai-processing-pipeline/internal/bootstrap"
	"github.com/kirillkom/ai-processing-pipeline/internal/config"
	"github.com/kirillkom/ai-processing-pipeline/internal/observability/logging"
	"github.com/kirillkom/ai-processing-pipeline/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.RoleWorker, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", app.WorkerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	go func() {
		if err := httpadapter.Serve(ctx, ":"+cfg.WorkerMetricsPort, mux, 0, logger); err != nil {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	pool := worker.NewPool(app.Queue, app.ProcessUC, worker.Options{
		BatchSize:      cfg.BatchSize,
		MaxWait:        cfg.BatchMaxWait,
		IdleSleep:      cfg.WorkerIdleSleep,
		ProcessTimeout: cfg.WorkerProcessTimeout,
		Logger:         logger,
		Observer:       app.WorkerMetrics,
	})
	if err := pool.Run(ctx); err != nil {
		logger.Error("worker_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}
