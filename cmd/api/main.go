package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	httpadapter "github.com/kirillkom/ai-processing-pipeline/internal/adapters/http"
	"github.com/kirillkom/ai-processing-pipeline/internal/bootstrap"
	"github.com/kirillkom/ai-processing-pipeline/internal/config"
	"github.com/kirillkom/ai-processing-pipeline/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.RoleIngress, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.SubmitUC, nil, app.HTTPMetrics).Handler()
	if err := httpadapter.Serve(ctx, ":"+cfg.APIPort, router, cfg.APIMaxConnections, logger); err != nil {
		logger.Error("api_server_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}
