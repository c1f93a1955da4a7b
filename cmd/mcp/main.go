package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/ai-processing-pipeline/internal/adapters/mcp"
	"github.com/kirillkom/ai-processing-pipeline/internal/bootstrap"
	"github.com/kirillkom/ai-processing-pipeline/internal/config"
	"github.com/kirillkom/ai-processing-pipeline/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol.
	logger := logging.NewStderrLogger("mcp", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.RoleMCP, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(app.StatusUC, version, logger)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}
