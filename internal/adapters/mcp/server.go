package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
)

const (
	serverName    = "ai-processing-pipeline"
	JobStatusTool = "job_status"
)

type jobStatusResult struct {
	domain.StatusView
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

type handlers struct {
	status ports.StatusReader
	logger *slog.Logger
}

// NewServer exposes status lookups as MCP tools.
func NewServer(status ports.StatusReader, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{status: status, logger: logger}

	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(jobStatusToolDefinition(), h.jobStatus)
	return s
}

func jobStatusToolDefinition() mcp.Tool {
	return mcp.NewTool(JobStatusTool,
		mcp.WithDescription("Look up a processing job by id. Returns the AI result when the job has completed, otherwise a processing message with a retry hint."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Job id returned by POST /api/process."),
		),
	)
}

func (h *handlers) jobStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := h.status.Lookup(ctx, id)
	if err != nil {
		h.logger.Error("mcp.job_status_failed", "job_id", id, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := jobStatusResult{StatusView: status.View()}
	if status.State != domain.JobStateCompleted {
		result.RetryAfterSeconds = max(1, int(math.Ceil(status.RetryAfter.Seconds())))
	}
	body, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(body)), nil
}
