package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/config"
)

func localConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		BlobBackend:         "localfs",
		StoragePath:         t.TempDir(),
		QueueBackend:        "memory",
		ResultBackend:       "memory",
		LLMBackend:          "ollama",
		OllamaURL:           "http://127.0.0.1:11434",
		OllamaVisionModel:   "llava:7b",
		OllamaTextModel:     "llama3.1:8b",
		ProcessedBaseURL:    "http://localhost:8081/api/status",
		RetryAfter:          5 * time.Second,
		MaxDeliveryAttempts: 10,
		RetryMaxAttempts:    1,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWorkerWiresProcessUseCase(t *testing.T) {
	app, err := New(context.Background(), localConfig(t), RoleWorker, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.ProcessUC == nil || app.Queue == nil || app.Results == nil || app.WorkerMetrics == nil {
		t.Fatalf("expected worker collaborators to be wired: %+v", app)
	}
	if app.SubmitUC != nil || app.StatusUC != nil {
		t.Fatal("worker must not build ingress or status use cases")
	}
}

func TestNewIngressDoesNotOpenResultStore(t *testing.T) {
	cfg := localConfig(t)
	cfg.ResultBackend = "does-not-exist"

	app, err := New(context.Background(), cfg, RoleIngress, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.SubmitUC == nil || app.HTTPMetrics == nil {
		t.Fatal("expected ingress use case and metrics")
	}
	if app.Results != nil {
		t.Fatal("ingress must not open the result store")
	}
}

func TestNewStatusBuildsStatusUseCase(t *testing.T) {
	app, err := New(context.Background(), localConfig(t), RoleStatus, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.StatusUC == nil || app.HTTPMetrics == nil {
		t.Fatal("expected status use case and metrics")
	}
	if app.Queue != nil {
		t.Fatal("status service must not open the queue")
	}
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		role   Role
		want   string
	}{
		{"blob", func(c *config.Config) { c.BlobBackend = "ftp" }, RoleIngress, "BLOB_BACKEND"},
		{"queue", func(c *config.Config) { c.QueueBackend = "kafka" }, RoleIngress, "QUEUE_BACKEND"},
		{"results", func(c *config.Config) { c.ResultBackend = "mongo" }, RoleStatus, "RESULT_BACKEND"},
		{"llm", func(c *config.Config) { c.LLMBackend = "gpt2" }, RoleWorker, "LLM_BACKEND"},
		{"role", func(*config.Config) {}, Role("scheduler"), "unknown role"},
	}
	for _, tc := range cases {
		cfg := localConfig(t)
		tc.mutate(&cfg)
		_, err := New(context.Background(), cfg, tc.role, quietLogger())
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error mentioning %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCloseRunsInReverseOrderOnce(t *testing.T) {
	var order []int
	app := &App{}
	app.onClose(func() { order = append(order, 1) })
	app.onClose(nil)
	app.onClose(func() { order = append(order, 2) })

	app.Close()
	app.Close()

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected close order: %v", order)
	}
}
