package azureopenai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestDescribeImageBuildsVisionRequest(t *testing.T) {
	var (
		gotPath    string
		gotQuery   string
		gotKey     string
		gotPayload map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"A dog on a beach."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL + "/", APIKey: "secret", Deployment: "gpt-4o"}, nil, quietLogger())
	got, err := client.DescribeImage(context.Background(), "image/png", []byte{0x89, 0x50})
	if err != nil {
		t.Fatalf("DescribeImage() error = %v", err)
	}
	if got != "A dog on a beach." {
		t.Fatalf("unexpected description %q", got)
	}
	if gotPath != "/openai/deployments/gpt-4o/chat/completions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "2024-10-21" {
		t.Fatalf("expected default api version, got %q", gotQuery)
	}
	if gotKey != "secret" {
		t.Fatalf("expected api-key header, got %q", gotKey)
	}

	raw, _ := json.Marshal(gotPayload)
	if !strings.Contains(string(raw), `data:image/png;base64,iVA=`) {
		t.Fatalf("expected png data url in payload, got %s", raw)
	}
	if !strings.Contains(string(raw), "Describe this picture:") {
		t.Fatalf("expected vision prompt in payload, got %s", raw)
	}
}

func TestSummarizeRetriesThrottling(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, `{"error":{"code":"429"}}`, http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"summary"}}]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
	}).WithLogger(quietLogger())
	client := NewClient(Config{Endpoint: server.URL, Deployment: "d"}, exec, quietLogger())

	got, err := client.Summarize(context.Background(), "long text")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "summary" || calls != 2 {
		t.Fatalf("expected summary after retry, got %q in %d calls", got, calls)
	}
}

func TestServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Deployment: "d"}, nil, quietLogger())
	_, err := client.Summarize(context.Background(), "text")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestEmptyChoicesIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Deployment: "d"}, nil, quietLogger())
	if _, err := client.Summarize(context.Background(), "text"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestContentFilterEmptyContentIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Deployment: "d"}, nil, quietLogger())
	_, err := client.DescribeImage(context.Background(), "image/jpeg", []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "content_filter") {
		t.Fatalf("expected empty content error with finish reason, got %v", err)
	}
}
