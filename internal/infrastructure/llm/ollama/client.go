package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/llm/prompts"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

type Options struct {
	Timeout            time.Duration
	Prompts            prompts.Prompts
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

// Client talks to the Ollama chat API. Images go to the vision model and
// document text to the text model.
type Client struct {
	baseURL     string
	visionModel string
	textModel   string
	prompts     prompts.Prompts
	httpClient  *http.Client
	executor    *resilience.Executor
	logger      *slog.Logger
}

func New(baseURL, visionModel, textModel string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	p := opts.Prompts
	if p == (prompts.Prompts{}) {
		p = prompts.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		visionModel: visionModel,
		textModel:   textModel,
		prompts:     p,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    opts.ResilienceExecutor,
		logger:      logger,
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (c *Client) DescribeImage(ctx context.Context, _ string, image []byte) (string, error) {
	return c.chat(ctx, "describe_image", chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{
			{Role: "system", Content: c.prompts.ImageSystem},
			{Role: "user", Content: c.prompts.ImageUser, Images: []string{base64.StdEncoding.EncodeToString(image)}},
		},
	})
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	return c.chat(ctx, "summarize", chatRequest{
		Model: c.textModel,
		Messages: []chatMessage{
			{Role: "system", Content: c.prompts.SummarySystem},
			{Role: "user", Content: c.prompts.SummaryUserMessage(text)},
		},
	})
}

func (c *Client) chat(ctx context.Context, operation string, req chatRequest) (string, error) {
	start := time.Now()
	resp, err := resilience.Call(ctx, c.executor, "ollama."+operation, func(callCtx context.Context) (chatResponse, error) {
		var out chatResponse
		err := c.postJSON(callCtx, "/api/chat", req, &out, operation)
		return out, err
	}, classifyOllamaError)
	if err != nil {
		c.logger.Error("llm.request_failed", "backend", "ollama", "operation", operation, "model", req.Model,
			"elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		return "", wrapTemporaryIfNeeded("ollama "+operation, err)
	}

	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", fmt.Errorf("ollama %s: empty model response", operation)
	}
	c.logger.Info("llm.request_ok", "backend", "ollama", "operation", operation, "model", req.Model,
		"elapsed_ms", time.Since(start).Milliseconds(), "response_len", len(content))
	return content, nil
}
