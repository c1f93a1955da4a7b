package azureopenai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// DescribeImage sends the image inline as a base64 data URL.
func (c *Client) DescribeImage(ctx context.Context, contentType string, image []byte) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
	return c.complete(ctx, "describe_image", []message{
		{Role: "system", Content: c.cfg.Prompts.ImageSystem},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: c.cfg.Prompts.ImageUser},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		}},
	})
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, "summarize", []message{
		{Role: "system", Content: c.cfg.Prompts.SummarySystem},
		{Role: "user", Content: c.cfg.Prompts.SummaryUserMessage(text)},
	})
}

func (c *Client) complete(ctx context.Context, operation string, messages []message) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.request.start", "backend", "azureopenai", "req_id", rid, "operation", operation,
		"deployment", c.cfg.Deployment)

	body := map[string]any{"messages": messages}
	raw, err := resilience.Call(ctx, c.executor, "azureopenai."+operation, func(callCtx context.Context) ([]byte, error) {
		return c.post(callCtx, body)
	}, resilience.ClassifyHTTP)
	if err != nil {
		c.log.Error("llm.request.http_error", "backend", "azureopenai", "req_id", rid, "operation", operation,
			"error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", resilience.WrapTemporaryIfNeeded("azureopenai "+operation, err, resilience.ClassifyHTTP)
	}

	var cc completionResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode azure openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in azure openai response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("azure openai %s: empty model response (finish_reason=%s)", operation, cc.Choices[0].FinishReason)
	}

	c.log.Info("llm.request.ok", "backend", "azureopenai", "req_id", rid, "operation", operation,
		"response_len", len(content), "elapsed_ms", time.Since(start).Milliseconds())
	return content, nil
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.cfg.Endpoint, url.PathEscape(c.cfg.Deployment), url.QueryEscape(c.cfg.APIVersion))
}

func (c *Client) post(ctx context.Context, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure openai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read azure openai response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: truncate(string(raw), 2048)}
	}
	return raw, nil
}

// StatusError carries a non-2xx response from the service.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("azure openai status: %s", e.Status)
	}
	return fmt.Sprintf("azure openai status: %s: %s", e.Status, strings.TrimSpace(e.Body))
}

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

