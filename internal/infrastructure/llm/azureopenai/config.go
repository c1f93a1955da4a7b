package azureopenai

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/llm/prompts"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

const defaultAPIVersion = "2024-10-21"

// Config for the Azure OpenAI chat completions client.
type Config struct {
	Endpoint   string // https://<resource>.openai.azure.com
	APIKey     string
	Deployment string
	APIVersion string
	Timeout    time.Duration
	Prompts    prompts.Prompts
}

type Client struct {
	cfg      Config
	http     *http.Client
	executor *resilience.Executor
	log      *slog.Logger
}

func NewClient(cfg Config, executor *resilience.Executor, logger *slog.Logger) *Client {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Prompts == (prompts.Prompts{}) {
		cfg.Prompts = prompts.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		executor: executor,
		log:      logger,
	}
}
