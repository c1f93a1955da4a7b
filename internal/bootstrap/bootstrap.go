package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/config"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/usecase"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/ai-processing-pipeline/internal/observability/metrics"
)

// Role selects which collaborators a process needs. The ingress never opens
// the result store and the status service never touches the queue.
type Role string

const (
	RoleIngress Role = "api"
	RoleStatus  Role = "status"
	RoleWorker  Role = "worker"
	RoleMCP     Role = "mcp"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	HTTPMetrics   *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	Queue   JobQueue
	Results ports.ResultStore

	SubmitUC  *usecase.SubmitUseCase
	StatusUC  *usecase.StatusUseCase
	ProcessUC *usecase.ProcessUseCase

	closers []func()
}

// JobQueue is implemented by every queue backend.
type JobQueue interface {
	ports.JobPublisher
	ports.JobReceiver
}

func New(ctx context.Context, cfg config.Config, role Role, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	executor := resilience.NewExecutor(resilience.Tuned(
		cfg.RetryMaxAttempts,
		cfg.BreakerEnabled,
		cfg.BreakerOpenTimeout,
		cfg.BreakerFailureRatio,
	)).WithLogger(logger)

	var err error
	switch role {
	case RoleIngress:
		err = app.initIngress(ctx, executor)
	case RoleStatus, RoleMCP:
		err = app.initStatus(ctx, role)
	case RoleWorker:
		err = app.initWorker(ctx, executor)
	default:
		err = fmt.Errorf("unknown role %q", role)
	}
	if err != nil {
		app.Close()
		return nil, err
	}

	logger.Info("bootstrap.ready",
		"role", role,
		"blob_backend", cfg.BlobBackend,
		"queue_backend", cfg.QueueBackend,
		"result_backend", cfg.ResultBackend,
		"llm_backend", cfg.LLMBackend,
	)
	return app, nil
}

func (a *App) initIngress(ctx context.Context, executor *resilience.Executor) error {
	blobs, err := newBlobStore(ctx, a.Config)
	if err != nil {
		return fmt.Errorf("init blob storage: %w", err)
	}
	queue, closeQueue, err := newJobQueue(ctx, a.Config, executor, a.Logger)
	if err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	a.onClose(closeQueue)
	a.Queue = queue

	a.HTTPMetrics = metrics.NewHTTPServerMetrics(string(RoleIngress))
	a.SubmitUC = usecase.NewSubmitUseCase(blobs, queue, a.Config.ProcessedBaseURL, a.Logger, a.HTTPMetrics)
	return nil
}

func (a *App) initStatus(ctx context.Context, role Role) error {
	results, closeResults, err := newResultStore(ctx, a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("init result store: %w", err)
	}
	a.onClose(closeResults)
	a.Results = results

	if role == RoleStatus {
		a.HTTPMetrics = metrics.NewHTTPServerMetrics(string(RoleStatus))
	}
	a.StatusUC = usecase.NewStatusUseCase(results, a.Config.RetryAfter)
	return nil
}

func (a *App) initWorker(ctx context.Context, executor *resilience.Executor) error {
	blobs, err := newBlobStore(ctx, a.Config)
	if err != nil {
		return fmt.Errorf("init blob storage: %w", err)
	}
	queue, closeQueue, err := newJobQueue(ctx, a.Config, executor, a.Logger)
	if err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	a.onClose(closeQueue)
	a.Queue = queue

	results, closeResults, err := newResultStore(ctx, a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("init result store: %w", err)
	}
	a.onClose(closeResults)
	a.Results = results

	model, err := newContentModel(a.Config, executor, a.Logger)
	if err != nil {
		return fmt.Errorf("init llm: %w", err)
	}
	extractor := newExtractor(a.Config, model, a.Logger)

	a.WorkerMetrics = metrics.NewWorkerMetrics(string(RoleWorker))
	a.ProcessUC = usecase.NewProcessUseCase(blobs, extractor, results, a.Config.MaxDeliveryAttempts, a.Logger)
	return nil
}

func (a *App) onClose(fn func()) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

// Close releases clients in reverse order of construction.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func closeWithTimeout(fn func(ctx context.Context) error, logger *slog.Logger, name string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Warn("bootstrap.close_failed", "component", name, "error", err)
		}
	}
}
