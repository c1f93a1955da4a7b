package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/ai-processing-pipeline/internal/config"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
	rediscache "github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/cache/redis"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/extractor"
	imageextractor "github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/extractor/image"
	pdfextractor "github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/llm/azureopenai"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/llm/prompts"
	memqueue "github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/queue/memory"
	natsqueue "github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/queue/rabbitmq"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/queue/servicebus"
	sqsqueue "github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/queue/sqs"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/repository/cosmos"
	memrepo "github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/repository/memory"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/storage/azblob"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/storage/localfs"
	miniostorage "github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/storage/minio"
)

func newBlobStore(ctx context.Context, cfg config.Config) (ports.BlobStore, error) {
	switch cfg.BlobBackend {
	case "localfs":
		return localfs.New(cfg.StoragePath)
	case "azblob":
		return azblob.New(ctx, azblob.Options{
			AccountURL:       cfg.StorageAccountURL,
			ConnectionString: cfg.StorageConnectionString,
			Container:        cfg.StorageContainer,
		})
	case "minio":
		return miniostorage.New(ctx, miniostorage.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

func newJobQueue(ctx context.Context, cfg config.Config, executor *resilience.Executor, logger *slog.Logger) (JobQueue, func(), error) {
	switch cfg.QueueBackend {
	case "nats":
		queue, err := natsqueue.NewWithOptions(ctx, cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
			Stream:             cfg.NATSStream,
			Consumer:           cfg.NATSConsumer,
			DeadLetterSubject:  cfg.NATSDeadLetterSubject,
			AckWait:            cfg.NATSAckWait,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return queue, queue.Close, nil
	case "servicebus":
		queue, err := servicebus.New(servicebus.Options{
			FQDN:               cfg.ServiceBusFQDN,
			ConnectionString:   cfg.ServiceBusConnectionString,
			Queue:              cfg.ServiceBusQueue,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, nil, err
		}
		return queue, closeWithTimeout(queue.Close, logger, "servicebus"), nil
	case "rabbitmq":
		queue, err := rabbitmq.New(rabbitmq.Options{
			URL:                cfg.RabbitMQURL,
			Queue:              cfg.RabbitMQQueue,
			DeadLetterQueue:    cfg.RabbitMQDeadLetterQueue,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, nil, err
		}
		return queue, func() {
			if err := queue.Close(); err != nil {
				logger.Warn("bootstrap.close_failed", "component", "rabbitmq", "error", err)
			}
		}, nil
	case "sqs":
		queue, err := sqsqueue.New(ctx, sqsqueue.Options{
			QueueURL:           cfg.SQSQueueURL,
			DeadLetterQueueURL: cfg.SQSDeadLetterQueueURL,
			Region:             cfg.AWSRegion,
			VisibilityTimeout:  cfg.SQSVisibilityTimeout,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, nil, err
		}
		return queue, nil, nil
	case "memory":
		logger.Warn("bootstrap.memory_queue", "detail", "in-process queue is not shared between processes")
		return memqueue.New(cfg.WorkerProcessTimeout), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
}

func newResultStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.ResultStore, func(), error) {
	var (
		store      ports.ResultStore
		closeStore func()
	)
	switch cfg.ResultBackend {
	case "postgres":
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewResultRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		store = repo
		closeStore = func() { _ = db.Close() }
	case "cosmos":
		repo, err := cosmos.New(cosmos.Options{
			AccountURL:       cfg.CosmosAccountURL,
			ConnectionString: cfg.CosmosConnectionString,
			Database:         cfg.CosmosDBName,
			Container:        cfg.CosmosContainerName,
		})
		if err != nil {
			return nil, nil, err
		}
		store = repo
	case "memory":
		logger.Warn("bootstrap.memory_results", "detail", "in-process result store is not shared between processes")
		store = memrepo.NewResultStore()
	default:
		return nil, nil, fmt.Errorf("unknown RESULT_BACKEND %q", cfg.ResultBackend)
	}

	if cfg.ResultCacheURL == "" {
		return store, closeStore, nil
	}
	client, err := rediscache.NewClient(ctx, cfg.ResultCacheURL)
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, nil, fmt.Errorf("init result cache: %w", err)
	}
	return rediscache.NewResultCache(store, client, cfg.ResultCacheTTL, logger), func() {
		_ = client.Close()
		if closeStore != nil {
			closeStore()
		}
	}, nil
}

func newContentModel(cfg config.Config, executor *resilience.Executor, logger *slog.Logger) (ports.ContentModel, error) {
	p, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	switch cfg.LLMBackend {
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.OllamaVisionModel, cfg.OllamaTextModel, ollama.Options{
			Timeout:            cfg.LLMTimeout,
			Prompts:            p,
			ResilienceExecutor: executor,
			Logger:             logger,
		}), nil
	case "azureopenai":
		if cfg.AzureOpenAIEndpoint == "" {
			return nil, fmt.Errorf("AZURE_OPENAI_ENDPOINT is required for LLM_BACKEND=azureopenai")
		}
		return azureopenai.NewClient(azureopenai.Config{
			Endpoint:   cfg.AzureOpenAIEndpoint,
			APIKey:     cfg.AzureOpenAIAPIKey,
			Deployment: cfg.AzureOpenAIDeploymentName,
			APIVersion: cfg.AzureOpenAIAPIVersion,
			Timeout:    cfg.LLMTimeout,
			Prompts:    p,
		}, executor, logger), nil
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND %q", cfg.LLMBackend)
	}
}

func newExtractor(cfg config.Config, model ports.ContentModel, logger *slog.Logger) ports.Extractor {
	return extractor.NewRegistry(
		imageextractor.NewExtractor(model),
		pdfextractor.NewExtractor(model, pdfextractor.Options{
			MaxTokens:      cfg.PDFMaxTokens,
			MaxConcurrency: cfg.PDFMaxConcurrency,
			Logger:         logger,
		}),
	)
}
