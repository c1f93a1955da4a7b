package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
)

const keyPrefix = "result:"

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	if opts.PoolSize == 0 {
		opts.PoolSize = 10
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// ResultCache is a read-through cache in front of a ResultStore. Only
// completed results are cached, so a pending job is always re-read from the
// backing store. Cache failures are logged and bypassed.
type ResultCache struct {
	next   ports.ResultStore
	client goredis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewResultCache(next ports.ResultStore, client goredis.UniversalClient, ttl time.Duration, logger *slog.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *ResultCache) Upsert(ctx context.Context, result domain.Result) error {
	if err := c.next.Upsert(ctx, result); err != nil {
		return err
	}
	c.store(ctx, &result)
	return nil
}

func (c *ResultCache) Get(ctx context.Context, id string) (*domain.Result, error) {
	raw, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	switch {
	case err == nil:
		var cached domain.Result
		if decodeErr := json.Unmarshal(raw, &cached); decodeErr == nil {
			return &cached, nil
		}
		c.logger.Warn("result_cache_decode_failed", "job_id", id)
	case errors.Is(err, goredis.Nil):
	default:
		c.logger.Warn("result_cache_read_failed", "job_id", id, "error", err)
	}

	result, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, result)
	return result, nil
}

func (c *ResultCache) store(ctx context.Context, result *domain.Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+result.ID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("result_cache_write_failed", "job_id", result.ID, "error", err)
	}
}
