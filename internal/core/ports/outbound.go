package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

// BlobStore keeps uploaded payloads. Save never overwrites an existing key.
type BlobStore interface {
	Save(ctx context.Context, key, contentType string, data io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// JobPublisher enqueues serialized job envelopes.
type JobPublisher interface {
	Publish(ctx context.Context, body []byte) error
}

// JobReceiver hands out peek-locked deliveries. Receive returns at most limit
// deliveries and waits no longer than wait for the first one.
type JobReceiver interface {
	Receive(ctx context.Context, limit int, wait time.Duration) ([]Delivery, error)
}

// Delivery is a locked message. Exactly one settle call is expected.
type Delivery interface {
	Body() []byte
	// Attempt is the broker delivery count, starting at 1.
	Attempt() int
	EnqueuedAt() time.Time
	Complete(ctx context.Context) error
	Abandon(ctx context.Context) error
	DeadLetter(ctx context.Context, reason string) error
}

// ResultStore persists processing results keyed by job id.
type ResultStore interface {
	Upsert(ctx context.Context, result domain.Result) error
	// Get returns domain.ErrResultNotFound when no result exists yet.
	Get(ctx context.Context, id string) (*domain.Result, error)
}

// Extractor turns a raw payload into model output.
type Extractor interface {
	Extract(ctx context.Context, job domain.Job, payload []byte) (domain.Extraction, error)
}

// ImageDescriber asks a vision model to describe an image.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, contentType string, image []byte) (string, error)
}

// TextSummarizer asks a text model for a summary.
type TextSummarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ContentModel is implemented by every LLM backend.
type ContentModel interface {
	ImageDescriber
	TextSummarizer
}
