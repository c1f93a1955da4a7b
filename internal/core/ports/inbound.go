package ports

import (
	"context"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

// JobSubmitter is the inbound contract for the ingress hand-off.
type JobSubmitter interface {
	Submit(ctx context.Context, upload domain.Upload) (*domain.Submission, error)
}

// JobProcessor settles a single delivery.
type JobProcessor interface {
	Handle(ctx context.Context, delivery Delivery) domain.Outcome
}

// StatusReader is the inbound read model for job state.
type StatusReader interface {
	Lookup(ctx context.Context, id string) (*domain.JobStatus, error)
}
