package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
)

type StatusUseCase struct {
	results    ports.ResultStore
	retryAfter time.Duration
}

func NewStatusUseCase(results ports.ResultStore, retryAfter time.Duration) *StatusUseCase {
	if retryAfter <= 0 {
		retryAfter = 5 * time.Second
	}
	return &StatusUseCase{results: results, retryAfter: retryAfter}
}

// Lookup reports completed when a result exists and processing otherwise.
// Unknown ids are reported as processing.
func (uc *StatusUseCase) Lookup(ctx context.Context, id string) (*domain.JobStatus, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "lookup status", errors.New("empty job id"))
	}

	result, err := uc.results.Get(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.ErrResultNotFound) {
			return &domain.JobStatus{ID: id, State: domain.JobStateProcessing, RetryAfter: uc.retryAfter}, nil
		}
		return nil, fmt.Errorf("read result: %w", err)
	}
	return &domain.JobStatus{ID: id, State: domain.JobStateCompleted, Result: result}, nil
}
