package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
)

type ProcessUseCase struct {
	blobs       ports.BlobStore
	extractor   ports.Extractor
	results     ports.ResultStore
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

func NewProcessUseCase(
	blobs ports.BlobStore,
	extractor ports.Extractor,
	results ports.ResultStore,
	maxAttempts int,
	logger *slog.Logger,
) *ProcessUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessUseCase{
		blobs:       blobs,
		extractor:   extractor,
		results:     results,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// Handle processes one delivery and settles it exactly once. A result is
// written only after extraction succeeded; the delivery is completed only
// after the result is stored.
func (uc *ProcessUseCase) Handle(ctx context.Context, delivery ports.Delivery) domain.Outcome {
	attempt := delivery.Attempt()
	if uc.maxAttempts > 0 && attempt > uc.maxAttempts {
		return uc.deadLetter(ctx, delivery, attempt)
	}

	job, err := domain.ParseJob(delivery.Body())
	if err != nil {
		return uc.abandon(ctx, delivery, "", attempt, err)
	}
	job.Attempt = attempt

	uc.logger.Info("job.processing_started", "job_id", job.ID, "blob_name", job.BlobName, "file_type", job.FileType, "attempt", attempt)

	result, err := uc.process(ctx, job)
	if err != nil {
		return uc.abandon(ctx, delivery, job.ID, attempt, err)
	}

	if err := delivery.Complete(ctx); err != nil {
		// The result is stored; a redelivery overwrites it with the same key.
		uc.logger.Error("job.complete_failed", "job_id", job.ID, "attempt", attempt, "error", err)
	}
	uc.logger.Info("job.completed",
		"job_id", job.ID,
		"file_type", job.FileType,
		"attempt", attempt,
		"duration_ms", result.ProcessingEnd.Sub(result.ProcessingStart).Milliseconds(),
	)
	return domain.OutcomeCompleted
}

func (uc *ProcessUseCase) process(ctx context.Context, job domain.Job) (*domain.Result, error) {
	start := uc.now().UTC()

	payload, err := uc.download(ctx, job.BlobName)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("job.downloaded", "job_id", job.ID, "blob_name", job.BlobName, "size_bytes", len(payload))

	extraction, err := uc.extract(ctx, job, payload)
	if err != nil {
		return nil, err
	}

	result := domain.Result{
		ID:               job.ID,
		AIResponse:       extraction.Response,
		AISummary:        extraction.Summary,
		FileType:         job.FileType,
		BlobName:         job.BlobName,
		OriginalFilename: job.OriginalFilename,
		ContentType:      job.ContentType,
		FileSizeBytes:    int64(len(payload)),
		PageCount:        extraction.PageCount,
		ContentText:      extraction.ContentText,
		Attempt:          job.Attempt,
		ProcessingStart:  start,
		ProcessingEnd:    uc.now().UTC(),
	}
	if err := uc.results.Upsert(ctx, result); err != nil {
		return nil, fmt.Errorf("upsert result: %w", err)
	}
	return &result, nil
}

func (uc *ProcessUseCase) download(ctx context.Context, blobName string) ([]byte, error) {
	rc, err := uc.blobs.Open(ctx, blobName)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return payload, nil
}

func (uc *ProcessUseCase) extract(ctx context.Context, job domain.Job, payload []byte) (domain.Extraction, error) {
	extraction, err := uc.extractor.Extract(ctx, job, payload)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract %s: %w", job.FileType, err)
	}
	if extraction.Response == "" {
		return domain.Extraction{}, fmt.Errorf("extract %s: empty model response", job.FileType)
	}
	return extraction, nil
}

func (uc *ProcessUseCase) abandon(ctx context.Context, delivery ports.Delivery, jobID string, attempt int, cause error) domain.Outcome {
	uc.logger.Error("job.abandoned",
		"job_id", jobID,
		"attempt", attempt,
		"temporary", domain.IsKind(cause, domain.ErrTemporary),
		"permanent", domain.IsKind(cause, domain.ErrPermanent),
		"error", cause,
	)
	if err := delivery.Abandon(ctx); err != nil {
		uc.logger.Error("job.abandon_failed", "job_id", jobID, "attempt", attempt, "error", err)
	}
	return domain.OutcomeAbandoned
}

func (uc *ProcessUseCase) deadLetter(ctx context.Context, delivery ports.Delivery, attempt int) domain.Outcome {
	reason := fmt.Sprintf("exceeded %d delivery attempts", uc.maxAttempts)
	jobID := ""
	if job, err := domain.ParseJob(delivery.Body()); err == nil {
		jobID = job.ID
	}
	if err := delivery.DeadLetter(ctx, reason); err != nil {
		uc.logger.Error("job.dead_letter_failed", "job_id", jobID, "attempt", attempt, "error", err)
		if abandonErr := delivery.Abandon(ctx); abandonErr != nil {
			uc.logger.Error("job.abandon_failed", "job_id", jobID, "attempt", attempt, "error", abandonErr)
		}
		return domain.OutcomeAbandoned
	}
	uc.logger.Warn("job.dead_lettered", "job_id", jobID, "attempt", attempt, "reason", reason)
	return domain.OutcomeDeadLettered
}
