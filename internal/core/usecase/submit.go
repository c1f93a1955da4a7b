package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
)

// sniffLen matches the mimetype default read limit.
const sniffLen = 3072

// SubmitObserver receives ingress events for metrics.
type SubmitObserver interface {
	BlobUploaded(fileType domain.FileType, size int64)
	JobPublished(fileType domain.FileType)
	OrphanBlob()
}

type noopSubmitObserver struct{}

func (noopSubmitObserver) BlobUploaded(domain.FileType, int64) {}
func (noopSubmitObserver) JobPublished(domain.FileType)        {}
func (noopSubmitObserver) OrphanBlob()                         {}

type SubmitUseCase struct {
	blobs      ports.BlobStore
	publisher  ports.JobPublisher
	resultsURL string
	logger     *slog.Logger
	observer   SubmitObserver

	newID func() string
	now   func() time.Time
}

func NewSubmitUseCase(
	blobs ports.BlobStore,
	publisher ports.JobPublisher,
	resultsURL string,
	logger *slog.Logger,
	observer SubmitObserver,
) *SubmitUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopSubmitObserver{}
	}
	return &SubmitUseCase{
		blobs:      blobs,
		publisher:  publisher,
		resultsURL: resultsURL,
		logger:     logger,
		observer:   observer,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Submit stores the upload and then publishes its job. The blob is fully
// written before the message exists, so a worker never sees a job whose
// payload is missing.
func (uc *SubmitUseCase) Submit(ctx context.Context, upload domain.Upload) (*domain.Submission, error) {
	if upload.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit", errors.New("missing file body"))
	}

	contentType, body, err := uc.resolveContentType(upload)
	if err != nil {
		return nil, err
	}
	fileType, ext, err := domain.ResolveMediaType(contentType)
	if err != nil {
		return nil, err
	}

	id := uc.newID()
	blobName := domain.BlobName(id, ext)
	if err := uc.blobs.Save(ctx, blobName, contentType, body, upload.Size); err != nil {
		return nil, fmt.Errorf("save to blob storage: %w", err)
	}
	uc.observer.BlobUploaded(fileType, upload.Size)

	job := domain.Job{
		ID:               id,
		BlobName:         blobName,
		FileType:         fileType,
		OriginalFilename: upload.Filename,
		Timestamp:        uc.now().UTC(),
		FileSizeBytes:    upload.Size,
		ContentType:      contentType,
		Attempt:          1,
	}
	envelope, err := domain.MarshalJob(job)
	if err != nil {
		return nil, err
	}
	if err := uc.publisher.Publish(ctx, envelope); err != nil {
		uc.observer.OrphanBlob()
		uc.logger.Warn("orphan_blob", "job_id", id, "blob_name", blobName, "error", err)
		return nil, fmt.Errorf("publish job: %w", err)
	}
	uc.observer.JobPublished(fileType)

	uc.logger.Info("job.submitted",
		"job_id", id,
		"blob_name", blobName,
		"file_type", fileType,
		"original_filename", upload.Filename,
		"file_size_bytes", upload.Size,
	)

	return &domain.Submission{
		ID:         id,
		ResultsURL: uc.resultsURL + "/" + id,
		FileType:   fileType,
	}, nil
}

// resolveContentType trusts the declared type unless it is missing or
// generic, in which case the leading bytes are sniffed. The returned reader
// replays any bytes consumed while sniffing.
func (uc *SubmitUseCase) resolveContentType(upload domain.Upload) (string, io.Reader, error) {
	declared := domain.NormalizeContentType(upload.ContentType)
	if declared != "" && declared != "application/octet-stream" {
		return declared, upload.Body, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(upload.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, fmt.Errorf("read upload head: %w", err)
	}
	head = head[:n]
	detected := domain.NormalizeContentType(mimetype.Detect(head).String())
	return detected, io.MultiReader(bytes.NewReader(head), upload.Body), nil
}
