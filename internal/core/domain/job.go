package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Job is the envelope published to the work queue. It is never mutated after
// ingress; the worker only overwrites Attempt with the broker delivery count.
type Job struct {
	ID               string    `json:"id"`
	BlobName         string    `json:"blob_name"`
	FileType         FileType  `json:"file_type"`
	OriginalFilename string    `json:"original_filename"`
	Timestamp        time.Time `json:"timestamp"`
	FileSizeBytes    int64     `json:"file_size_bytes,omitempty"`
	ContentType      string    `json:"content_type,omitempty"`
	Attempt          int       `json:"attempt,omitempty"`
}

// Upload is an accepted multipart file before it becomes a job.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Submission is returned to the ingress caller.
type Submission struct {
	ID         string   `json:"id"`
	ResultsURL string   `json:"results_url"`
	FileType   FileType `json:"file_type"`
}

func MarshalJob(job Job) ([]byte, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job envelope: %w", err)
	}
	return body, nil
}

// ParseJob decodes and validates an envelope. Every failure is permanent:
// retrying the same bytes cannot succeed.
func ParseJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, WrapError(ErrPermanent, "parse job envelope", err)
	}
	if strings.TrimSpace(job.ID) == "" {
		return Job{}, WrapError(ErrPermanent, "parse job envelope", errors.New("missing id"))
	}
	if strings.TrimSpace(job.BlobName) == "" {
		return Job{}, WrapError(ErrPermanent, "parse job envelope", errors.New("missing blob_name"))
	}
	fileType, err := ParseFileType(string(job.FileType))
	if err != nil {
		return Job{}, WrapError(ErrPermanent, "parse job envelope", err)
	}
	job.FileType = fileType
	return job, nil
}
