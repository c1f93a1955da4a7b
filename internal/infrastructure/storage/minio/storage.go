package minio

import (
	"context"
	"fmt"
	"io"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Storage keeps uploads in an S3 compatible bucket.
type Storage struct {
	client *miniogo.Client
	bucket string
}

func New(ctx context.Context, opts Options) (*Storage, error) {
	client, err := miniogo.New(opts.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}
	return &Storage{client: client, bucket: opts.Bucket}, nil
}

func (s *Storage) Save(ctx context.Context, key, contentType string, data io.Reader, size int64) error {
	// S3 has no create-only put on every deployment, so probe first. Keys are
	// fresh uuids; the probe only guards against misuse.
	if _, err := s.client.StatObject(ctx, s.bucket, key, miniogo.StatObjectOptions{}); err == nil {
		return domain.WrapError(domain.ErrBlobExists, "minio put", fmt.Errorf("object %q exists", key))
	} else if !isNotFound(err) {
		return resilience.WrapTemporaryIfNeeded("minio stat", err, classifyMinioError)
	}

	if size <= 0 {
		size = -1
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, data, size, miniogo.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return resilience.WrapTemporaryIfNeeded("minio put", err, classifyMinioError)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("minio get", err, classifyMinioError)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, domain.WrapError(domain.ErrBlobNotFound, "minio get", err)
		}
		return nil, resilience.WrapTemporaryIfNeeded("minio get", err, classifyMinioError)
	}
	return obj, nil
}

func isNotFound(err error) bool {
	resp := miniogo.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func classifyMinioError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	if resp := miniogo.ToErrorResponse(err); resp.StatusCode != 0 {
		code := resp.StatusCode
		if code == http.StatusTooManyRequests || code >= 500 {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
