package azblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

type Options struct {
	AccountURL       string
	ConnectionString string
	Container        string
}

// Storage writes uploads to a single Azure Blob container.
type Storage struct {
	client    *azblob.Client
	container string
}

func New(ctx context.Context, opts Options) (*Storage, error) {
	if strings.TrimSpace(opts.Container) == "" {
		return nil, fmt.Errorf("azblob: container is required")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case opts.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(opts.ConnectionString, nil)
	case opts.AccountURL != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("azblob credential: %w", credErr)
		}
		client, err = azblob.NewClient(opts.AccountURL, cred, nil)
	default:
		return nil, fmt.Errorf("azblob: STORAGE_ACCOUNT_URL or STORAGE_CONNECTION_STRING is required")
	}
	if err != nil {
		return nil, fmt.Errorf("azblob client: %w", err)
	}

	if _, err := client.CreateContainer(ctx, opts.Container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("azblob ensure container: %w", err)
	}
	return &Storage{client: client, container: opts.Container}, nil
}

func (s *Storage) Save(ctx context.Context, key, contentType string, data io.Reader, _ int64) error {
	opts := &azblob.UploadStreamOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: to.Ptr(azcore.ETagAny)},
		},
	}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)}
	}

	_, err := s.client.UploadStream(ctx, s.container, key, data, opts)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return domain.WrapError(domain.ErrBlobExists, "azblob upload", err)
		}
		return resilience.WrapTemporaryIfNeeded("azblob upload", err, classifyBlobError)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, domain.WrapError(domain.ErrBlobNotFound, "azblob download", err)
		}
		return nil, resilience.WrapTemporaryIfNeeded("azblob download", err, classifyBlobError)
	}
	return resp.Body, nil
}

func classifyBlobError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return resilience.ClassifyHTTP(statusError(respErr.StatusCode))
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

type statusError int

func (e statusError) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusError) HTTPStatusCode() int { return int(e) }
