package cosmos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/resilience"
)

type Options struct {
	AccountURL       string
	ConnectionString string
	Database         string
	Container        string
}

// ResultRepository stores one item per job; the job id is both the item id
// and the partition key.
type ResultRepository struct {
	container *azcosmos.ContainerClient
}

func New(opts Options) (*ResultRepository, error) {
	var (
		client *azcosmos.Client
		err    error
	)
	switch {
	case opts.ConnectionString != "":
		client, err = azcosmos.NewClientFromConnectionString(opts.ConnectionString, nil)
	case opts.AccountURL != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("cosmos credential: %w", credErr)
		}
		client, err = azcosmos.NewClient(opts.AccountURL, cred, nil)
	default:
		return nil, fmt.Errorf("cosmos: COSMOS_ACCOUNT_URL or COSMOS_CONNECTION_STRING is required")
	}
	if err != nil {
		return nil, fmt.Errorf("cosmos client: %w", err)
	}

	container, err := client.NewContainer(opts.Database, opts.Container)
	if err != nil {
		return nil, fmt.Errorf("cosmos container: %w", err)
	}
	return &ResultRepository{container: container}, nil
}

func (r *ResultRepository) Upsert(ctx context.Context, result domain.Result) error {
	item, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if _, err := r.container.UpsertItem(ctx, azcosmos.NewPartitionKeyString(result.ID), item, nil); err != nil {
		return resilience.WrapTemporaryIfNeeded("cosmos upsert", fmt.Errorf("cosmos upsert: %w", err), classifyCosmosError)
	}
	return nil
}

func (r *ResultRepository) Get(ctx context.Context, id string) (*domain.Result, error) {
	resp, err := r.container.ReadItem(ctx, azcosmos.NewPartitionKeyString(id), id, nil)
	if err != nil {
		if isNotFound(err) || isUnaddressableID(err) {
			return nil, domain.WrapError(domain.ErrResultNotFound, "get result", err)
		}
		return nil, resilience.WrapTemporaryIfNeeded("cosmos read", fmt.Errorf("cosmos read: %w", err), classifyCosmosError)
	}
	return decodeResult(resp.Value)
}

func decodeResult(raw []byte) (*domain.Result, error) {
	var result domain.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// isUnaddressableID reports a read rejected because the id cannot name an
// item (for example it contains '#' or '?'). No result can exist under it.
func isUnaddressableID(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusBadRequest
}

func classifyCosmosError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusTooManyRequests,
			respErr.StatusCode == http.StatusRequestTimeout,
			respErr.StatusCode >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
