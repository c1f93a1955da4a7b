package cosmos

import (
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("read: %w", &azcore.ResponseError{StatusCode: 404})) {
		t.Fatalf("expected wrapped 404 to be not found")
	}
	if isNotFound(&azcore.ResponseError{StatusCode: 500}) {
		t.Fatalf("expected 500 not to be not found")
	}
}

func TestIsUnaddressableID(t *testing.T) {
	if !isUnaddressableID(fmt.Errorf("read: %w", &azcore.ResponseError{StatusCode: 400, ErrorCode: "BadRequest"})) {
		t.Fatalf("expected wrapped 400 to be unaddressable")
	}
	if isUnaddressableID(&azcore.ResponseError{StatusCode: 404}) {
		t.Fatalf("expected 404 not to be unaddressable")
	}
}

func TestClassifyCosmosError(t *testing.T) {
	if !classifyCosmosError(&azcore.ResponseError{StatusCode: 429}).Retryable {
		t.Fatalf("expected throttling to be retryable")
	}
	if classifyCosmosError(&azcore.ResponseError{StatusCode: 409}).Retryable {
		t.Fatalf("expected conflict to be permanent")
	}
}

func TestDecodeResultKeepsAllFields(t *testing.T) {
	raw := []byte(`{"id":"job-1","ai_response":"summary","ai_summary":"summary","file_type":"pdf","blob_name":"job-1.pdf","page_count":3,"attempt":2,"processing_start":"2025-01-01T00:00:00Z","processing_end":"2025-01-01T00:00:05Z","_etag":"\"0a\"","_ts":1735689605}`)
	got, err := decodeResult(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "job-1" || got.PageCount != 3 || got.Attempt != 2 || got.FileType != "pdf" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestNewRequiresAccount(t *testing.T) {
	if _, err := New(Options{Database: "db", Container: "c"}); err == nil {
		t.Fatalf("expected error without account")
	}
}
