package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/kirillkom/ai-processing-pipeline/internal/config"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/observability/metrics"
)

type submitterFake struct {
	err         error
	gotUpload   domain.Upload
	gotBody     []byte
	submissions int
}

func (f *submitterFake) Submit(_ context.Context, upload domain.Upload) (*domain.Submission, error) {
	f.submissions++
	f.gotUpload = upload
	raw, err := io.ReadAll(upload.Body)
	if err != nil {
		return nil, err
	}
	f.gotBody = raw
	if f.err != nil {
		return nil, f.err
	}
	if _, _, err := domain.ResolveMediaType(upload.ContentType); err != nil {
		return nil, err
	}
	return &domain.Submission{
		ID:         "job-1",
		ResultsURL: "http://status.local/api/status/job-1",
		FileType:   domain.FileTypeImage,
	}, nil
}

func newIngressHandler(cfg config.Config, submitter *submitterFake) http.Handler {
	return NewRouter(cfg, submitter, nil, nil).Handler()
}

func multipartUpload(t *testing.T, field, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newIngressHandler(config.Config{}, &submitterFake{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestProcessFileAccepted(t *testing.T) {
	submitter := &submitterFake{}
	handler := newIngressHandler(config.Config{MaxUploadBytes: 1 << 20}, submitter)

	body, contentType := multipartUpload(t, "file", "photo.jpg", "image/jpeg", []byte("fake-image-data"))
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "job-1" || resp["file_type"] != "image" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasSuffix(resp["results_url"].(string), "/job-1") {
		t.Fatalf("results_url must end with the id: %+v", resp)
	}
	if submitter.gotUpload.Filename != "photo.jpg" || submitter.gotUpload.ContentType != "image/jpeg" {
		t.Fatalf("unexpected upload: %+v", submitter.gotUpload)
	}
	if string(submitter.gotBody) != "fake-image-data" {
		t.Fatalf("unexpected body: %q", submitter.gotBody)
	}
}

func TestProcessFileUnsupportedMediaTypeReturns400(t *testing.T) {
	handler := newIngressHandler(config.Config{}, &submitterFake{})

	body, contentType := multipartUpload(t, "file", "notes.txt", "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["detail"] != "Unsupported file type: text/plain" {
		t.Fatalf("unexpected detail: %q", resp["detail"])
	}
}

func TestProcessFileMissingMultipartField(t *testing.T) {
	submitter := &submitterFake{}
	handler := newIngressHandler(config.Config{}, submitter)

	body, contentType := multipartUpload(t, "document", "photo.jpg", "image/jpeg", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	if submitter.submissions != 0 {
		t.Fatal("expected no submission without a file field")
	}
}

func TestProcessFileTooLargeReturns413(t *testing.T) {
	handler := newIngressHandler(config.Config{MaxUploadBytes: 64}, &submitterFake{})

	body, contentType := multipartUpload(t, "file", "photo.jpg", "image/jpeg", bytes.Repeat([]byte("a"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestProcessFileTemporaryFailureReturns503(t *testing.T) {
	submitter := &submitterFake{err: domain.WrapError(domain.ErrTemporary, "publish", errors.New("broker down"))}
	handler := newIngressHandler(config.Config{}, submitter)

	body, contentType := multipartUpload(t, "file", "photo.jpg", "image/jpeg", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestProcessRouteRejectsGet(t *testing.T) {
	handler := newIngressHandler(config.Config{}, &submitterFake{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/process", nil))

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestIngressDoesNotMountStatusRoute(t *testing.T) {
	handler := newIngressHandler(config.Config{}, &submitterFake{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/status/job-1", nil))

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestOpenAPIDocumentServedAtRoot(t *testing.T) {
	handler := newIngressHandler(config.Config{}, &submitterFake{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var doc map[string]any
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/api/process"]; !ok {
		t.Fatalf("expected /api/process in openapi paths: %v", paths)
	}
}

func TestMetricsEndpointExposesIngressCounters(t *testing.T) {
	httpMetrics := metrics.NewHTTPServerMetrics("api")
	handler := NewRouter(config.Config{}, &submitterFake{}, nil, httpMetrics).Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "pipeline_http_requests_total") {
		t.Fatal("expected request counter in exposition")
	}
}
