package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/config"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
	"github.com/kirillkom/ai-processing-pipeline/internal/observability/metrics"
)

// Router serves the ingress and status endpoints. Either use case may be nil,
// in which case its route is not registered; each binary mounts only its own.
type Router struct {
	cfg       config.Config
	submitter ports.JobSubmitter
	status    ports.StatusReader
	metrics   *metrics.HTTPServerMetrics
	openAPI   []byte
}

func NewRouter(
	cfg config.Config,
	submitter ports.JobSubmitter,
	status ports.StatusReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	doc, err := openAPIJSON(context.Background())
	if err != nil {
		slog.Error("openapi_load_failed", "error", err)
	}
	return &Router{
		cfg:       cfg,
		submitter: submitter,
		status:    status,
		metrics:   httpMetrics,
		openAPI:   doc,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /{$}", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	if rt.submitter != nil {
		mux.HandleFunc("POST /api/process", rt.processFile)
	}
	if rt.status != nil {
		mux.HandleFunc("GET /api/status/{id}", rt.getStatus)
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = corsMiddleware(handler, rt.cfg.CORSOrigin)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	if len(rt.openAPI) == 0 {
		writeError(w, http.StatusInternalServerError, "openapi document unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rt.openAPI)
}

func (rt *Router) processFile(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	submission, err := rt.submitter.Submit(r.Context(), domain.Upload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submission)
}

func (rt *Router) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := rt.status.Lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.recordLookup("error")
		writeDomainError(w, r, err)
		return
	}

	if status.State == domain.JobStateCompleted {
		rt.recordLookup("found")
		writeJSON(w, http.StatusOK, status.View())
		return
	}

	rt.recordLookup("pending")
	w.Header().Set("Retry-After", retryAfterSeconds(status.RetryAfter))
	writeJSON(w, http.StatusAccepted, status.View())
}

func (rt *Router) recordLookup(result string) {
	if rt.metrics != nil {
		rt.metrics.RecordStatusLookup(result)
	}
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, errorDetail(err))
}
