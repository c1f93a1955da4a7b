package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	blobUploadsTotal   *prometheus.CounterVec
	messagesSentTotal  *prometheus.CounterVec
	uploadSizeBytes    prometheus.Summary
	orphanBlobsTotal   prometheus.Counter
	statusLookupsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pipeline",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	blobUploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "ingress",
			Name:      "blob_uploads_total",
			Help:      "Total blobs written by the ingress.",
		},
		[]string{"service", "file_type"},
	)
	messagesSentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "ingress",
			Name:      "messages_sent_total",
			Help:      "Total job messages published to the work queue.",
		},
		[]string{"service", "file_type"},
	)
	uploadSizeBytes := prometheus.NewSummary(
		prometheus.SummaryOpts{
			Namespace: "pipeline",
			Subsystem: "ingress",
			Name:      "upload_size_bytes",
			Help:      "Size of accepted uploads in bytes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	orphanBlobsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "ingress",
			Name:      "orphan_blobs_total",
			Help:      "Blobs written without a published job message.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	statusLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "status",
			Name:      "lookups_total",
			Help:      "Status lookups by result: found, pending or error.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		blobUploadsTotal,
		messagesSentTotal,
		uploadSizeBytes,
		orphanBlobsTotal,
		statusLookupsTotal,
	)

	return &HTTPServerMetrics{
		service:            service,
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		blobUploadsTotal:   blobUploadsTotal,
		messagesSentTotal:  messagesSentTotal,
		uploadSizeBytes:    uploadSizeBytes,
		orphanBlobsTotal:   orphanBlobsTotal,
		statusLookupsTotal: statusLookupsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/status/"):
		return "/api/status/{id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) BlobUploaded(fileType domain.FileType, size int64) {
	m.blobUploadsTotal.WithLabelValues(m.service, string(fileType)).Inc()
	if size > 0 {
		m.uploadSizeBytes.Observe(float64(size))
	}
}

func (m *HTTPServerMetrics) JobPublished(fileType domain.FileType) {
	m.messagesSentTotal.WithLabelValues(m.service, string(fileType)).Inc()
}

func (m *HTTPServerMetrics) OrphanBlob() {
	m.orphanBlobsTotal.Inc()
}

func (m *HTTPServerMetrics) RecordStatusLookup(result string) {
	if result == "" {
		result = "unknown"
	}
	m.statusLookupsTotal.WithLabelValues(m.service, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
