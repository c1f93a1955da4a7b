package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	batchSize       *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "worker",
			Name:      "job_process_total",
			Help:      "Total settled deliveries by outcome.",
		},
		[]string{"service", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pipeline",
			Subsystem: "worker",
			Name:      "job_process_duration_seconds",
			Help:      "Job processing duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "outcome"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "worker",
			Name:      "job_process_in_flight",
			Help:      "Number of in-flight job processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pipeline",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between enqueue and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	batchSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pipeline",
			Subsystem: "worker",
			Name:      "batch_size",
			Help:      "Number of deliveries per received batch.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, batchSize)

	return &WorkerMetrics{
		service:         service,
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		batchSize:       batchSize,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) BatchReceived(size int) {
	m.batchSize.WithLabelValues(m.service).Observe(float64(size))
}

func (m *WorkerMetrics) StartJob() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(outcome domain.Outcome, duration time.Duration) {
	m.processInFlight.Dec()

	label := string(outcome)
	if label == "" {
		label = "unknown"
	}
	m.processTotal.WithLabelValues(m.service, label).Inc()
	m.processDuration.WithLabelValues(m.service, label).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}
