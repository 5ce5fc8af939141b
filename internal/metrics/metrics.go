package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for the API surface and the
// scrape/transform pipeline on a private registry.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	filesScraped     *prometheus.CounterVec
	filesTransformed *prometheus.CounterVec
	deliveryAttempts prometheus.Counter
	deliveryFailures prometheus.Counter
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "newsweaver",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsweaver",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	filesScraped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsweaver",
		Subsystem: "pipeline",
		Name:      "files_scraped_total",
		Help:      "Files captured to the blob store, by source type.",
	}, []string{"source_type"})

	filesTransformed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsweaver",
		Subsystem: "pipeline",
		Name:      "files_transformed_total",
		Help:      "Transform outcomes, by resulting file status.",
	}, []string{"status"})

	deliveryAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "newsweaver",
		Subsystem: "pipeline",
		Name:      "delivery_attempts_total",
		Help:      "Delivery POSTs sent to the loader endpoint.",
	})

	deliveryFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "newsweaver",
		Subsystem: "pipeline",
		Name:      "delivery_failures_total",
		Help:      "Deliveries that exhausted every attempt.",
	})

	for _, c := range []prometheus.Collector{
		requestDuration, requestTotal, filesScraped, filesTransformed, deliveryAttempts, deliveryFailures,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:         registry,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		filesScraped:     filesScraped,
		filesTransformed: filesTransformed,
		deliveryAttempts: deliveryAttempts,
		deliveryFailures: deliveryFailures,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// FileScraped records one captured file for a source type.
func (c *Collector) FileScraped(sourceType string) {
	if c == nil {
		return
	}
	c.filesScraped.WithLabelValues(sourceType).Inc()
}

// FileTransformed records a transform outcome keyed by the final status.
func (c *Collector) FileTransformed(status string) {
	if c == nil {
		return
	}
	c.filesTransformed.WithLabelValues(status).Inc()
}

// DeliveryAttempt records one POST to the loader.
func (c *Collector) DeliveryAttempt() {
	if c == nil {
		return
	}
	c.deliveryAttempts.Inc()
}

// DeliveryFailed records a delivery that ran out of attempts.
func (c *Collector) DeliveryFailed() {
	if c == nil {
		return
	}
	c.deliveryFailures.Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
