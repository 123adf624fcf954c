// Package observability exposes Prometheus metrics for the scan pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agroscan/leafscan-go/internal/logging"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	framesAnalyzed    prometheus.Counter
	framesSkipped     prometheus.Counter
	framesThrottled   prometheus.Counter
	detections        prometheus.Counter
	inferenceDuration prometheus.Histogram
	uploadAttempts    prometheus.Counter
	uploadFailures    prometheus.Counter
	registry          *prometheus.Registry
}

// NewMetrics creates and registers all pipeline collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		framesAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leafscan_frames_analyzed_total",
			Help: "Number of frames run through the classification cascade",
		}),
		framesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leafscan_frames_skipped_total",
			Help: "Number of frames skipped due to preprocessing errors",
		}),
		framesThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leafscan_frames_throttled_total",
			Help: "Number of frames dropped by the inter-analysis throttle",
		}),
		detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leafscan_detections_total",
			Help: "Number of frames classified as infested",
		}),
		inferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leafscan_inference_duration_seconds",
			Help:    "Time spent preprocessing and classifying a frame",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		uploadAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leafscan_upload_attempts_total",
			Help: "Number of evidence image upload attempts, including retries",
		}),
		uploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leafscan_upload_failures_total",
			Help: "Number of evidence images that exhausted their retry budget",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.framesAnalyzed,
		m.framesSkipped,
		m.framesThrottled,
		m.detections,
		m.inferenceDuration,
		m.uploadAttempts,
		m.uploadFailures,
	)
	return m
}

// All record methods are nil-safe so callers can run without metrics.

func (m *Metrics) RecordFrameAnalyzed() {
	if m != nil {
		m.framesAnalyzed.Inc()
	}
}

func (m *Metrics) RecordFrameSkipped() {
	if m != nil {
		m.framesSkipped.Inc()
	}
}

func (m *Metrics) RecordFrameThrottled() {
	if m != nil {
		m.framesThrottled.Inc()
	}
}

func (m *Metrics) RecordDetection() {
	if m != nil {
		m.detections.Inc()
	}
}

func (m *Metrics) RecordInferenceDuration(d time.Duration) {
	if m != nil {
		m.inferenceDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordUploadAttempt() {
	if m != nil {
		m.uploadAttempts.Inc()
	}
}

func (m *Metrics) RecordUploadFailure() {
	if m != nil {
		m.uploadFailures.Inc()
	}
}

// Serve exposes the registry on /metrics at the given listen address.
// It blocks, so callers usually run it in a goroutine.
func (m *Metrics) Serve(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	log := logging.ForService("observability")
	if log != nil {
		log.Info("Serving metrics", "listen", listen)
	}
	return http.ListenAndServe(listen, mux)
}
