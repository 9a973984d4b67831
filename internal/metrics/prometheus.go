package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the sleep diagnosis service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Analysis metrics
	Analyses         *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	AudioDuration    prometheus.Histogram

	// Decoder metrics
	DecodeAttempts *prometheus.CounterVec

	// Classification metrics
	Classifications *prometheus.CounterVec
	Probability     prometheus.Histogram

	// Spectrogram metrics
	RenderFailures prometheus.Counter
	RendersSkipped prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
	InFlight            prometheus.Gauge
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Analysis metrics
		Analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepdiag_analyses_total",
			Help: "Total number of analyses by outcome",
		}, []string{"outcome"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sleepdiag_analysis_duration_seconds",
			Help:    "Wall time spent on one analysis",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sleepdiag_audio_duration_seconds",
			Help:    "Duration of decoded recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5 minutes
		}),

		// Decoder metrics
		DecodeAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepdiag_decode_attempts_total",
			Help: "Total number of decode strategy attempts by result",
		}, []string{"strategy", "result"}),

		// Classification metrics
		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepdiag_classifications_total",
			Help: "Total number of classifications by provenance and label",
		}, []string{"provenance", "label"}),
		Probability: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sleepdiag_probability",
			Help:    "Distribution of reported apnea probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		// Spectrogram metrics
		RenderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sleepdiag_render_failures_total",
			Help: "Total number of spectrogram render failures",
		}),
		RendersSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sleepdiag_renders_skipped_total",
			Help: "Total number of renders skipped for lack of time budget",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepdiag_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sleepdiag_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepdiag_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sleepdiag_analyses_in_flight",
			Help: "Current number of analyses being processed",
		}),
	}
}

// RecordAnalysis records a finished analysis
func (m *Metrics) RecordAnalysis(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.Analyses.WithLabelValues(outcome).Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordAudioDuration records the duration of a decoded recording
func (m *Metrics) RecordAudioDuration(seconds float64) {
	if m == nil {
		return
	}
	m.AudioDuration.Observe(seconds)
}

// RecordDecodeAttempt records one decode strategy attempt
func (m *Metrics) RecordDecodeAttempt(strategy string, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.DecodeAttempts.WithLabelValues(strategy, result).Inc()
}

// RecordClassification records a classification decision
func (m *Metrics) RecordClassification(provenance, label string, probability float64) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(provenance, label).Inc()
	m.Probability.Observe(probability)
}

// RecordRenderFailure increments the render failures counter
func (m *Metrics) RecordRenderFailure() {
	if m == nil {
		return
	}
	m.RenderFailures.Inc()
}

// RecordRenderSkipped increments the skipped renders counter
func (m *Metrics) RecordRenderSkipped() {
	if m == nil {
		return
	}
	m.RendersSkipped.Inc()
}

// IncInFlight increments the in-flight analyses gauge
func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// DecInFlight decrements the in-flight analyses gauge
func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
