// Package observe provides application-wide observability primitives for
// Vocalis: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vocalis metrics.
const meterName = "github.com/novahale/vocalis"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ProcessingDuration tracks per-recording audio processing latency
	// (segmentation plus feature extraction).
	ProcessingDuration metric.Float64Histogram

	// ScoringDuration tracks biomarker scoring latency, calibration included.
	ScoringDuration metric.Float64Histogram

	// SemanticDuration tracks semantic analysis round-trip latency.
	SemanticDuration metric.Float64Histogram

	// --- Distributions ---

	// SpeechRatio tracks the fraction of each recording classified as
	// speech. A drifting distribution here usually means VAD trouble before
	// users ever report it.
	SpeechRatio metric.Float64Histogram

	// --- Counters ---

	// CheckIns counts completed check-in attempts. Use with attribute:
	//   attribute.String("status", "complete"|"insufficient_speech"|"error")
	CheckIns metric.Int64Counter

	// FusionUpgrades counts semantic fusion outcomes. Use with attribute:
	//   attribute.String("status", "applied"|"discarded"|"unavailable")
	FusionUpgrades metric.Int64Counter

	// MismatchDetections counts flagged semantic/acoustic contradictions.
	MismatchDetections metric.Int64Counter

	// CalibrationUpdates counts self-report calibration updates. Use with
	// attribute: attribute.String("status", "saved"|"write_failed")
	CalibrationUpdates metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live check-in sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for pipeline-stage latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// ratioBuckets covers the [0, 1] speech-ratio distribution.
var ratioBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ProcessingDuration, err = m.Float64Histogram("vocalis.processing.duration",
		metric.WithDescription("Latency of per-recording audio processing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScoringDuration, err = m.Float64Histogram("vocalis.scoring.duration",
		metric.WithDescription("Latency of biomarker scoring including calibration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SemanticDuration, err = m.Float64Histogram("vocalis.semantic.duration",
		metric.WithDescription("Round-trip latency of semantic transcript analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechRatio, err = m.Float64Histogram("vocalis.speech.ratio",
		metric.WithDescription("Fraction of each recording classified as speech."),
		metric.WithExplicitBucketBoundaries(ratioBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CheckIns, err = m.Int64Counter("vocalis.checkins",
		metric.WithDescription("Total check-in attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.FusionUpgrades, err = m.Int64Counter("vocalis.fusion.upgrades",
		metric.WithDescription("Semantic fusion outcomes by status."),
	); err != nil {
		return nil, err
	}
	if met.MismatchDetections, err = m.Int64Counter("vocalis.mismatch.detections",
		metric.WithDescription("Flagged semantic/acoustic contradictions."),
	); err != nil {
		return nil, err
	}
	if met.CalibrationUpdates, err = m.Int64Counter("vocalis.calibration.updates",
		metric.WithDescription("Self-report calibration updates by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("vocalis.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("vocalis.active_sessions",
		metric.WithDescription("Number of live check-in sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocalis.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCheckIn records a completed check-in attempt with its outcome status.
func (m *Metrics) RecordCheckIn(ctx context.Context, status string) {
	m.CheckIns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordFusion records a semantic fusion outcome.
func (m *Metrics) RecordFusion(ctx context.Context, status string) {
	m.FusionUpgrades.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCalibrationUpdate records a calibration update attempt.
func (m *Metrics) RecordCalibrationUpdate(ctx context.Context, status string) {
	m.CalibrationUpdates.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
