package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"vocalis.processing.duration", m.ProcessingDuration},
		{"vocalis.scoring.duration", m.ScoringDuration},
		{"vocalis.semantic.duration", m.SemanticDuration},
		{"vocalis.speech.ratio", m.SpeechRatio},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a float64 histogram", tc.name)
			}
			if len(hist.DataPoints) != 1 {
				t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("count = %d, want 2", got)
			}
		})
	}
}

func TestCounterAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCheckIn(ctx, "complete")
	m.RecordCheckIn(ctx, "complete")
	m.RecordCheckIn(ctx, "insufficient_speech")

	rm := collect(t, reader)
	met := findMetric(rm, "vocalis.checkins")
	if met == nil {
		t.Fatal("vocalis.checkins not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("vocalis.checkins is not an int64 sum")
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("attribute sets = %d, want 2", len(sum.DataPoints))
	}

	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		switch status.AsString() {
		case "complete":
			if dp.Value != 2 {
				t.Errorf("complete = %d, want 2", dp.Value)
			}
		case "insufficient_speech":
			if dp.Value != 1 {
				t.Errorf("insufficient_speech = %d, want 1", dp.Value)
			}
		default:
			t.Errorf("unexpected status %q", status.AsString())
		}
	}
}

func TestFusionAndCalibrationCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFusion(ctx, "applied")
	m.RecordFusion(ctx, "discarded")
	m.MismatchDetections.Add(ctx, 1)
	m.RecordCalibrationUpdate(ctx, "write_failed")
	m.RecordProviderError(ctx, "openai", "semantic")

	rm := collect(t, reader)
	for _, name := range []string{
		"vocalis.fusion.upgrades",
		"vocalis.mismatch.detections",
		"vocalis.calibration.updates",
		"vocalis.provider.errors",
	} {
		if findMetric(rm, name) == nil {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestActiveSessionsUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "vocalis.active_sessions")
	if met == nil {
		t.Fatal("vocalis.active_sessions not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("vocalis.active_sessions is not an int64 sum")
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Fatalf("value = %+v, want single data point of 1", sum.DataPoints)
	}
}

func TestDefaultMetricsSingleton(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
