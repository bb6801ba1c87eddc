package calibration

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/novahale/vocalis/pkg/types"
)

func TestApplyIdentity(t *testing.T) {
	// bias 0, scale 1 is the identity on [0, 100].
	for _, raw := range []float64{0, 12.5, 50, 99.9, 100} {
		if got := Apply(raw, 0, 1); got != raw {
			t.Errorf("Apply(%v, 0, 1) = %v, want unchanged", raw, got)
		}
	}
}

func TestApplyClamps(t *testing.T) {
	if got := Apply(95, 20, 1.2); got != 100 {
		t.Errorf("Apply(95, 20, 1.2) = %v, want 100", got)
	}
	if got := Apply(5, -20, 0.8); got != 0 {
		t.Errorf("Apply(5, -20, 0.8) = %v, want 0", got)
	}
}

func TestApplyAxes(t *testing.T) {
	cal := types.BiomarkerCalibration{
		StressBias: -10, StressScale: 1,
		FatigueBias: 5, FatigueScale: 1.1,
	}
	if got := ApplyStress(60, cal); got != 50 {
		t.Errorf("ApplyStress(60) = %v, want 50", got)
	}
	if got, want := ApplyFatigue(50, cal), 60.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("ApplyFatigue(50) = %v, want %v", got, want)
	}
}

func TestUpdateBoundsUnderExtremeReports(t *testing.T) {
	// Even pathological self-reports may never push calibration out of its
	// hard bounds, no matter how many times they repeat.
	cal := Default()
	acoustic := types.VoiceMetrics{StressScore: 100, FatigueScore: 0}
	report := types.CheckInSelfReport{StressScore: 0, FatigueScore: 100, ReportedAt: time.Now()}

	for i := 0; i < 50; i++ {
		cal = UpdateFromSelfReport(acoustic, report, cal)

		if cal.StressBias < BiasMin || cal.StressBias > BiasMax {
			t.Fatalf("iteration %d: StressBias = %v out of [%v, %v]", i, cal.StressBias, BiasMin, BiasMax)
		}
		if cal.FatigueBias < BiasMin || cal.FatigueBias > BiasMax {
			t.Fatalf("iteration %d: FatigueBias = %v out of bounds", i, cal.FatigueBias)
		}
		if cal.StressScale < ScaleMin || cal.StressScale > ScaleMax {
			t.Fatalf("iteration %d: StressScale = %v out of [%v, %v]", i, cal.StressScale, ScaleMin, ScaleMax)
		}
		if cal.FatigueScale < ScaleMin || cal.FatigueScale > ScaleMax {
			t.Fatalf("iteration %d: FatigueScale = %v out of bounds", i, cal.FatigueScale)
		}
	}
	if cal.SampleCount != 50 {
		t.Errorf("SampleCount = %d, want 50", cal.SampleCount)
	}
}

func TestUpdateConvergesWithoutOvershoot(t *testing.T) {
	// Self-report 20 against acoustic 70, three times: stress bias must move
	// negative, monotonically, and each step must stay within the remaining
	// gap — a single update never overshoots the reported delta.
	cal := Default()
	acoustic := types.VoiceMetrics{StressScore: 70, FatigueScore: 40, Confidence: 0.9}
	report := types.CheckInSelfReport{StressScore: 20, FatigueScore: 40, ReportedAt: time.Now()}

	prevBias := cal.StressBias
	for i := 0; i < 3; i++ {
		cal = UpdateFromSelfReport(acoustic, report, cal)

		step := cal.StressBias - prevBias
		if step >= 0 {
			t.Fatalf("iteration %d: bias step %v not negative (bias %v)", i, step, cal.StressBias)
		}
		if math.Abs(step) > 50 {
			t.Fatalf("iteration %d: bias step %v overshoots the 50-point delta", i, step)
		}
		prevBias = cal.StressBias
	}

	if cal.StressBias >= 0 {
		t.Errorf("StressBias = %v after 3 low reports, want negative", cal.StressBias)
	}
	// Matching fatigue report leaves the fatigue bias untouched.
	if cal.FatigueBias != 0 {
		t.Errorf("FatigueBias = %v for zero fatigue delta, want 0", cal.FatigueBias)
	}
}

func TestUpdateSampleCountMonotone(t *testing.T) {
	cal := Default()
	acoustic := types.VoiceMetrics{StressScore: 50, FatigueScore: 50}
	for i := 1; i <= 5; i++ {
		cal = UpdateFromSelfReport(acoustic, types.CheckInSelfReport{StressScore: 55, FatigueScore: 45}, cal)
		if cal.SampleCount != i {
			t.Fatalf("SampleCount = %d after %d updates", cal.SampleCount, i)
		}
	}
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	cal := types.BiomarkerCalibration{
		StressBias: -7.25, FatigueBias: 3.5,
		StressScale: 0.9125, FatigueScale: 1.0625,
		SampleCount: 4,
		UpdatedAt:   time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
	}
	baseline := &types.VoiceBaseline{
		Features:      types.AudioFeatures{PitchMean: 163.5, RMS: 0.081},
		RecordedAt:    time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
		PromptID:      "reading-passage-1",
		SpeechSeconds: 21.4,
	}

	if err := repo.Save(ctx, "default", Patch{Baseline: baseline, Calibration: &cal}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Load(ctx, "default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Calibration == nil || *got.Calibration != cal {
		t.Errorf("Calibration = %+v, want bit-identical %+v", got.Calibration, cal)
	}
	if got.Baseline == nil || *got.Baseline != *baseline {
		t.Errorf("Baseline = %+v, want %+v", got.Baseline, baseline)
	}
}

func TestMemoryRepositoryPartialPatch(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	baseline := &types.VoiceBaseline{PromptID: "p1", SpeechSeconds: 15}
	if err := repo.Save(ctx, "u", Patch{Baseline: baseline}); err != nil {
		t.Fatalf("Save baseline: %v", err)
	}

	cal := Default()
	if err := repo.Save(ctx, "u", Patch{Calibration: &cal}); err != nil {
		t.Fatalf("Save calibration: %v", err)
	}

	got, err := repo.Load(ctx, "u")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Baseline == nil || got.Baseline.PromptID != "p1" {
		t.Error("baseline lost by calibration-only patch")
	}
	if got.Calibration == nil {
		t.Error("calibration missing after patch")
	}
}

func TestLoadUnknownUser(t *testing.T) {
	got, err := NewMemoryRepository().Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Baseline != nil || got.Calibration != nil {
		t.Errorf("Load(unknown) = %+v, want empty settings", got)
	}
}
