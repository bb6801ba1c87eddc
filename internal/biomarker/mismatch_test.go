package biomarker

import (
	"testing"

	"github.com/novahale/vocalis/pkg/types"
)

func stressedMetrics(confidence float64) types.VoiceMetrics {
	return types.VoiceMetrics{
		StressScore:  70,
		FatigueScore: 30,
		StressLevel:  LevelForStress(70),
		FatigueLevel: LevelForFatigue(30),
		Confidence:   confidence,
	}
}

func calmMetrics(confidence float64) types.VoiceMetrics {
	return types.VoiceMetrics{
		StressScore:  20,
		FatigueScore: 25,
		StressLevel:  LevelForStress(20),
		FatigueLevel: LevelForFatigue(25),
		Confidence:   confidence,
	}
}

func TestAcousticSignalFor(t *testing.T) {
	tests := []struct {
		stress, fatigue float64
		want            types.AcousticSignal
	}{
		{70, 30, types.AcousticStressed},
		{30, 70, types.AcousticFatigued},
		{60, 80, types.AcousticStressed}, // stress dominates
		{20, 25, types.AcousticEnergetic},
		{45, 40, types.AcousticNormal},
	}
	for _, tt := range tests {
		m := types.VoiceMetrics{StressScore: tt.stress, FatigueScore: tt.fatigue}
		if got := AcousticSignalFor(m); got != tt.want {
			t.Errorf("AcousticSignalFor(stress=%v, fatigue=%v) = %q, want %q", tt.stress, tt.fatigue, got, tt.want)
		}
	}
}

func TestDetectPositiveWordsStressedVoice(t *testing.T) {
	got := Detect("I'm fine, everything is good, really happy with the week", stressedMetrics(0.8))

	if !got.Detected {
		t.Fatalf("Detected = false, want true (result %+v)", got)
	}
	if got.SemanticSignal != types.SemanticPositive {
		t.Errorf("SemanticSignal = %q, want positive", got.SemanticSignal)
	}
	if got.AcousticSignal != types.AcousticStressed {
		t.Errorf("AcousticSignal = %q, want stressed", got.AcousticSignal)
	}
	if got.SuggestionForAssistant == "" {
		t.Error("SuggestionForAssistant empty on detection")
	}
}

func TestDetectNegativeWordsCalmVoice(t *testing.T) {
	got := Detect("this week has been awful, I'm so stressed and worried", calmMetrics(0.8))

	if !got.Detected {
		t.Fatalf("Detected = false, want true (result %+v)", got)
	}
	if got.AcousticSignal != types.AcousticEnergetic {
		t.Errorf("AcousticSignal = %q, want energetic", got.AcousticSignal)
	}
	if got.SuggestionForAssistant == "" {
		t.Error("SuggestionForAssistant empty on detection")
	}
}

func TestDetectAgreementNoMismatch(t *testing.T) {
	// Negative words with a stressed voice agree; nothing to flag.
	got := Detect("I'm exhausted and stressed and overwhelmed", stressedMetrics(0.9))
	if got.Detected {
		t.Fatalf("Detected = true for agreeing signals (result %+v)", got)
	}
	if got.SuggestionForAssistant != "" {
		t.Error("SuggestionForAssistant set without detection")
	}
}

func TestDetectLowConfidenceSuppressed(t *testing.T) {
	// Contradiction present but the acoustic side is too uncertain.
	got := Detect("I'm fine, everything is good, really happy with the week", stressedMetrics(0.2))
	if got.Detected {
		t.Fatalf("Detected = true with acoustic confidence 0.2 (result %+v)", got)
	}

	// And the semantic side: a single weak hit must not trigger either.
	got = Detect("yeah it was okay I suppose", stressedMetrics(0.9))
	if got.Detected {
		t.Fatalf("Detected = true with weak sentiment (result %+v)", got)
	}
}

func TestDetectNeutralTranscript(t *testing.T) {
	got := Detect("the meeting moved to three and I picked up groceries", stressedMetrics(0.9))
	if got.Detected {
		t.Fatalf("Detected = true for neutral transcript (result %+v)", got)
	}
	if got.SemanticSignal != types.SemanticNeutral {
		t.Errorf("SemanticSignal = %q, want neutral", got.SemanticSignal)
	}
}

func TestDetectConfidenceIsWeakerSignal(t *testing.T) {
	got := Detect("I'm fine, everything is good, really happy with the week", stressedMetrics(0.5))
	if got.Confidence > 0.5 {
		t.Errorf("Confidence = %v, want <= weaker signal 0.5", got.Confidence)
	}
}
