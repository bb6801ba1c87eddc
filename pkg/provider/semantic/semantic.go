// Package semantic defines the Provider interface for transcript-based
// affect analysis.
//
// A semantic provider wraps a remote or local language model and scores the
// textual content of a check-in — what the speaker said, as opposed to how
// they said it. Its output is fused with the acoustic scores downstream, and
// it is always optional: callers must degrade to acoustic-only results when
// no provider is reachable.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable indicates that the semantic backend could not be reached or
// refused the request. Callers treat it as a signal to continue with
// acoustic-only scoring, not as a pipeline failure.
var ErrUnavailable = errors.New("semantic: provider unavailable")

// Request carries the transcript of one check-in for analysis.
type Request struct {
	// Transcript is the user's spoken words as text. Must be non-empty.
	Transcript string
}

// Result is a provider's reading of the transcript content.
type Result struct {
	// StressScore is the text-implied stress level on the 0–100 scale.
	StressScore float64

	// FatigueScore is the text-implied fatigue level on the 0–100 scale.
	FatigueScore float64

	// Confidence is the provider's self-assessed reliability in [0, 1].
	// Zero means the result carries no information and must not influence
	// fused scores.
	Confidence float64

	// Notes is an optional short free-text rationale from the model.
	Notes string
}

// Provider is the abstraction over any transcript-analysis backend.
type Provider interface {
	// Analyze scores the transcript in req. Implementations return
	// ErrUnavailable (possibly wrapped) for transport and backend outages so
	// callers can distinguish degradation from bad input.
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// SystemPrompt is the instruction shared by all model-backed providers. It
// pins the output to a strict JSON object so ParseResult can handle every
// backend identically.
const SystemPrompt = `You assess short wellness check-in transcripts.
Given the transcript, estimate how stressed and how fatigued the speaker sounds
from the CONTENT of what they say. Respond with ONLY a JSON object:
{"stress_score": <0-100>, "fatigue_score": <0-100>, "confidence": <0.0-1.0>, "notes": "<one short sentence>"}
confidence reflects how much signal the text actually carries; use a low value
for short or ambiguous transcripts.`

// wireResult mirrors the JSON schema the models are instructed to emit.
// Pointers distinguish absent fields from legitimate zeros.
type wireResult struct {
	StressScore  *float64 `json:"stress_score"`
	FatigueScore *float64 `json:"fatigue_score"`
	Confidence   *float64 `json:"confidence"`
	Notes        string   `json:"notes"`
}

// ParseResult decodes a model reply into a Result. It tolerates surrounding
// prose and markdown code fences by extracting the outermost JSON object, and
// clamps out-of-range values rather than rejecting them. Missing required
// fields are an error.
func ParseResult(reply string) (*Result, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return nil, fmt.Errorf("semantic: no JSON object in reply")
	}

	var w wireResult
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("semantic: decode reply: %w", err)
	}
	if w.StressScore == nil || w.FatigueScore == nil || w.Confidence == nil {
		return nil, fmt.Errorf("semantic: reply missing required fields")
	}

	return &Result{
		StressScore:  clamp(*w.StressScore, 0, 100),
		FatigueScore: clamp(*w.FatigueScore, 0, 100),
		Confidence:   clamp(*w.Confidence, 0, 1),
		Notes:        w.Notes,
	}, nil
}

// extractJSON returns the outermost {...} span of s, or "" if none exists.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
