package biomarker

import "math"

// ScoreInput is one source's contribution to a fused axis: a 0–100 score and
// the source's confidence in it.
type ScoreInput struct {
	Score      float64
	Confidence float64
}

// Fused is the outcome of blending one axis.
type Fused struct {
	Score      float64
	Confidence float64
}

// disagreementScale controls how strongly score disagreement between sources
// suppresses fused confidence: a full-scale (100-point) disagreement removes
// the entire combined confidence, proportionally for smaller gaps.
const disagreementScale = 100.0

// Fuse blends one axis of acoustic and semantic scores with a
// confidence-weighted linear blend.
//
// The fallback law is exact: with semantic confidence 0 the result is the
// acoustic input unchanged (and vice versa), so an absent semantic result can
// be fused as a zero-confidence input without a separate code path.
//
// Fused confidence never exceeds the larger input confidence, and shrinks as
// the two sources disagree: two confident sources giving opposite answers is
// low-information, not high-information.
func Fuse(acoustic, semantic ScoreInput) Fused {
	aw, sw := clamp01(acoustic.Confidence), clamp01(semantic.Confidence)
	total := aw + sw
	if total == 0 {
		return Fused{Score: clampScore(acoustic.Score), Confidence: 0}
	}
	if sw == 0 {
		return Fused{Score: clampScore(acoustic.Score), Confidence: aw}
	}
	if aw == 0 {
		return Fused{Score: clampScore(semantic.Score), Confidence: sw}
	}

	score := (acoustic.Score*aw + semantic.Score*sw) / total

	// Base confidence is the confidence-weighted mean, which by construction
	// cannot exceed max(aw, sw). Disagreement then cuts it further.
	conf := (aw*aw + sw*sw) / total
	disagreement := math.Abs(acoustic.Score-semantic.Score) / disagreementScale
	conf *= 1 - clamp01(disagreement)

	return Fused{Score: clampScore(score), Confidence: clamp01(conf)}
}
