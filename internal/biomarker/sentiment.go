package biomarker

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/novahale/vocalis/pkg/types"
)

// fuzzyMatchThreshold is the minimum Jaro-Winkler similarity for a transcript
// token to count as a lexicon hit. Transcripts come from speech recognition
// and carry misspellings ("stresed", "exausted"), so exact matching alone
// misses real signal.
const fuzzyMatchThreshold = 0.88

// negationWindow is how many tokens back a negation word flips the polarity
// of a lexicon hit ("not great", "don't feel fine").
const negationWindow = 2

var positiveLexicon = []string{
	"fine", "good", "great", "okay", "alright", "well",
	"happy", "calm", "relaxed", "rested", "energetic", "energized",
	"wonderful", "fantastic", "excellent", "better", "refreshed",
}

var negativeLexicon = []string{
	"tired", "exhausted", "drained", "stressed", "anxious", "worried",
	"overwhelmed", "awful", "terrible", "bad", "worse", "rough",
	"struggling", "burnt", "burned", "frustrated", "miserable", "down",
}

var negationWords = map[string]struct{}{
	"not": {}, "no": {}, "never": {},
	"dont": {}, "don't": {}, "cant": {}, "can't": {},
	"isnt": {}, "isn't": {}, "wasnt": {}, "wasn't": {},
}

// SentimentResult is the lightweight transcript classification used by the
// mismatch detector.
type SentimentResult struct {
	Signal     types.SemanticSignal
	Confidence float64

	// PositiveHits and NegativeHits are the matched lexicon words after
	// negation flipping, kept for explanation surfaces.
	PositiveHits []string
	NegativeHits []string
}

// ClassifySentiment classifies the transcript as positive, neutral, or
// negative using lexicon matching with fuzzy lookup for recognition noise.
// It is deliberately shallow: this drives mismatch detection, not the fused
// scores, and a reading of "roughly what tone were the words" is enough.
func ClassifySentiment(transcript string) SentimentResult {
	tokens := tokenize(transcript)
	if len(tokens) == 0 {
		return SentimentResult{Signal: types.SemanticNeutral, Confidence: 0}
	}

	res := SentimentResult{Signal: types.SemanticNeutral}
	for i, tok := range tokens {
		polarity, word := lookupToken(tok)
		if polarity == 0 {
			continue
		}
		if negatedAt(tokens, i) {
			polarity = -polarity
		}
		if polarity > 0 {
			res.PositiveHits = append(res.PositiveHits, word)
		} else {
			res.NegativeHits = append(res.NegativeHits, word)
		}
	}

	pos, neg := len(res.PositiveHits), len(res.NegativeHits)
	switch {
	case pos > neg:
		res.Signal = types.SemanticPositive
	case neg > pos:
		res.Signal = types.SemanticNegative
	default:
		res.Signal = types.SemanticNeutral
	}

	// Confidence grows with the hit margin and saturates: one unopposed hit
	// is a weak signal, three or more a strong one.
	margin := pos - neg
	if margin < 0 {
		margin = -margin
	}
	if margin > 3 {
		margin = 3
	}
	res.Confidence = float64(margin) / 3 * 0.9

	return res
}

// lookupToken returns +1/-1 and the matched lexicon word when tok hits the
// positive or negative lexicon (exactly or fuzzily), or 0 otherwise.
func lookupToken(tok string) (int, string) {
	if w, ok := matchLexicon(tok, positiveLexicon); ok {
		return 1, w
	}
	if w, ok := matchLexicon(tok, negativeLexicon); ok {
		return -1, w
	}
	return 0, ""
}

func matchLexicon(tok string, lexicon []string) (string, bool) {
	for _, w := range lexicon {
		if tok == w {
			return w, true
		}
	}
	// Fuzzy pass only for tokens long enough that similarity is meaningful;
	// short words like "bad" vs "bed" are too easy to confuse.
	if len(tok) < 4 {
		return "", false
	}
	for _, w := range lexicon {
		if len(w) < 4 {
			continue
		}
		if matchr.JaroWinkler(tok, w, false) >= fuzzyMatchThreshold {
			return w, true
		}
	}
	return "", false
}

func negatedAt(tokens []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-negationWindow; j-- {
		if _, ok := negationWords[tokens[j]]; ok {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			return false
		}
		return true
	})
}
