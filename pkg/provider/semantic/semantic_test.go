package semantic

import (
	"strings"
	"testing"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Result
		wantErr bool
	}{
		{
			name:  "plain JSON",
			reply: `{"stress_score": 62, "fatigue_score": 30, "confidence": 0.8, "notes": "deadline pressure"}`,
			want:  Result{StressScore: 62, FatigueScore: 30, Confidence: 0.8, Notes: "deadline pressure"},
		},
		{
			name:  "markdown fenced",
			reply: "```json\n{\"stress_score\": 10, \"fatigue_score\": 75, \"confidence\": 0.5, \"notes\": \"\"}\n```",
			want:  Result{StressScore: 10, FatigueScore: 75, Confidence: 0.5},
		},
		{
			name:  "surrounding prose",
			reply: `Here is my assessment: {"stress_score": 40, "fatigue_score": 40, "confidence": 0.6, "notes": "n"} I hope that helps.`,
			want:  Result{StressScore: 40, FatigueScore: 40, Confidence: 0.6, Notes: "n"},
		},
		{
			name:  "out of range values clamped",
			reply: `{"stress_score": 140, "fatigue_score": -5, "confidence": 1.4, "notes": ""}`,
			want:  Result{StressScore: 100, FatigueScore: 0, Confidence: 1},
		},
		{
			name:  "zero confidence preserved",
			reply: `{"stress_score": 50, "fatigue_score": 50, "confidence": 0, "notes": "too short"}`,
			want:  Result{StressScore: 50, FatigueScore: 50, Confidence: 0, Notes: "too short"},
		},
		{
			name:    "missing field",
			reply:   `{"stress_score": 50, "confidence": 0.7}`,
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			reply:   "I cannot assess this transcript.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			reply:   `{"stress_score": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResult(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseResult(%q) = %+v, want error", tt.reply, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResult(%q) error = %v", tt.reply, err)
			}
			if *got != tt.want {
				t.Fatalf("ParseResult = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestSystemPromptPinsSchema(t *testing.T) {
	for _, field := range []string{"stress_score", "fatigue_score", "confidence", "notes"} {
		if !strings.Contains(SystemPrompt, field) {
			t.Errorf("SystemPrompt does not mention %q", field)
		}
	}
}
