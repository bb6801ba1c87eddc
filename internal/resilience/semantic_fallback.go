package resilience

import (
	"context"

	"github.com/novahale/vocalis/pkg/provider/semantic"
)

// SemanticFallback implements [semantic.Provider] with automatic failover
// across multiple analysis backends. Each backend has its own circuit breaker,
// so a rate-limited or unreachable primary is bypassed without burning the
// session's semantic deadline on doomed retries.
type SemanticFallback struct {
	group *FallbackGroup[semantic.Provider]
}

// Compile-time interface assertion.
var _ semantic.Provider = (*SemanticFallback)(nil)

// NewSemanticFallback creates a [SemanticFallback] with primary as the
// preferred backend.
func NewSemanticFallback(primary semantic.Provider, primaryName string, cfg FallbackConfig) *SemanticFallback {
	return &SemanticFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional analysis backend as a fallback.
func (f *SemanticFallback) AddFallback(name string, provider semantic.Provider) {
	f.group.AddFallback(name, provider)
}

// Analyze runs the request against the first healthy backend. If the primary
// fails or its breaker is open, subsequent fallbacks are tried in order.
func (f *SemanticFallback) Analyze(ctx context.Context, req semantic.Request) (*semantic.Result, error) {
	return ExecuteWithResult(f.group, func(p semantic.Provider) (*semantic.Result, error) {
		return p.Analyze(ctx, req)
	})
}
