// Package mock provides a scripted semantic.Provider for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/novahale/vocalis/pkg/provider/semantic"
)

// Provider is a scripted semantic.Provider. Configure Result or Err before
// use; Analyze records every request it receives.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Analyze when Err is nil.
	Result *semantic.Result

	// Err, when non-nil, is returned by Analyze.
	Err error

	// Delay, when non-zero, makes Analyze block for the duration (or until
	// ctx is done) before returning. Used to exercise timeout paths.
	Delay time.Duration

	// Requests records every request passed to Analyze, in order.
	Requests []semantic.Request
}

// Analyze implements semantic.Provider.
func (p *Provider) Analyze(ctx context.Context, req semantic.Request) (*semantic.Result, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	delay, result, err := p.Delay, p.Result, p.Err
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if result == nil {
		return &semantic.Result{Confidence: 0}, nil
	}
	out := *result
	return &out, nil
}

// Calls returns how many times Analyze was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

var _ semantic.Provider = (*Provider)(nil)
