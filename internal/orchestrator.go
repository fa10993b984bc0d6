package internal

import (
	"context"
	"errors"
	"time"
)

var errProviderTimeout = errors.New("provider timeout")

// attemptRecord is recorded for every orchestrator attempt, feeding the
// orchestrator_fallback analytics event (spec.md §4.11).
type attemptRecord struct {
	provider string
	success  bool
	duration time.Duration
	err      error
}

// orderProviders applies spec.md §4.6's ordering rules: a configured
// priority list wins (providers absent from it sort last, stable
// otherwise); failing that, free-first, paid-last, with AI providers
// excluded unless generation is explicitly requested.
func orderProviders(providers []Provider, priority []string, allowAI bool) []Provider {
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		rank[name] = i
	}
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if !allowAI && p.ProviderType() == ProviderAI {
			continue
		}
		out = append(out, p)
	}
	if len(priority) > 0 {
		stableSortProviders(out, func(a, b Provider) bool {
			ra, aok := rank[a.Name()]
			rb, bok := rank[b.Name()]
			switch {
			case aok && bok:
				return ra < rb
			case aok:
				return true
			case bok:
				return false
			default:
				return false
			}
		})
		return out
	}
	stableSortProviders(out, func(a, b Provider) bool {
		return typeWeight(a.ProviderType()) < typeWeight(b.ProviderType())
	})
	return out
}

func typeWeight(t ProviderType) int {
	switch t {
	case ProviderFree:
		return 0
	case ProviderAI:
		return 1
	case ProviderPaid:
		return 2
	default:
		return 3
	}
}

// stableSortProviders is a tiny insertion sort: the provider lists here are
// always small (a handful of capability-matching providers), so an O(n^2)
// stable sort avoids pulling in sort.SliceStable's reflection overhead for
// no measurable benefit.
func stableSortProviders(ps []Provider, less func(a, b Provider) bool) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && less(ps[j], ps[j-1]); j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

// runAttempt executes fn under the per-attempt discipline from spec.md
// §4.6: a fresh timeout-bound child context, with the timer cleared on
// every exit path.
func runAttempt[T any](sc *ServiceContext, provider string, timeout time.Duration, fn func(ctx context.Context, child *ServiceContext) (*T, error)) (*T, attemptRecord) {
	start := time.Now()
	childCtx, cancel := context.WithTimeout(sc.Context(), timeout)
	defer cancel()
	child := sc.WithTimeout(childCtx, int(timeout.Milliseconds()))

	v, err := fn(childCtx, child)
	rec := attemptRecord{provider: provider, duration: time.Since(start), err: err}
	if childCtx.Err() != nil && err == nil && v == nil {
		rec.err = errProviderTimeout
	}
	rec.success = err == nil && v != nil
	return v, rec
}

// emitFallback reports the orchestrator_fallback analytics event for one
// orchestration run.
func emitFallback(sc *ServiceContext, orchestrator, operation string, attempts []attemptRecord) {
	if sc.Analytics == nil {
		return
	}
	chain := make([]string, len(attempts))
	successful := ""
	var total time.Duration
	success := false
	for i, a := range attempts {
		chain[i] = a.provider
		total += a.duration
		if a.success {
			successful = a.provider
			success = true
		}
	}
	sc.Analytics.EmitOrchestratorFallback(OrchestratorFallbackEvent{
		Orchestrator:       orchestrator,
		ProviderChain:      chain,
		SuccessfulProvider: successful,
		Operation:          operation,
		AttemptsCount:      len(attempts),
		TotalLatencyMs:     total.Milliseconds(),
		Success:            success,
	})
}

// defaultOrchestratorTimeout returns the per-capability default from
// spec.md §4.6: 15s for ISBN resolution, 10s for cover/metadata.
func defaultOrchestratorTimeout(c Capability) time.Duration {
	if c == CapabilityISBNResolution {
		return 15 * time.Second
	}
	return 10 * time.Second
}
