package internal

import "context"

// ISBNOrchestrator specializes the cascading-fallback flow for resolving a
// synthetic work's ISBN (spec.md §4.6): the AI generator supplies
// title/author/year but never an ISBN, so this orchestrator consults paid
// then free resolvers, each running the provider's own Search → Validate
// at a 0.7 similarity threshold, stopping at the first success.
type ISBNOrchestrator struct {
	registry *Registry
	priority []string
}

func NewISBNOrchestrator(reg *Registry, priority []string) *ISBNOrchestrator {
	return &ISBNOrchestrator{registry: reg, priority: priority}
}

// ResolveISBN returns the first validated candidate across ordered
// resolvers, or nil if none validated — in which case the caller persists
// a synthetic work with initial completeness 30 per spec.md §4.6.
func (o *ISBNOrchestrator) ResolveISBN(sc *ServiceContext, title, author string) (*ISBNResolveResult, []attemptRecord) {
	providers := o.registry.GetAvailableProviders(sc.Context(), CapabilityISBNResolution)
	ordered := orderProviders(providers, o.priority, false)
	timeout := defaultOrchestratorTimeout(CapabilityISBNResolution)

	var attempts []attemptRecord
	for _, p := range ordered {
		resolver, ok := p.(ISBNResolver)
		if !ok {
			continue
		}
		result, rec := runAttempt(sc, p.Name(), timeout, func(ctx context.Context, child *ServiceContext) (*ISBNResolveResult, error) {
			return resolver.ResolveISBN(ctx, child, title, author)
		})
		attempts = append(attempts, rec)
		if result != nil {
			emitFallback(sc, "isbn_resolution", "resolve", attempts)
			return result, attempts
		}
	}
	emitFallback(sc, "isbn_resolution", "resolve", attempts)
	return nil, attempts
}
