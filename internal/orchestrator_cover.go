package internal

import "context"

// CoverOrchestrator stops at the first provider that successfully returns
// a cover URL (spec.md §4.6).
type CoverOrchestrator struct {
	registry *Registry
	priority []string
}

func NewCoverOrchestrator(reg *Registry, priority []string) *CoverOrchestrator {
	return &CoverOrchestrator{registry: reg, priority: priority}
}

func (o *CoverOrchestrator) FetchCover(sc *ServiceContext, isbn string) (*CoverResult, []attemptRecord) {
	providers := o.registry.GetAvailableProviders(sc.Context(), CapabilityCoverImages)
	ordered := orderProviders(providers, o.priority, false)
	timeout := defaultOrchestratorTimeout(CapabilityCoverImages)

	var attempts []attemptRecord
	for _, p := range ordered {
		provider, ok := p.(CoverProvider)
		if !ok {
			continue
		}
		result, rec := runAttempt(sc, p.Name(), timeout, func(ctx context.Context, child *ServiceContext) (*CoverResult, error) {
			return provider.FetchCover(ctx, child, isbn)
		})
		attempts = append(attempts, rec)
		if result != nil {
			emitFallback(sc, "cover_fetch", "fetch_cover", attempts)
			return result, attempts
		}
	}
	emitFallback(sc, "cover_fetch", "fetch_cover", attempts)
	return nil, attempts
}
