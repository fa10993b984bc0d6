package internal

import "context"

// AuthorBioOrchestrator stops at the first provider that returns a
// populated author biography (spec.md §4.6), used by the author-harvest
// workflow (§4.8) and the synchronous /api/authors/enrich-bibliography
// route.
type AuthorBioOrchestrator struct {
	registry  *Registry
	persister *Persister
}

func NewAuthorBioOrchestrator(reg *Registry, persister *Persister) *AuthorBioOrchestrator {
	return &AuthorBioOrchestrator{registry: reg, persister: persister}
}

// FetchBio resolves a biography for authorName and, if one is found,
// persists it immediately so the harvest workflow doesn't need a separate
// write-back step.
func (o *AuthorBioOrchestrator) FetchBio(sc *ServiceContext, authorName string) (*Author, []attemptRecord) {
	providers := o.registry.GetAvailableProviders(sc.Context(), CapabilityAuthorBio)
	timeout := defaultOrchestratorTimeout(CapabilityAuthorBio)

	var attempts []attemptRecord
	for _, p := range providers {
		provider, ok := p.(AuthorBioProvider)
		if !ok {
			continue
		}
		result, rec := runAttempt(sc, p.Name(), timeout, func(ctx context.Context, child *ServiceContext) (*Author, error) {
			return provider.FetchAuthorBio(ctx, child, authorName)
		})
		attempts = append(attempts, rec)
		if result != nil {
			emitFallback(sc, "author_bio", "fetch_bio", attempts)
			if o.persister != nil {
				_ = o.persister.UpdateAuthorBio(sc.Context(), authorName, result.Bio, result.BioSource, result.ExternalIDs)
			}
			return result, attempts
		}
	}
	emitFallback(sc, "author_bio", "fetch_bio", attempts)
	return nil, attempts
}
