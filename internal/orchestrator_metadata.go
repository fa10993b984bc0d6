package internal

import "context"

// MetadataOrchestrator stops at the first provider that returns metadata
// for an ISBN (spec.md §4.6).
type MetadataOrchestrator struct {
	registry *Registry
	priority []string
}

func NewMetadataOrchestrator(reg *Registry, priority []string) *MetadataOrchestrator {
	return &MetadataOrchestrator{registry: reg, priority: priority}
}

func (o *MetadataOrchestrator) FetchMetadata(sc *ServiceContext, isbn string) (*BookMetadata, []attemptRecord) {
	providers := o.registry.GetAvailableProviders(sc.Context(), CapabilityMetadata)
	ordered := orderProviders(providers, o.priority, false)
	timeout := defaultOrchestratorTimeout(CapabilityMetadata)

	var attempts []attemptRecord
	for _, p := range ordered {
		provider, ok := p.(MetadataProvider)
		if !ok {
			continue
		}
		result, rec := runAttempt(sc, p.Name(), timeout, func(ctx context.Context, child *ServiceContext) (*BookMetadata, error) {
			return provider.FetchMetadata(ctx, child, isbn)
		})
		attempts = append(attempts, rec)
		if result != nil {
			emitFallback(sc, "metadata_enrichment", "fetch_metadata", attempts)
			return result, attempts
		}
	}
	emitFallback(sc, "metadata_enrichment", "fetch_metadata", attempts)
	return nil, attempts
}

// BatchFetchMetadata consumes a single paid batch call when the paid
// provider implements BatchMetadataProvider, per spec.md §6's
// `/api/enrich/batch-direct` contract ("synchronously calls the paid batch
// endpoint").
func (o *MetadataOrchestrator) BatchFetchMetadata(sc *ServiceContext, isbns []string) (map[string]*BookMetadata, error) {
	for _, p := range o.registry.GetByType(ProviderPaid) {
		batch, ok := p.(BatchMetadataProvider)
		if !ok || !p.IsAvailable(sc.Context()) {
			continue
		}
		return batch.BatchFetchMetadata(sc.Context(), sc, isbns)
	}
	return map[string]*BookMetadata{}, nil
}
