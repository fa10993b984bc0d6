package internal

import "context"

// PublicDomainOrchestrator queries every available provider and prefers
// api-verified results over heuristic publication-date checks, per
// spec.md §4.6. When two api-verified providers disagree, the Open
// Question is resolved (per SPEC_FULL.md and DESIGN.md) by returning
// reason=unknown at lowest confidence rather than guessing.
type PublicDomainOrchestrator struct {
	registry *Registry
}

func NewPublicDomainOrchestrator(reg *Registry) *PublicDomainOrchestrator {
	return &PublicDomainOrchestrator{registry: reg}
}

func (o *PublicDomainOrchestrator) CheckPublicDomain(sc *ServiceContext, isbn string) (*PublicDomainResult, []attemptRecord) {
	providers := o.registry.GetAvailableProviders(sc.Context(), CapabilityPublicDomain)
	timeout := defaultOrchestratorTimeout(CapabilityPublicDomain)

	var attempts []attemptRecord
	var results []*PublicDomainResult
	for _, p := range providers {
		provider, ok := p.(PublicDomainProvider)
		if !ok {
			continue
		}
		result, rec := runAttempt(sc, p.Name(), timeout, func(ctx context.Context, child *ServiceContext) (*PublicDomainResult, error) {
			return provider.CheckPublicDomain(ctx, child, isbn)
		})
		attempts = append(attempts, rec)
		if result != nil {
			results = append(results, result)
		}
	}
	emitFallback(sc, "public_domain", "check_public_domain", attempts)

	final := selectPublicDomainResult(results)
	return final, attempts
}

func selectPublicDomainResult(results []*PublicDomainResult) *PublicDomainResult {
	if len(results) == 0 {
		return nil
	}
	if len(results) == 1 {
		return results[0]
	}

	var verified []*PublicDomainResult
	for _, r := range results {
		if r.Reason == ReasonAPIVerified {
			verified = append(verified, r)
		}
	}
	if len(verified) == 1 {
		return verified[0]
	}
	if len(verified) > 1 {
		if agree(verified) {
			return bestByConfidence(verified)
		}
		return &PublicDomainResult{IsPublicDomain: false, Confidence: 0, Reason: ReasonUnknown}
	}
	return bestByConfidence(results)
}

func agree(results []*PublicDomainResult) bool {
	first := results[0].IsPublicDomain
	for _, r := range results[1:] {
		if r.IsPublicDomain != first {
			return false
		}
	}
	return true
}

func bestByConfidence(results []*PublicDomainResult) *PublicDomainResult {
	best := results[0]
	for _, r := range results[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best
}
