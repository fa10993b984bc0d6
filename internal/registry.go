package internal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Registry is the named, process-wide provider registry from spec.md §4.3.
// Registration is idempotent-failure: registering a duplicate name panics
// loudly rather than silently overwriting, since a silent duplicate would
// otherwise hide a wiring mistake at startup.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Provider{}}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[p.Name()]; exists {
		panic(fmt.Sprintf("provider %q already registered", p.Name()))
	}
	r.byName[p.Name()] = p
}

func (r *Registry) RegisterAll(ps []Provider) {
	for _, p := range ps {
		r.Register(p)
	}
}

// Clear removes all providers. Test-only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = map[string]Provider{}
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

func (r *Registry) GetAll() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.byName))
	for _, p := range r.byName {
		out = append(out, p)
	}
	return out
}

func (r *Registry) GetByCapability(c Capability) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	for _, p := range r.byName {
		for _, pc := range p.Capabilities() {
			if pc == c {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func (r *Registry) GetByType(t ProviderType) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	for _, p := range r.byName {
		if p.ProviderType() == t {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) HasCapability(c Capability) bool {
	return len(r.GetByCapability(c)) > 0
}

const defaultAvailabilityTimeout = 5 * time.Second

// GetAvailableProviders fans out IsAvailable for all capability-matching
// providers in parallel, bounded by a per-check timeout. Slow checks are
// treated as unavailable and logged. This is the only registry call that
// may be sequentially costly; orchestrators invoke it once per
// orchestration (spec.md §4.3).
func (r *Registry) GetAvailableProviders(ctx context.Context, c Capability) []Provider {
	candidates := r.GetByCapability(c)
	type result struct {
		p    Provider
		ok   bool
	}
	results := make(chan result, len(candidates))
	for _, p := range candidates {
		go func(p Provider) {
			checkCtx, cancel := context.WithTimeout(ctx, defaultAvailabilityTimeout)
			defer cancel()
			done := make(chan bool, 1)
			go func() { done <- p.IsAvailable(checkCtx) }()
			select {
			case ok := <-done:
				results <- result{p: p, ok: ok}
			case <-checkCtx.Done():
				Log(ctx).Warn("availability check timed out", "provider", p.Name())
				results <- result{p: p, ok: false}
			}
		}(p)
	}
	var available []Provider
	for range candidates {
		res := <-results
		if res.ok {
			available = append(available, res.p)
		}
	}
	return available
}

// RegistryStats is the shape returned by GetStats: counts by type and by
// capability.
type RegistryStats struct {
	ByType       map[ProviderType]int
	ByCapability map[Capability]int
}

func (r *Registry) GetStats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := RegistryStats{ByType: map[ProviderType]int{}, ByCapability: map[Capability]int{}}
	for _, p := range r.byName {
		stats.ByType[p.ProviderType()]++
		for _, c := range p.Capabilities() {
			stats.ByCapability[c]++
		}
	}
	return stats
}
