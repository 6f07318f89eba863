package registry

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/provider"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// Registry holds the configured provider set and selects the subset a given
// plan tier may use. The provider list is fixed at construction; only the
// adapters' quota counters mutate afterwards.
type Registry struct {
	mu           sync.RWMutex
	providers    map[types.ProviderID]provider.Provider
	entitlements map[types.PlanTier][]types.ProviderID
	logger       *zap.Logger
}

// New creates a registry from already-constructed providers and the plan
// entitlement table.
func New(providers []provider.Provider, entitlements map[types.PlanTier][]types.ProviderID, logger *zap.Logger) *Registry {
	byID := make(map[types.ProviderID]provider.Provider, len(providers))
	for _, p := range providers {
		byID[p.ID()] = p
	}
	return &Registry{
		providers:    byID,
		entitlements: entitlements,
		logger:       logger,
	}
}

// Get returns a provider by ID
func (r *Registry) Get(id types.ProviderID) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// All returns every configured provider
func (r *Registry) All() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]provider.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// Select returns the providers the plan tier is entitled to and that are
// currently available, ordered by descending static priority. An empty
// result is valid; the orchestrator treats it as a degenerate zero-result
// search, not an error.
func (r *Registry) Select(ctx context.Context, tier types.PlanTier) []provider.Provider {
	r.mu.RLock()
	entitled := r.entitlements[tier]
	r.mu.RUnlock()

	selected := make([]provider.Provider, 0, len(entitled))
	for _, id := range entitled {
		p, ok := r.Get(id)
		if !ok {
			r.logger.Warn("entitled provider not configured", zap.String("provider", string(id)))
			continue
		}
		if !p.IsAvailable(ctx) {
			r.logger.Debug("provider unavailable, skipping",
				zap.String("provider", string(id)),
				zap.Int64("remaining_quota", p.RemainingQuota()))
			continue
		}
		selected = append(selected, p)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority() > selected[j].Priority()
	})

	return selected
}

// PriorityOf returns the static priority for a provider ID, 0 if unknown.
// The aggregator uses it to break ranking ties deterministically.
func (r *Registry) PriorityOf(id types.ProviderID) int {
	if p, ok := r.Get(id); ok {
		return p.Priority()
	}
	return 0
}
