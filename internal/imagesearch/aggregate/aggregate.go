package aggregate

import (
	"sort"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// Config controls dedup, ranking, and truncation.
type Config struct {
	// MaxResults is the global cap applied after merging (plan-dependent).
	MaxResults int
	// MaxResultsPerProvider caps one provider's contribution before merging
	// so a noisy backend cannot dominate the final list.
	MaxResultsPerProvider int
	// MinSimilarity drops weak matches before ranking.
	MinSimilarity float64
	// PriorityOf resolves a provider's static priority for tie-breaking.
	PriorityOf func(types.ProviderID) int
}

// Aggregate merges results across providers, removes URL duplicates, ranks
// by similarity, and truncates to the configured caps. Identical input
// always yields identical output: ties break on provider priority, then on
// URL. An empty input yields an empty output, not an error.
func Aggregate(results []*types.ProviderResult, cfg Config) []*types.AggregatedResult {
	priorityOf := cfg.PriorityOf
	if priorityOf == nil {
		priorityOf = func(types.ProviderID) int { return 0 }
	}

	capped := capPerProvider(results, cfg.MaxResultsPerProvider)

	// Exact URL match is the identity rule. Near-duplicate images hosted at
	// different URLs stay separate entries.
	merged := make(map[string]*types.AggregatedResult)
	order := make([]string, 0, len(capped))

	for _, r := range capped {
		if r.Similarity < cfg.MinSimilarity {
			continue
		}

		existing, ok := merged[r.URL]
		if !ok {
			merged[r.URL] = &types.AggregatedResult{
				URL:        r.URL,
				SiteName:   r.SiteName,
				Title:      r.Title,
				Similarity: r.Similarity,
				Status:     r.Status,
				Thumbnail:  r.Thumbnail,
				Providers:  []types.ProviderID{r.Provider},
				Metadata:   r.Metadata,
				DetectedAt: r.DetectedAt,
			}
			order = append(order, r.URL)
			continue
		}

		existing.Providers = appendProvider(existing.Providers, r.Provider)
		if r.Similarity > existing.Similarity {
			existing.Similarity = r.Similarity
		}
		if statusRank(r.Status) > statusRank(existing.Status) {
			existing.Status = r.Status
		}
		if existing.Title == "" {
			existing.Title = r.Title
		}
		if existing.SiteName == "" {
			existing.SiteName = r.SiteName
		}
		if existing.Thumbnail == "" {
			existing.Thumbnail = r.Thumbnail
		}
		if existing.Metadata == nil {
			existing.Metadata = r.Metadata
		}
	}

	aggregated := make([]*types.AggregatedResult, 0, len(merged))
	for _, url := range order {
		aggregated = append(aggregated, merged[url])
	}

	sort.SliceStable(aggregated, func(i, j int) bool {
		a, b := aggregated[i], aggregated[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		pa, pb := bestPriority(a.Providers, priorityOf), bestPriority(b.Providers, priorityOf)
		if pa != pb {
			return pa > pb
		}
		return a.URL < b.URL
	})

	if cfg.MaxResults > 0 && len(aggregated) > cfg.MaxResults {
		aggregated = aggregated[:cfg.MaxResults]
	}

	return aggregated
}

// capPerProvider keeps each provider's strongest maxPer results, preserving
// that provider's own relative order among the kept entries.
func capPerProvider(results []*types.ProviderResult, maxPer int) []*types.ProviderResult {
	if maxPer <= 0 {
		return results
	}

	byProvider := make(map[types.ProviderID][]*types.ProviderResult)
	providerOrder := []types.ProviderID{}
	for _, r := range results {
		if _, ok := byProvider[r.Provider]; !ok {
			providerOrder = append(providerOrder, r.Provider)
		}
		byProvider[r.Provider] = append(byProvider[r.Provider], r)
	}

	capped := make([]*types.ProviderResult, 0, len(results))
	for _, id := range providerOrder {
		rs := byProvider[id]
		if len(rs) > maxPer {
			sorted := make([]*types.ProviderResult, len(rs))
			copy(sorted, rs)
			sort.SliceStable(sorted, func(i, j int) bool {
				return sorted[i].Similarity > sorted[j].Similarity
			})
			rs = sorted[:maxPer]
		}
		capped = append(capped, rs...)
	}
	return capped
}

func appendProvider(providers []types.ProviderID, id types.ProviderID) []types.ProviderID {
	for _, p := range providers {
		if p == id {
			return providers
		}
	}
	return append(providers, id)
}

// statusRank orders status severity: a violation reported by any provider
// outranks a plain match from another.
func statusRank(s types.ResultStatus) int {
	switch s {
	case types.StatusViolation:
		return 2
	case types.StatusPendingReview:
		return 1
	default:
		return 0
	}
}

func bestPriority(providers []types.ProviderID, priorityOf func(types.ProviderID) int) int {
	best := 0
	for i, p := range providers {
		if pr := priorityOf(p); i == 0 || pr > best {
			best = pr
		}
	}
	return best
}
