package shape

import (
	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// PlaceholderTitle replaces real page titles for tiers that may not see them.
const PlaceholderTitle = "Protected result"

// Shape applies plan-based field redaction to an aggregated result list.
// It is a pure transform: no I/O, no reordering, no count change, and the
// same input and tier always produce the same output. Redaction happens
// after ranking and never feeds back into it.
//
// Visibility rules:
//
//	free:     site name, similarity, status; title is a placeholder
//	pro:      adds the direct URL, detection time, and contributing providers
//	business: full result including title, thumbnail, and metadata
func Shape(results []*types.AggregatedResult, tier types.PlanTier) []*types.ShapedResult {
	shaped := make([]*types.ShapedResult, len(results))
	for i, r := range results {
		shaped[i] = shapeOne(r, tier)
	}
	return shaped
}

func shapeOne(r *types.AggregatedResult, tier types.PlanTier) *types.ShapedResult {
	s := &types.ShapedResult{
		SiteName:   r.SiteName,
		Title:      PlaceholderTitle,
		Similarity: r.Similarity,
		Status:     r.Status,
	}

	// Unknown tiers get the most restricted view.
	if tier != types.TierPro && tier != types.TierBusiness {
		return s
	}

	// pro and above
	s.URL = r.URL
	s.Providers = append([]types.ProviderID(nil), r.Providers...)
	s.DetectedAt = r.DetectedAt

	if tier != types.TierBusiness {
		return s
	}

	s.Title = r.Title
	if s.Title == "" {
		s.Title = PlaceholderTitle
	}
	s.Thumbnail = r.Thumbnail
	s.Metadata = copyMetadata(r.Metadata)
	return s
}

// copyMetadata clones the metadata map so later shaping of the same
// aggregate can never observe caller mutations.
func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
