package aggregate

import (
	"testing"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pr(provider types.ProviderID, url string, similarity float64) *types.ProviderResult {
	return &types.ProviderResult{
		URL:        url,
		SiteName:   "example.com",
		Similarity: similarity,
		Status:     types.StatusFound,
		Provider:   provider,
	}
}

func TestAggregate_MergeAcrossProviders(t *testing.T) {
	results := []*types.ProviderResult{
		pr(types.ProviderPHash, "https://a.example.com/1", 95),
		pr(types.ProviderPHash, "https://b.example.com/2", 80),
		pr(types.ProviderTinEye, "https://b.example.com/2", 80),
		pr(types.ProviderTinEye, "https://c.example.com/3", 70),
		pr(types.ProviderVision, "https://a.example.com/1", 90),
		pr(types.ProviderVision, "https://d.example.com/4", 60),
		pr(types.ProviderVision, "https://e.example.com/5", 55),
	}

	merged := Aggregate(results, Config{})

	// Two URL duplicates collapse: 7 raw entries become 5
	require.Len(t, merged, 5)

	// Ranked by similarity, duplicates keep the best score
	assert.Equal(t, "https://a.example.com/1", merged[0].URL)
	assert.Equal(t, 95.0, merged[0].Similarity)
	assert.ElementsMatch(t, []types.ProviderID{types.ProviderPHash, types.ProviderVision}, merged[0].Providers)

	assert.Equal(t, "https://b.example.com/2", merged[1].URL)
	assert.ElementsMatch(t, []types.ProviderID{types.ProviderPHash, types.ProviderTinEye}, merged[1].Providers)

	assert.Equal(t, "https://c.example.com/3", merged[2].URL)
	assert.Equal(t, "https://d.example.com/4", merged[3].URL)
	assert.Equal(t, "https://e.example.com/5", merged[4].URL)
}

func TestAggregate_StatusEscalation(t *testing.T) {
	found := pr(types.ProviderTinEye, "https://x.example.com/p", 88)
	violation := pr(types.ProviderPHash, "https://x.example.com/p", 85)
	violation.Status = types.StatusViolation

	merged := Aggregate([]*types.ProviderResult{found, violation}, Config{})
	require.Len(t, merged, 1)

	// Violation reported by any provider wins, best similarity is kept
	assert.Equal(t, types.StatusViolation, merged[0].Status)
	assert.Equal(t, 88.0, merged[0].Similarity)
}

func TestAggregate_FieldBackfill(t *testing.T) {
	bare := pr(types.ProviderVision, "https://x.example.com/p", 90)
	bare.SiteName = ""
	rich := pr(types.ProviderBing, "https://x.example.com/p", 80)
	rich.Title = "Page title"
	rich.Thumbnail = "https://thumb.example.com/t.jpg"

	merged := Aggregate([]*types.ProviderResult{bare, rich}, Config{})
	require.Len(t, merged, 1)
	assert.Equal(t, "Page title", merged[0].Title)
	assert.Equal(t, "https://thumb.example.com/t.jpg", merged[0].Thumbnail)
	assert.Equal(t, "example.com", merged[0].SiteName)
}

func TestAggregate_MinSimilarityFilter(t *testing.T) {
	results := []*types.ProviderResult{
		pr(types.ProviderPHash, "https://a.example.com/1", 92),
		pr(types.ProviderPHash, "https://b.example.com/2", 40),
	}

	merged := Aggregate(results, Config{MinSimilarity: 50})
	require.Len(t, merged, 1)
	assert.Equal(t, "https://a.example.com/1", merged[0].URL)
}

func TestAggregate_PerProviderCap(t *testing.T) {
	results := []*types.ProviderResult{
		pr(types.ProviderVision, "https://a.example.com/1", 70),
		pr(types.ProviderVision, "https://b.example.com/2", 90),
		pr(types.ProviderVision, "https://c.example.com/3", 80),
		pr(types.ProviderPHash, "https://d.example.com/4", 60),
	}

	merged := Aggregate(results, Config{MaxResultsPerProvider: 2})

	// Vision keeps only its two strongest results
	require.Len(t, merged, 3)
	assert.Equal(t, "https://b.example.com/2", merged[0].URL)
	assert.Equal(t, "https://c.example.com/3", merged[1].URL)
	assert.Equal(t, "https://d.example.com/4", merged[2].URL)
}

func TestAggregate_GlobalCap(t *testing.T) {
	results := []*types.ProviderResult{
		pr(types.ProviderPHash, "https://a.example.com/1", 90),
		pr(types.ProviderPHash, "https://b.example.com/2", 80),
		pr(types.ProviderPHash, "https://c.example.com/3", 70),
	}

	merged := Aggregate(results, Config{MaxResults: 2})
	require.Len(t, merged, 2)
	assert.Equal(t, "https://a.example.com/1", merged[0].URL)
}

func TestAggregate_DeterministicTieBreak(t *testing.T) {
	priorityOf := func(id types.ProviderID) int {
		if id == types.ProviderPHash {
			return 100
		}
		return 10
	}

	results := []*types.ProviderResult{
		pr(types.ProviderVision, "https://z.example.com/1", 75),
		pr(types.ProviderPHash, "https://m.example.com/2", 75),
		pr(types.ProviderVision, "https://a.example.com/3", 75),
	}

	// Equal similarity: higher-priority provider first, then URL order
	merged := Aggregate(results, Config{PriorityOf: priorityOf})
	require.Len(t, merged, 3)
	assert.Equal(t, "https://m.example.com/2", merged[0].URL)
	assert.Equal(t, "https://a.example.com/3", merged[1].URL)
	assert.Equal(t, "https://z.example.com/1", merged[2].URL)

	// Same input, same output
	again := Aggregate(results, Config{PriorityOf: priorityOf})
	require.Len(t, again, 3)
	for i := range merged {
		assert.Equal(t, merged[i].URL, again[i].URL)
	}
}

func TestAggregate_Empty(t *testing.T) {
	merged := Aggregate(nil, Config{MaxResults: 10})
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}
