package shape

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *types.AggregatedResult {
	return &types.AggregatedResult{
		URL:        "https://gallery.example.com/post/1",
		SiteName:   "gallery.example.com",
		Title:      "Gallery post",
		Similarity: 92.5,
		Status:     types.StatusViolation,
		Thumbnail:  "https://thumb.example.com/t.jpg",
		Providers:  []types.ProviderID{types.ProviderPHash, types.ProviderTinEye},
		Metadata:   map[string]interface{}{"width": 1024},
		DetectedAt: time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestShape_FreeTier(t *testing.T) {
	shaped := Shape([]*types.AggregatedResult{sampleResult()}, types.TierFree)
	require.Len(t, shaped, 1)
	s := shaped[0]

	assert.Equal(t, "gallery.example.com", s.SiteName)
	assert.Equal(t, 92.5, s.Similarity)
	assert.Equal(t, types.StatusViolation, s.Status)
	assert.Equal(t, PlaceholderTitle, s.Title)

	// Redacted fields must be absent, not zeroed copies
	assert.Empty(t, s.URL)
	assert.Empty(t, s.Providers)
	assert.Empty(t, s.Thumbnail)
	assert.Nil(t, s.Metadata)
	assert.True(t, s.DetectedAt.IsZero())
}

func TestShape_FreeTier_JSONOmitsRedacted(t *testing.T) {
	shaped := Shape([]*types.AggregatedResult{sampleResult()}, types.TierFree)

	raw, err := json.Marshal(shaped[0])
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.NotContains(t, m, "url")
	assert.NotContains(t, m, "providers")
	assert.NotContains(t, m, "thumbnail")
	assert.NotContains(t, m, "detected_at")
	assert.Contains(t, m, "site_name")
	assert.Contains(t, m, "similarity")
}

func TestShape_ProTier(t *testing.T) {
	shaped := Shape([]*types.AggregatedResult{sampleResult()}, types.TierPro)
	require.Len(t, shaped, 1)
	s := shaped[0]

	assert.Equal(t, "https://gallery.example.com/post/1", s.URL)
	assert.Equal(t, []types.ProviderID{types.ProviderPHash, types.ProviderTinEye}, s.Providers)
	assert.False(t, s.DetectedAt.IsZero())

	// Still redacted for pro
	assert.Equal(t, PlaceholderTitle, s.Title)
	assert.Empty(t, s.Thumbnail)
	assert.Nil(t, s.Metadata)
}

func TestShape_BusinessTier(t *testing.T) {
	shaped := Shape([]*types.AggregatedResult{sampleResult()}, types.TierBusiness)
	require.Len(t, shaped, 1)
	s := shaped[0]

	assert.Equal(t, "Gallery post", s.Title)
	assert.Equal(t, "https://thumb.example.com/t.jpg", s.Thumbnail)
	assert.Equal(t, map[string]interface{}{"width": 1024}, s.Metadata)
}

func TestShape_BusinessTier_EmptyTitleGetsPlaceholder(t *testing.T) {
	r := sampleResult()
	r.Title = ""

	shaped := Shape([]*types.AggregatedResult{r}, types.TierBusiness)
	assert.Equal(t, PlaceholderTitle, shaped[0].Title)
}

func TestShape_PreservesOrderAndCount(t *testing.T) {
	a, b, c := sampleResult(), sampleResult(), sampleResult()
	a.URL, b.URL, c.URL = "https://a.example.com", "https://b.example.com", "https://c.example.com"

	shaped := Shape([]*types.AggregatedResult{a, b, c}, types.TierPro)
	require.Len(t, shaped, 3)
	assert.Equal(t, "https://a.example.com", shaped[0].URL)
	assert.Equal(t, "https://b.example.com", shaped[1].URL)
	assert.Equal(t, "https://c.example.com", shaped[2].URL)
}

func TestShape_DoesNotMutateInput(t *testing.T) {
	r := sampleResult()

	shaped := Shape([]*types.AggregatedResult{r}, types.TierBusiness)
	shaped[0].Metadata["width"] = 1
	shaped[0].Providers = append(shaped[0].Providers[:0], types.ProviderBing)

	assert.Equal(t, 1024, r.Metadata["width"])
	assert.Equal(t, "Gallery post", r.Title)
}

func TestShape_UnknownTierTreatedAsFree(t *testing.T) {
	shaped := Shape([]*types.AggregatedResult{sampleResult()}, types.PlanTier("enterprise-trial"))
	require.Len(t, shaped, 1)

	assert.Empty(t, shaped[0].URL)
	assert.Empty(t, shaped[0].Thumbnail)
	assert.Nil(t, shaped[0].Metadata)
	assert.Equal(t, PlaceholderTitle, shaped[0].Title)
}
