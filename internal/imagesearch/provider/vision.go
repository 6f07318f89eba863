package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// VisionProvider implements web detection via the Cloud Vision API. Vision
// reports exact and partial matches separately with no numeric similarity,
// so the adapter synthesizes scores: full matches rank as near-certain,
// partial matches scale down with their position in the response.
type VisionProvider struct {
	*BaseProvider
}

// NewVisionProvider creates a new Cloud Vision provider
func NewVisionProvider(config *types.ProviderConfig) (Provider, error) {
	return &VisionProvider{BaseProvider: NewBaseProvider(config)}, nil
}

const (
	visionFullMatchScore    = 98.0
	visionPartialBaseScore  = 85.0
	visionPartialScoreDecay = 2.5
)

// Search executes a web-detection request against the Vision API
func (p *VisionProvider) Search(ctx context.Context, query *types.SearchQuery) ([]*types.ProviderResult, error) {
	if err := p.ConsumeQuota(); err != nil {
		return nil, err
	}

	maxResults := query.Options.MaxResults
	if maxResults == 0 {
		maxResults = 50
	}

	body := map[string]interface{}{
		"requests": []map[string]interface{}{
			{
				"image": map[string]string{
					"content": base64.StdEncoding.EncodeToString(query.ImageBytes),
				},
				"features": []map[string]interface{}{
					{"type": "WEB_DETECTION", "maxResults": maxResults},
				},
			},
		},
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to marshal request", err)
	}

	apiURL := fmt.Sprintf("%s/v1/images:annotate?key=%s", p.Config().APIHost, url.QueryEscape(p.Config().APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindNetwork, "failed to create request", err)
	}
	for k, v := range p.BuildDefaultHeaders() {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.DoRequest(ctx, httpReq)
	if err != nil {
		return nil, p.ClassifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindNetwork, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.ClassifyStatusError(resp.StatusCode, string(raw))
	}

	// The annotate response nests web detection three levels deep with most
	// fields optional. gjson keeps the extraction from turning into a tower
	// of struct definitions for fields we never read.
	detection := gjson.GetBytes(raw, "responses.0.webDetection")
	if !detection.Exists() {
		if gjson.GetBytes(raw, "responses.0.error").Exists() {
			return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed,
				gjson.GetBytes(raw, "responses.0.error.message").String(), types.ErrInvalidResponse)
		}
		return []*types.ProviderResult{}, nil
	}

	now := time.Now()
	var results []*types.ProviderResult

	detection.Get("fullMatchingImages").ForEach(func(_, match gjson.Result) bool {
		if r := p.toResult(match, visionFullMatchScore, now); r != nil {
			results = append(results, r)
		}
		return true
	})

	rank := 0
	detection.Get("partialMatchingImages").ForEach(func(_, match gjson.Result) bool {
		score := visionPartialBaseScore - float64(rank)*visionPartialScoreDecay
		if score < 0 {
			score = 0
		}
		if r := p.toResult(match, score, now); r != nil {
			results = append(results, r)
		}
		rank++
		return true
	})

	// Pages carry the human context (host, title) for matches found above.
	pageTitles := map[string]string{}
	detection.Get("pagesWithMatchingImages").ForEach(func(_, page gjson.Result) bool {
		pageTitles[hostOf(page.Get("url").String())] = page.Get("pageTitle").String()
		return true
	})
	for _, r := range results {
		if r.Title == "" {
			r.Title = pageTitles[r.SiteName]
		}
	}

	return results, nil
}

func (p *VisionProvider) toResult(match gjson.Result, score float64, now time.Time) *types.ProviderResult {
	u := match.Get("url").String()
	if u == "" {
		return nil
	}
	return &types.ProviderResult{
		URL:        u,
		SiteName:   hostOf(u),
		Similarity: score,
		Status:     types.StatusFound,
		Provider:   p.ID(),
		DetectedAt: now,
	}
}

// hostOf extracts the host from a URL, falling back to the raw string.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
