package provider

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// BingProvider implements the Bing Visual Search API
type BingProvider struct {
	*BaseProvider
}

// NewBingProvider creates a new Bing Visual Search provider
func NewBingProvider(config *types.ProviderConfig) (Provider, error) {
	return &BingProvider{BaseProvider: NewBaseProvider(config)}, nil
}

// Search executes a visual search using the Bing API. Bing buries page
// matches inside a list of "actions" of mixed types; only the
// PagesIncluding action carries reverse-image hits.
func (p *BingProvider) Search(ctx context.Context, query *types.SearchQuery) ([]*types.ProviderResult, error) {
	if err := p.ConsumeQuota(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "query.jpg")
	if err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to build upload", err)
	}
	if _, err := part.Write(query.ImageBytes); err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to build upload", err)
	}
	if err := writer.Close(); err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to build upload", err)
	}

	apiURL := p.Config().APIHost + "/v7.0/images/visualsearch"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, &buf)
	if err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindNetwork, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.Config().APIKey)

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

	maxResults := query.Options.MaxResults
	if maxResults == 0 {
		maxResults = 50
	}

	now := time.Now()
	var results []*types.ProviderResult

	gjson.GetBytes(raw, `tags.#.actions|@flatten`).ForEach(func(_, action gjson.Result) bool {
		if action.Get("actionType").String() != "PagesIncluding" {
			return true
		}
		action.Get("data.value").ForEach(func(_, item gjson.Result) bool {
			if len(results) >= maxResults {
				return false
			}
			pageURL := item.Get("hostPageUrl").String()
			if pageURL == "" {
				return true
			}

			var metadata map[string]interface{}
			if w := item.Get("width").Int(); w > 0 {
				metadata = map[string]interface{}{
					"width":  int(w),
					"height": int(item.Get("height").Int()),
				}
			}

			results = append(results, &types.ProviderResult{
				URL:        pageURL,
				SiteName:   item.Get("hostPageDomainFriendlyName").String(),
				Title:      item.Get("name").String(),
				Similarity: bingScore(len(results)),
				Status:     types.StatusFound,
				Thumbnail:  item.Get("thumbnailUrl").String(),
				Provider:   p.ID(),
				Metadata:   metadata,
				DetectedAt: now,
			})
			return true
		})
		return true
	})

	for _, r := range results {
		if r.SiteName == "" {
			r.SiteName = hostOf(r.URL)
		}
	}

	return results, nil
}

// bingScore synthesizes a similarity from result rank; Bing returns matches
// best-first but exposes no numeric confidence.
func bingScore(rank int) float64 {
	score := 90.0 - float64(rank)*1.5
	if score < 0 {
		return 0
	}
	return score
}
