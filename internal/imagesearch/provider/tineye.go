package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// TinEyeProvider implements the TinEye reverse-image-search API
type TinEyeProvider struct {
	*BaseProvider
}

// NewTinEyeProvider creates a new TinEye provider
func NewTinEyeProvider(config *types.ProviderConfig) (Provider, error) {
	return &TinEyeProvider{BaseProvider: NewBaseProvider(config)}, nil
}

// tineyeResponse represents a TinEye API response
type tineyeResponse struct {
	Code     int      `json:"code"`
	Messages []string `json:"messages,omitempty"`
	Results  struct {
		Matches []struct {
			Domain    string  `json:"domain"`
			Score     float64 `json:"score"` // 0-100
			ImageURL  string  `json:"image_url"`
			Width     int     `json:"width,omitempty"`
			Height    int     `json:"height,omitempty"`
			Size      int64   `json:"size,omitempty"`
			Backlinks []struct {
				URL       string `json:"url"`
				Backlink  string `json:"backlink"`
				CrawlDate string `json:"crawl_date,omitempty"`
			} `json:"backlinks"`
		} `json:"matches"`
	} `json:"results"`
}

// Search executes a search query using the TinEye API. TinEye takes the raw
// image as a multipart upload rather than base64 JSON.
func (p *TinEyeProvider) Search(ctx context.Context, query *types.SearchQuery) ([]*types.ProviderResult, error) {
	if err := p.ConsumeQuota(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image_upload", "query.jpg")
	if err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to build upload", err)
	}
	if _, err := part.Write(query.ImageBytes); err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to build upload", err)
	}

	limit := query.Options.MaxResults
	if limit == 0 {
		limit = 50
	}
	_ = writer.WriteField("limit", fmt.Sprintf("%d", limit))
	_ = writer.WriteField("sort", "score")
	_ = writer.WriteField("order", "desc")
	if err := writer.Close(); err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to build upload", err)
	}

	apiURL := fmt.Sprintf("%s/rest/search/", p.Config().APIHost)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, &buf)
	if err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindNetwork, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("X-API-Key", p.Config().APIKey)

	resp, err := p.DoRequest(ctx, httpReq)
	if err != nil {
		return nil, p.ClassifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.ClassifyStatusError(resp.StatusCode, string(body))
	}

	var teResp tineyeResponse
	if err := json.NewDecoder(resp.Body).Decode(&teResp); err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to decode response", err)
	}
	if teResp.Code != 200 && teResp.Code != 0 {
		msg := "search rejected"
		if len(teResp.Messages) > 0 {
			msg = teResp.Messages[0]
		}
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, msg, types.ErrInvalidResponse)
	}

	// A TinEye match is one crawled image with N backlinks; every backlink
	// is a distinct page using the image, so each becomes its own result.
	var results []*types.ProviderResult
	for _, m := range teResp.Results.Matches {
		metadata := map[string]interface{}{}
		if m.Width > 0 {
			metadata["width"] = m.Width
			metadata["height"] = m.Height
		}
		if m.Size > 0 {
			metadata["file_size"] = m.Size
		}
		if len(metadata) == 0 {
			metadata = nil
		}

		for _, bl := range m.Backlinks {
			detectedAt := time.Now()
			if bl.CrawlDate != "" {
				if ts, err := time.Parse("2006-01-02", bl.CrawlDate); err == nil {
					detectedAt = ts
				}
			}

			pageURL := bl.Backlink
			if pageURL == "" {
				pageURL = bl.URL
			}

			results = append(results, &types.ProviderResult{
				URL:        pageURL,
				SiteName:   m.Domain,
				Similarity: m.Score,
				Status:     types.StatusFound,
				Thumbnail:  m.ImageURL,
				Provider:   p.ID(),
				Metadata:   metadata,
				DetectedAt: detectedAt,
			})
		}
	}

	return results, nil
}
