package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// PHashProvider wraps the in-house perceptual-hash scanner. It is the only
// provider every plan tier is entitled to, so it carries the highest
// selection priority.
type PHashProvider struct {
	*BaseProvider
}

// NewPHashProvider creates a new perceptual-hash scanner provider
func NewPHashProvider(config *types.ProviderConfig) (Provider, error) {
	return &PHashProvider{BaseProvider: NewBaseProvider(config)}, nil
}

// phashRequest represents a scanner API request
type phashRequest struct {
	Image        string  `json:"image"` // base64-encoded payload
	MinScore     float64 `json:"min_score,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	DeepScan     bool    `json:"deep_scan,omitempty"`
	StrictReview bool    `json:"strict_review,omitempty"`
}

// phashResponse represents a scanner API response
type phashResponse struct {
	Matches []struct {
		URL          string  `json:"url"`
		Host         string  `json:"host"`
		Title        string  `json:"title"`
		Score        float64 `json:"score"` // 0-1
		Status       string  `json:"status"`
		ThumbnailURL string  `json:"thumbnail_url,omitempty"`
		Width        int     `json:"width,omitempty"`
		Height       int     `json:"height,omitempty"`
		FileSize     int64   `json:"file_size,omitempty"`
		FirstSeen    string  `json:"first_seen,omitempty"`
	} `json:"matches"`
}

// Search executes a scan against the perceptual-hash index
func (p *PHashProvider) Search(ctx context.Context, query *types.SearchQuery) ([]*types.ProviderResult, error) {
	if err := p.ConsumeQuota(); err != nil {
		return nil, err
	}

	scanReq := phashRequest{
		Image:        base64.StdEncoding.EncodeToString(query.ImageBytes),
		MinScore:     query.Options.MinimumSimilarity / 100,
		Limit:        query.Options.MaxResults,
		DeepScan:     query.SearchType == types.SearchTypeDeep,
		StrictReview: query.Options.SecurityLevel == "strict",
	}
	if scanReq.Limit == 0 {
		scanReq.Limit = 50
	}

	reqBody, err := json.Marshal(scanReq)
	if err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to marshal request", err)
	}

	apiURL := fmt.Sprintf("%s/v1/scan", p.Config().APIHost)
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

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.ClassifyStatusError(resp.StatusCode, string(body))
	}

	var scanResp phashResponse
	if err := json.NewDecoder(resp.Body).Decode(&scanResp); err != nil {
		return nil, types.NewProviderError(p.ID(), types.ErrKindMalformed, "failed to decode response", err)
	}

	results := make([]*types.ProviderResult, 0, len(scanResp.Matches))
	for _, m := range scanResp.Matches {
		detectedAt := time.Now()
		if m.FirstSeen != "" {
			if ts, err := time.Parse(time.RFC3339, m.FirstSeen); err == nil {
				detectedAt = ts
			}
		}

		metadata := map[string]interface{}{}
		if m.Width > 0 {
			metadata["width"] = m.Width
			metadata["height"] = m.Height
		}
		if m.FileSize > 0 {
			metadata["file_size"] = m.FileSize
		}
		if len(metadata) == 0 {
			metadata = nil
		}

		results = append(results, &types.ProviderResult{
			URL:        m.URL,
			SiteName:   m.Host,
			Title:      m.Title,
			Similarity: m.Score * 100,
			Status:     normalizeStatus(m.Status),
			Thumbnail:  m.ThumbnailURL,
			Provider:   p.ID(),
			Metadata:   metadata,
			DetectedAt: detectedAt,
		})
	}

	return results, nil
}

// normalizeStatus maps scanner status strings onto the common status tags.
func normalizeStatus(s string) types.ResultStatus {
	switch s {
	case "violation", "infringement":
		return types.StatusViolation
	case "review", "pending", "pending-review":
		return types.StatusPendingReview
	default:
		return types.StatusFound
	}
}

// IsAvailable probes the scanner health endpoint
func (p *PHashProvider) IsAvailable(ctx context.Context) bool {
	if !p.BaseProvider.IsAvailable(ctx) {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", p.Config().APIHost+"/healthz", nil)
	if err != nil {
		return false
	}

	resp, err := p.HTTPClient().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
