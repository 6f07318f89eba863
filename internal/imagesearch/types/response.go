package types

import "time"

// ResultStatus classifies a match from a compliance point of view.
type ResultStatus string

const (
	StatusFound         ResultStatus = "found"
	StatusViolation     ResultStatus = "violation"
	StatusPendingReview ResultStatus = "pending-review"
)

// ProviderResult is one match returned by one provider, already normalized
// from the backend's native schema. Immutable once produced.
type ProviderResult struct {
	URL        string                 `json:"url"`
	SiteName   string                 `json:"site_name"`
	Title      string                 `json:"title"`
	Similarity float64                `json:"similarity"` // 0-100
	Status     ResultStatus           `json:"status"`
	Thumbnail  string                 `json:"thumbnail,omitempty"`
	Provider   ProviderID             `json:"provider"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"` // dimensions, file size, ...
	DetectedAt time.Time              `json:"detected_at"`
}

// AggregatedResult is the deduplicated, ranked view of one logical match.
// Providers records every backend that reported the URL.
type AggregatedResult struct {
	URL        string                 `json:"url"`
	SiteName   string                 `json:"site_name"`
	Title      string                 `json:"title"`
	Similarity float64                `json:"similarity"`
	Status     ResultStatus           `json:"status"`
	Thumbnail  string                 `json:"thumbnail,omitempty"`
	Providers  []ProviderID           `json:"providers"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	DetectedAt time.Time              `json:"detected_at"`
}

// ShapedResult is an AggregatedResult after plan-based redaction, safe to
// hand back to the caller. Redacted fields are absent from the JSON
// encoding, never zeroed copies of the real value.
type ShapedResult struct {
	URL        string                 `json:"url,omitempty"`
	SiteName   string                 `json:"site_name"`
	Title      string                 `json:"title"`
	Similarity float64                `json:"similarity"`
	Status     ResultStatus           `json:"status"`
	Thumbnail  string                 `json:"thumbnail,omitempty"`
	Providers  []ProviderID           `json:"providers,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	DetectedAt time.Time              `json:"detected_at,omitzero"`
}
