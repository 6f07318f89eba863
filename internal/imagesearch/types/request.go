package types

// SearchType selects the depth of a reverse-image search.
type SearchType string

const (
	SearchTypeGeneral SearchType = "general"
	SearchTypeDeep    SearchType = "deep"
)

// RequesterContext is the pre-resolved identity of the caller. Authentication
// happens upstream; the engine only ever sees this value.
type RequesterContext struct {
	AccountID string   `json:"account_id,omitempty"` // empty for anonymous searches
	PlanTier  PlanTier `json:"plan_tier"`
}

// Anonymous reports whether the search has no owning account.
func (r *RequesterContext) Anonymous() bool {
	return r.AccountID == ""
}

// SearchOptions carries per-search overrides on top of the plan defaults.
type SearchOptions struct {
	MaxResults        int     `json:"max_results,omitempty" validate:"omitempty,min=1,max=200"`
	MinimumSimilarity float64 `json:"minimum_similarity,omitempty" validate:"omitempty,min=0,max=100"`
	SecurityLevel     string  `json:"security_level,omitempty"` // "standard" or "strict"
}

// SearchQuery is the immutable input unit for one search invocation.
// ImageBytes and ImageRef are alternatives; when ImageRef is set the image is
// dereferenced from the blob store before the query reaches the providers.
type SearchQuery struct {
	ImageBytes []byte           `json:"-"`
	ImageRef   string           `json:"image_ref,omitempty"`
	SearchType SearchType       `json:"search_type"`
	Requester  RequesterContext `json:"requester"`
	Options    SearchOptions    `json:"options"`
}

// Validate validates the search query
func (q *SearchQuery) Validate() error {
	if len(q.ImageBytes) == 0 && q.ImageRef == "" {
		return ErrEmptyImage
	}
	if len(q.ImageBytes) > MaxImageSize {
		return ErrImageTooLarge
	}
	if q.Requester.PlanTier == "" {
		return ErrMissingPlanTier
	}
	return nil
}

// MaxImageSize is the largest query image accepted, in bytes.
const MaxImageSize = 20 << 20
