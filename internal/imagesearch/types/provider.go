package types

type ProviderID string

const (
	ProviderPHash  ProviderID = "phash"
	ProviderVision ProviderID = "vision"
	ProviderTinEye ProviderID = "tineye"
	ProviderBing   ProviderID = "bing"
)

// PlanTier is the requester's subscription level. It gates which providers
// are selected and how much of each result the caller is allowed to see.
type PlanTier string

const (
	TierFree     PlanTier = "free"
	TierPro      PlanTier = "pro"
	TierBusiness PlanTier = "business"
)

// ProviderConfig represents one search backend's configuration
type ProviderConfig struct {
	ID   ProviderID `json:"id" mapstructure:"id"`
	Name string     `json:"name" mapstructure:"name"`

	// API settings
	APIHost string `json:"api_host" mapstructure:"api_host"`
	APIKey  string `json:"api_key,omitempty" mapstructure:"api_key,omitempty"`

	// Static selection priority. Higher runs first and wins ranking ties.
	// The proprietary scanner carries the highest priority so baseline
	// coverage survives paid-provider outages.
	Priority int `json:"priority" mapstructure:"priority"`

	// QuotaLimit is the number of upstream calls this provider may make
	// before the registry stops selecting it. 0 means unlimited.
	QuotaLimit int64 `json:"quota_limit,omitempty" mapstructure:"quota_limit,omitempty"`

	// Optional settings
	Timeout    int `json:"timeout,omitempty" mapstructure:"timeout,omitempty"`         // seconds
	MaxRetries int `json:"max_retries,omitempty" mapstructure:"max_retries,omitempty"` // default: 3
}

// Validate validates the provider configuration
func (c *ProviderConfig) Validate() error {
	if c.ID == "" {
		return ErrInvalidProviderID
	}
	if c.Name == "" {
		return ErrInvalidProviderName
	}
	if c.APIHost == "" {
		return ErrInvalidAPIHost
	}

	// Provider-specific validation
	switch c.ID {
	case ProviderPHash:
		// The in-house scanner authenticates by network, not by key.
	default:
		if c.APIKey == "" {
			return ErrMissingAPIKey
		}
	}

	return nil
}
