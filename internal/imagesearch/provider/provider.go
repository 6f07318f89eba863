package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// Provider defines the interface for reverse-image-search backends
type Provider interface {
	// Search executes a reverse-image search for the query image
	Search(ctx context.Context, query *types.SearchQuery) ([]*types.ProviderResult, error)

	// ID returns the provider ID
	ID() types.ProviderID

	// Name returns the provider name
	Name() string

	// Priority returns the static selection priority (higher first)
	Priority() int

	// Validate validates the provider configuration
	Validate() error

	// IsAvailable checks if the provider can serve a call right now
	IsAvailable(ctx context.Context) bool

	// RemainingQuota returns the remaining upstream call budget, -1 if unlimited
	RemainingQuota() int64
}

// BaseProvider provides common functionality for all providers
type BaseProvider struct {
	config     *types.ProviderConfig
	httpClient *http.Client

	// remaining upstream calls; -1 means unlimited. Decremented atomically
	// since concurrent searches race on the same counter.
	remaining atomic.Int64
}

// NewBaseProvider creates a new base provider
func NewBaseProvider(config *types.ProviderConfig) *BaseProvider {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	b := &BaseProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	if config.QuotaLimit > 0 {
		b.remaining.Store(config.QuotaLimit)
	} else {
		b.remaining.Store(-1)
	}

	return b
}

// ID returns the provider ID
func (b *BaseProvider) ID() types.ProviderID {
	return b.config.ID
}

// Name returns the provider name
func (b *BaseProvider) Name() string {
	return b.config.Name
}

// Priority returns the static selection priority
func (b *BaseProvider) Priority() int {
	return b.config.Priority
}

// Config returns the provider configuration
func (b *BaseProvider) Config() *types.ProviderConfig {
	return b.config
}

// HTTPClient returns the HTTP client
func (b *BaseProvider) HTTPClient() *http.Client {
	return b.httpClient
}

// RemainingQuota returns the remaining call budget, -1 if unlimited
func (b *BaseProvider) RemainingQuota() int64 {
	return b.remaining.Load()
}

// ConsumeQuota claims one upstream call. It returns a quota error when the
// budget is exhausted so the caller records the failure instead of hitting
// the backend.
func (b *BaseProvider) ConsumeQuota() error {
	for {
		cur := b.remaining.Load()
		if cur < 0 {
			return nil
		}
		if cur == 0 {
			return types.NewProviderError(b.ID(), types.ErrKindQuota, "quota drained", types.ErrProviderQuotaDrained)
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}

// BuildDefaultHeaders builds default HTTP headers
func (b *BaseProvider) BuildDefaultHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   "ImageGuard-Backend/1.0",
	}
}

// DoRequest executes an HTTP request with retry logic. Retries back off
// exponentially but never outlive the request context.
func (b *BaseProvider) DoRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	maxRetries := b.config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		resp, err := b.httpClient.Do(req.WithContext(ctx))
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}

		if i < maxRetries-1 {
			backoff := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

// ClassifyTransportError maps a transport-level failure onto the uniform
// error taxonomy: deadline expiry is a timeout, everything else is network.
func (b *BaseProvider) ClassifyTransportError(ctx context.Context, err error) *types.ProviderError {
	kind := types.ErrKindNetwork
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		kind = types.ErrKindTimeout
	} else {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = types.ErrKindTimeout
		}
	}
	return types.NewProviderError(b.ID(), kind, "request failed", err)
}

// ClassifyStatusError maps a non-200 upstream status onto the error taxonomy.
func (b *BaseProvider) ClassifyStatusError(status int, body string) *types.ProviderError {
	var kind types.ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = types.ErrKindAuth
	case status == http.StatusTooManyRequests:
		kind = types.ErrKindQuota
	default:
		kind = types.ErrKindNetwork
	}
	return types.NewProviderError(b.ID(), kind, fmt.Sprintf("HTTP %d: %s", status, body), nil)
}

// Validate validates the provider configuration
func (b *BaseProvider) Validate() error {
	return b.config.Validate()
}

// IsAvailable checks if the provider is available (default implementation)
func (b *BaseProvider) IsAvailable(ctx context.Context) bool {
	return b.RemainingQuota() != 0
}
