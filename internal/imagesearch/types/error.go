package types

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrInvalidProviderID   = errors.New("invalid provider ID")
	ErrInvalidProviderName = errors.New("invalid provider name")
	ErrInvalidAPIHost      = errors.New("invalid API host")
	ErrMissingAPIKey       = errors.New("missing API key")

	// Query errors
	ErrEmptyImage      = errors.New("empty query image")
	ErrImageTooLarge   = errors.New("query image too large")
	ErrMissingPlanTier = errors.New("missing plan tier")

	// Provider errors
	ErrProviderNotFound     = errors.New("provider not found")
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrProviderQuotaDrained = errors.New("provider quota drained")

	// Response errors
	ErrInvalidResponse = errors.New("invalid response from provider")
)

// ErrorKind classifies a provider failure so the orchestrator can record it
// without inspecting backend-specific errors.
type ErrorKind string

const (
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindAuth      ErrorKind = "auth"
	ErrKindQuota     ErrorKind = "quota"
	ErrKindNetwork   ErrorKind = "network"
	ErrKindMalformed ErrorKind = "malformed-response"
)

// ProviderError wraps provider-specific errors with a uniform kind tag.
// Adapters always fail with one of these, never a raw transport error.
type ProviderError struct {
	Provider ProviderID
	Kind     ErrorKind
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a tagged provider error
func NewProviderError(provider ProviderID, kind ErrorKind, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Message:  message,
		Err:      err,
	}
}
