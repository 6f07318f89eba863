package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Search errors (6000-6999)
	ErrSearchNotFound           = 6000
	ErrSearchAccessDenied       = 6001
	ErrSearchAllowanceExceeded  = 6002
	ErrSearchAllProvidersFailed = 6003
	ErrSearchPersistenceFailed  = 6004
	ErrSearchNotRetryable       = 6005
	ErrSearchImageInvalid       = 6006
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// Search errors
	ErrSearchNotFound:           {ErrSearchNotFound, http.StatusNotFound, "Search record not found"},
	ErrSearchAccessDenied:       {ErrSearchAccessDenied, http.StatusForbidden, "Search record belongs to another account"},
	ErrSearchAllowanceExceeded:  {ErrSearchAllowanceExceeded, http.StatusTooManyRequests, "Search allowance exceeded for the current 30-day window"},
	ErrSearchAllProvidersFailed: {ErrSearchAllProvidersFailed, http.StatusBadGateway, "All search providers failed"},
	ErrSearchPersistenceFailed:  {ErrSearchPersistenceFailed, http.StatusInternalServerError, "Failed to persist search record"},
	ErrSearchNotRetryable:       {ErrSearchNotRetryable, http.StatusConflict, "Search cannot be retried"},
	ErrSearchImageInvalid:       {ErrSearchImageInvalid, http.StatusBadRequest, "Query image is missing or invalid"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsSuccess checks if the code represents success
func IsSuccess(code int) bool {
	return code == Success
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
