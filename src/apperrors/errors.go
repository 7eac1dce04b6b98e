// Package apperrors defines the error kinds shared by the clients, services and handlers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the brokerage rejected the configured credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrUpstream means an external dependency was unreachable or returned an error.
	ErrUpstream = errors.New("upstream service error")
	// ErrRateLimited is an upstream failure caused by exhausting the provider's rate limit.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrUpstream)
	// ErrNotFound means the market-data provider does not know the symbol.
	ErrNotFound = errors.New("not found")
	// ErrConfig means a required setting is missing or invalid.
	ErrConfig = errors.New("invalid configuration")
	// ErrInvalidInput means the caller sent a malformed request.
	ErrInvalidInput = errors.New("invalid input")
)

// APIError is returned by the HTTP clients when an upstream answers with a non-2xx status.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s (status: %d, endpoint: %s)", e.Service, e.Message, e.StatusCode, e.Endpoint)
}

// Unwrap classifies the error by status code so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrUpstream
	}
}

// Upstream wraps a transport-level failure (DNS, connection reset, decode error) as ErrUpstream.
func Upstream(service string, err error) error {
	return fmt.Errorf("%s: %w: %w", service, ErrUpstream, err)
}

// Config builds an ErrConfig for the named setting.
func Config(setting, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrConfig, setting, reason)
}

// Invalid builds an ErrInvalidInput with a caller-facing reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Kind returns a short machine-readable label for err, used in partial-failure reports.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
