// Package adapters - errors.go classifies provider failures.
//
// DESIGN: Every failure an adapter surfaces is a *ProviderError carrying the
// retryable flag the retry coordinator branches on. HTTP responses map to
// kinds by status code; SDK errors map through the same table. Validation
// problems are *ConfigurationError and are never retried.
package adapters

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind names one class of provider failure.
type ErrorKind string

const (
	// KindProvider is a generic vendor failure; retryable depends on cause.
	KindProvider ErrorKind = "provider"
	// KindAuthentication means credentials were rejected. Never retryable.
	KindAuthentication ErrorKind = "authentication"
	// KindRateLimit means the vendor is throttling. Retryable, may carry a
	// suggested retry-after duration.
	KindRateLimit ErrorKind = "rate_limit"
	// KindTimeout means the call exceeded its deadline. Retryable.
	KindTimeout ErrorKind = "timeout"
	// KindTokenLimit means the request exceeds model capacity even after
	// truncation. Never retryable.
	KindTokenLimit ErrorKind = "token_limit"
)

// ProviderError is a classified vendor call failure.
type ProviderError struct {
	Provider   Provider
	Kind       ErrorKind
	Message    string
	StatusCode int           // HTTP status when known, else 0
	Retryable  bool
	RetryAfter time.Duration // vendor-suggested wait, rate limits only
	Err        error         // wrapped cause, may be nil
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, e.Message)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a generic provider failure.
func NewProviderError(provider Provider, message string, retryable bool) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindProvider, Message: message, Retryable: retryable}
}

// NewAuthError builds a credentials-rejected failure. Never retryable.
func NewAuthError(provider Provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindAuthentication, Message: message}
}

// NewRateLimitError builds a throttling failure with an optional
// vendor-suggested wait.
func NewRateLimitError(provider Provider, message string, retryAfter time.Duration) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       KindRateLimit,
		Message:    message,
		Retryable:  true,
		RetryAfter: retryAfter,
	}
}

// NewTimeoutError builds a deadline failure. Retryable.
func NewTimeoutError(provider Provider, message string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindTimeout, Message: message, Retryable: true, Err: cause}
}

// NewTokenLimitError builds an over-capacity failure. Never retryable;
// truncation was already attempted upstream.
func NewTokenLimitError(provider Provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindTokenLimit, Message: message}
}

// ConfigurationError reports an invalid configuration or request shape.
// Detected before any network call and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// IsRetryable reports whether the retry coordinator may re-attempt after err.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// RetryAfterOf returns the vendor-suggested wait attached to err, or zero.
func RetryAfterOf(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// tokenLimitMarkers are body substrings that identify an over-capacity 400.
var tokenLimitMarkers = []string{
	"context length",
	"context_length_exceeded",
	"maximum context",
	"prompt is too long",
	"too many tokens",
}

// ClassifyHTTPError maps an HTTP error response to a *ProviderError.
// headers may be nil; body is the raw response body used for the message
// and token-limit detection.
func ClassifyHTTPError(provider Provider, status int, headers http.Header, body string) *ProviderError {
	message := strings.TrimSpace(body)
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ProviderError{
			Provider: provider, Kind: KindAuthentication,
			Message: message, StatusCode: status,
		}
	case status == http.StatusTooManyRequests:
		return &ProviderError{
			Provider: provider, Kind: KindRateLimit,
			Message: message, StatusCode: status,
			Retryable:  true,
			RetryAfter: parseRetryAfter(headers),
		}
	case status == http.StatusRequestTimeout:
		return &ProviderError{
			Provider: provider, Kind: KindTimeout,
			Message: message, StatusCode: status, Retryable: true,
		}
	case status == http.StatusBadRequest && mentionsTokenLimit(body):
		return &ProviderError{
			Provider: provider, Kind: KindTokenLimit,
			Message: message, StatusCode: status,
		}
	case status >= 500:
		// 500/502/503 and Anthropic's 529 "overloaded" are transient.
		return &ProviderError{
			Provider: provider, Kind: KindProvider,
			Message: message, StatusCode: status, Retryable: true,
		}
	default:
		return &ProviderError{
			Provider: provider, Kind: KindProvider,
			Message: message, StatusCode: status,
		}
	}
}

func mentionsTokenLimit(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range tokenLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(headers http.Header) time.Duration {
	if headers == nil {
		return 0
	}
	retryStr := headers.Get("Retry-After")
	if retryStr == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryStr); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
