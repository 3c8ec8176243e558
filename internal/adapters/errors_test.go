package adapters

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPErrorTaxonomy(t *testing.T) {
	throttled := http.Header{}
	throttled.Set("Retry-After", "7")

	cases := []struct {
		name      string
		status    int
		headers   http.Header
		body      string
		wantKind  ErrorKind
		wantRetry bool
		wantAfter time.Duration
	}{
		{"401 is authentication", http.StatusUnauthorized, nil, "invalid api key", KindAuthentication, false, 0},
		{"403 is authentication", http.StatusForbidden, nil, "forbidden", KindAuthentication, false, 0},
		{"429 is rate limit with retry-after", http.StatusTooManyRequests, throttled, "slow down", KindRateLimit, true, 7 * time.Second},
		{"429 without header", http.StatusTooManyRequests, nil, "slow down", KindRateLimit, true, 0},
		{"408 is timeout", http.StatusRequestTimeout, nil, "", KindTimeout, true, 0},
		{"400 naming the context window is token limit", http.StatusBadRequest, nil, "This model's maximum context length is 8192 tokens", KindTokenLimit, false, 0},
		{"400 with vendor marker", http.StatusBadRequest, nil, `{"code":"context_length_exceeded"}`, KindTokenLimit, false, 0},
		{"plain 400 is not retryable", http.StatusBadRequest, nil, "malformed request", KindProvider, false, 0},
		{"500 is transient", http.StatusInternalServerError, nil, "internal error", KindProvider, true, 0},
		{"503 is transient", http.StatusServiceUnavailable, nil, "try later", KindProvider, true, 0},
		{"529 overloaded is transient", 529, nil, "overloaded", KindProvider, true, 0},
		{"404 is terminal", http.StatusNotFound, nil, "no such model", KindProvider, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pe := ClassifyHTTPError(ProviderOpenAI, tc.status, tc.headers, tc.body)
			assert.Equal(t, tc.wantKind, pe.Kind)
			assert.Equal(t, tc.wantRetry, pe.Retryable)
			assert.Equal(t, tc.wantAfter, pe.RetryAfter)
			assert.Equal(t, tc.status, pe.StatusCode)
			assert.Equal(t, ProviderOpenAI, pe.Provider)
		})
	}
}

func TestClassifyFallsBackToStatusText(t *testing.T) {
	pe := ClassifyHTTPError(ProviderAnthropic, http.StatusBadGateway, nil, "   ")
	assert.Equal(t, http.StatusText(http.StatusBadGateway), pe.Message)
}

func TestRetryAfterIgnoresUnparseableHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "Wed, 21 Oct 2026 07:28:00 GMT")
	pe := ClassifyHTTPError(ProviderOpenAI, http.StatusTooManyRequests, h, "")
	assert.Equal(t, time.Duration(0), pe.RetryAfter)
	assert.True(t, pe.Retryable)
}

func TestIsRetryableUnwrapsNestedErrors(t *testing.T) {
	inner := NewRateLimitError(ProviderOpenAI, "throttled", 2*time.Second)
	wrapped := fmt.Errorf("attempt 3: %w", inner)

	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, 2*time.Second, RetryAfterOf(wrapped))

	assert.False(t, IsRetryable(errors.New("plain failure")))
	assert.Equal(t, time.Duration(0), RetryAfterOf(errors.New("plain failure")))
	assert.False(t, IsRetryable(nil))
}

func TestErrorConstructorsSetRetryability(t *testing.T) {
	assert.False(t, NewAuthError(ProviderOpenAI, "bad key").Retryable)
	assert.False(t, NewTokenLimitError(ProviderOpenAI, "too big").Retryable)
	assert.True(t, NewRateLimitError(ProviderOpenAI, "throttled", 0).Retryable)
	assert.True(t, NewTimeoutError(ProviderOpenAI, "deadline", nil).Retryable)
	assert.True(t, NewProviderError(ProviderOpenAI, "flaky", true).Retryable)
	assert.False(t, NewProviderError(ProviderOpenAI, "broken", false).Retryable)
}

func TestProviderErrorMessageIncludesStatus(t *testing.T) {
	pe := ClassifyHTTPError(ProviderAnthropic, http.StatusTooManyRequests, nil, "slow down")
	msg := pe.Error()
	assert.Contains(t, msg, "anthropic")
	assert.Contains(t, msg, "rate_limit")
	assert.Contains(t, msg, "slow down")
	assert.Contains(t, msg, "429")

	bare := NewProviderError(ProviderOllama, "offline", true)
	assert.NotContains(t, bare.Error(), "status")
}

func TestProviderErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	pe := NewTimeoutError(ProviderOpenAI, "request failed", cause)
	require.ErrorIs(t, pe, cause)
}

func TestConfigurationErrorMessage(t *testing.T) {
	withField := &ConfigurationError{Field: "api_key", Reason: "required"}
	assert.Equal(t, "configuration error: api_key: required", withField.Error())

	bare := &ConfigurationError{Reason: "no providers configured"}
	assert.Equal(t, "configuration error: no providers configured", bare.Error())
}
