// Package gateway - errors.go names gateway misuse failures.
//
// DESIGN: Registry misuse surfaces as sentinel errors so callers can branch
// with errors.Is. Provider call failures keep their adapters taxonomy
// (*adapters.ProviderError); the gateway never rewraps them.
package gateway

import "errors"

var (
	// ErrProviderNotFound means the named provider was never registered.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderNotConfigured means the provider is registered but no
	// configuration has been committed for it.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrNoActiveProvider means Send was called before SetActiveProvider.
	ErrNoActiveProvider = errors.New("no active provider")

	// ErrStreamingUnsupported means SendStreaming was called while the
	// active provider only supports single-shot completions.
	ErrStreamingUnsupported = errors.New("active provider does not support streaming")
)
