// Package gateway - retry.go absorbs transient provider failures.
//
// DESIGN: Exponential backoff with jitter, shared by single-shot calls and
// stream restarts. The non-random component doubles per attempt
// (1s, 2s, 4s, ...); a uniform jitter below one second is always added so
// synchronized clients fan out instead of retrying in lockstep. A
// vendor-suggested Retry-After overrides the computed delay when larger.
// Cancellation is checked before every attempt and during every sleep.
package gateway

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pairadmin/terminal-gateway/internal/adapters"
	"github.com/pairadmin/terminal-gateway/internal/config"
)

// maxRetriesOf resolves the attempt limit from a provider configuration.
func maxRetriesOf(cfg adapters.Config) int {
	if cfg.MaxRetries > 0 {
		return cfg.MaxRetries
	}
	return config.DefaultMaxRetries
}

// backoffBase returns the deterministic component of the delay before
// re-attempting: base * 2^(attempt-1).
func backoffBase(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return config.RetryBackoffBase << uint(attempt-1)
}

// retryDelay returns the full wait before the next attempt: the doubling
// base plus uniform jitter, or the vendor-suggested wait when that is longer.
func retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	delay := backoffBase(attempt) + time.Duration(rand.Int63n(int64(config.RetryJitterMax)))
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

// sleepContext waits for d or until ctx is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// completeWithRetry drives one single-shot completion through the retry
// loop. It returns the response, the number of the attempt that settled the
// call, and the last error once attempts are exhausted or a fatal failure
// occurs.
func (g *Gateway) completeWithRetry(ctx context.Context, adapter adapters.Adapter, cfg adapters.Config, req *adapters.CompletionRequest) (*adapters.CompletionResponse, int, error) {
	maxRetries := maxRetriesOf(cfg)

	var lastErr error
	attempt := 0
	for attempt < maxRetries {
		if err := ctx.Err(); err != nil {
			return nil, attempt, err
		}
		attempt++

		resp, err := adapter.Complete(ctx, req)
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err

		if !adapters.IsRetryable(err) || attempt >= maxRetries {
			break
		}

		delay := retryDelay(attempt, adapters.RetryAfterOf(err))
		log.Warn().
			Str("request_id", req.RequestID).
			Str("provider", adapter.Name().String()).
			Int("attempt", attempt).
			Int("max_retries", maxRetries).
			Dur("delay", delay).
			Err(err).
			Msg("Provider call failed, retrying")

		if serr := g.sleep(ctx, delay); serr != nil {
			return nil, attempt, serr
		}
	}
	return nil, attempt, lastErr
}
