// Package gateway - stream.go restarts failed streams without redelivery.
//
// DESIGN: A partially consumed stream cannot be resumed, so a retryable
// mid-stream failure restarts the upstream call from the beginning. The
// wrapper runs an explicit state machine:
//
//	attempting -> streaming -> succeeded
//	     ^            |
//	     +- retrying <+         (retryable failure, attempts remaining)
//	                  +-> failed (fatal failure or attempts exhausted)
//
// Restarted upstream calls replay the completion from the start; the wrapper
// counts content bytes already handed to the consumer and discards that many
// bytes of the replay, splitting a chunk when the boundary lands inside one.
// Consumers therefore see every content byte exactly once, though chunk
// boundaries may differ from the provider's. Suppression is positional: it
// assumes the provider regenerates the same prefix, which holds for
// deterministic replays and is the documented trade-off otherwise.
package gateway

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pairadmin/terminal-gateway/internal/adapters"
	"github.com/pairadmin/terminal-gateway/internal/events"
)

// errStreamClosed reports a Recv after the consumer closed the stream.
var errStreamClosed = errors.New("stream closed")

type streamState int

const (
	stateAttempting streamState = iota
	stateStreaming
	stateRetrying
	stateSucceeded
	stateFailed
)

// retryingStream is the Stream the gateway hands to SendStreaming callers.
// The first upstream call happens on the first Recv; the sequence stays
// lazy end to end. Not safe for concurrent Recv calls, matching the
// pull-based contract.
type retryingStream struct {
	ctx     context.Context
	gw      *Gateway
	adapter adapters.Adapter
	req     *adapters.CompletionRequest

	state      streamState
	inner      adapters.Stream
	attempt    int
	maxRetries int
	lastErr    error
	closed     bool

	delivered  int64 // content bytes handed to the consumer
	skip       int64 // replayed bytes still to discard after a restart
	chunkIndex int
	usage      *adapters.UsageInfo
	started    time.Time
}

func (g *Gateway) newRetryingStream(ctx context.Context, adapter adapters.Adapter, cfg adapters.Config, req *adapters.CompletionRequest) *retryingStream {
	return &retryingStream{
		ctx:        ctx,
		gw:         g,
		adapter:    adapter,
		req:        req,
		state:      stateAttempting,
		maxRetries: maxRetriesOf(cfg),
		started:    time.Now(),
	}
}

// Recv returns the next chunk, driving the state machine as needed.
// io.EOF signals normal completion; any other error is terminal.
func (s *retryingStream) Recv() (adapters.StreamingChunk, error) {
	if s.closed {
		return adapters.StreamingChunk{}, errStreamClosed
	}

	for {
		switch s.state {
		case stateSucceeded:
			return adapters.StreamingChunk{}, io.EOF

		case stateFailed:
			return adapters.StreamingChunk{}, s.lastErr

		case stateAttempting:
			if err := s.ctx.Err(); err != nil {
				s.fail(err)
				continue
			}
			s.attempt++
			inner, err := s.adapter.StreamComplete(s.ctx, s.req)
			if err != nil {
				s.handleFailure(err)
				continue
			}
			s.inner = inner
			s.skip = s.delivered
			s.state = stateStreaming

		case stateRetrying:
			delay := retryDelay(s.attempt, adapters.RetryAfterOf(s.lastErr))
			log.Warn().
				Str("request_id", s.req.RequestID).
				Str("provider", s.adapter.Name().String()).
				Int("attempt", s.attempt).
				Int("max_retries", s.maxRetries).
				Dur("delay", delay).
				Err(s.lastErr).
				Msg("Stream failed, restarting from the beginning")
			if err := s.gw.sleep(s.ctx, delay); err != nil {
				s.fail(err)
				continue
			}
			s.state = stateAttempting

		case stateStreaming:
			if err := s.ctx.Err(); err != nil {
				s.closeInner()
				s.fail(err)
				continue
			}
			chunk, err := s.inner.Recv()
			if errors.Is(err, io.EOF) {
				s.closeInner()
				s.succeed(chunk)
				continue
			}
			if err != nil {
				s.closeInner()
				s.handleFailure(err)
				continue
			}

			chunk, deliver := s.suppress(chunk)
			if !deliver {
				continue
			}
			if chunk.Usage != nil {
				s.usage = chunk.Usage
			}

			s.chunkIndex++
			s.gw.bus.Publish(events.Event{
				Kind:       events.KindChunkReceived,
				RequestID:  s.req.RequestID,
				Provider:   s.adapter.Name().String(),
				Model:      s.req.Model,
				Attempt:    s.attempt,
				ChunkIndex: s.chunkIndex,
				ContentLen: len(chunk.Content),
			})
			return chunk, nil
		}
	}
}

// Close releases the upstream stream. Safe to call more than once; Recv
// after Close reports errStreamClosed.
func (s *retryingStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeInner()
	return nil
}

func (s *retryingStream) closeInner() {
	if s.inner != nil {
		_ = s.inner.Close()
		s.inner = nil
	}
}

// suppress discards replayed content after a restart and reports whether
// anything in the chunk is left to deliver.
func (s *retryingStream) suppress(chunk adapters.StreamingChunk) (adapters.StreamingChunk, bool) {
	if s.skip > 0 && chunk.Content != "" {
		n := int64(len(chunk.Content))
		if n <= s.skip {
			s.skip -= n
			chunk.Content = ""
		} else {
			chunk.Content = chunk.Content[s.skip:]
			s.skip = 0
		}
	}
	if chunk.Content == "" && chunk.FinishReason == "" && chunk.Usage == nil {
		return chunk, false
	}
	s.delivered += int64(len(chunk.Content))
	return chunk, true
}

// handleFailure routes one upstream failure: restart when it is retryable
// and attempts remain, terminal otherwise.
func (s *retryingStream) handleFailure(err error) {
	if adapters.IsRetryable(err) && s.attempt < s.maxRetries {
		s.lastErr = err
		s.state = stateRetrying
		return
	}
	s.fail(err)
}

// fail records the terminal error and publishes the failure notification.
func (s *retryingStream) fail(err error) {
	s.lastErr = err
	s.state = stateFailed
	s.gw.publishError(s.req.RequestID, s.adapter.Name(), s.req.Model, s.attempt, err)
}

// succeed records normal completion. A final chunk read together with EOF
// may still carry usage.
func (s *retryingStream) succeed(last adapters.StreamingChunk) {
	if last.Usage != nil {
		s.usage = last.Usage
	}
	s.state = stateSucceeded

	ev := events.Event{
		Kind:       events.KindResponseReceived,
		RequestID:  s.req.RequestID,
		Provider:   s.adapter.Name().String(),
		Model:      s.req.Model,
		Attempt:    s.attempt,
		DurationMs: time.Since(s.started).Milliseconds(),
	}
	if s.usage != nil {
		ev.InputTokens = s.usage.InputTokens
		ev.OutputTokens = s.usage.OutputTokens
	}
	s.gw.bus.Publish(ev)
}

var _ adapters.Stream = (*retryingStream)(nil)
