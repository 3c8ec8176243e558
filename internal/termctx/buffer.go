// Package termctx assembles recent terminal output into model-ready context.
//
// DESIGN: The pipeline is buffer -> estimator -> sizing policy -> engine.
// A fixed ring of terminal lines feeds a formatting/estimation engine that
// fits the freshest lines into a token budget derived from the active model
// and the configured sizing policy. A TTL cache memoizes formatted context
// between buffer mutations. Everything here is safe for one writer (the
// live terminal feed) plus concurrent readers (request assembly).
package termctx

import (
	"sync"

	"github.com/pairadmin/terminal-gateway/internal/config"
)

// LineBuffer is a fixed-capacity ring of terminal output lines. Appending to
// a full buffer evicts the oldest line. Construct with NewLineBuffer; the
// zero value has no storage.
type LineBuffer struct {
	mu    sync.Mutex
	lines []string
	start int // index of the oldest line
	size  int
}

// NewLineBuffer creates a buffer holding at most capacity lines.
// Non-positive capacities fall back to the default.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		capacity = config.DefaultBufferCapacity
	}
	return &LineBuffer{lines: make([]string, capacity)}
}

// Append adds a line in O(1), evicting the oldest line when full.
func (b *LineBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[(b.start+b.size)%len(b.lines)] = line
	if b.size < len(b.lines) {
		b.size++
	} else {
		b.start = (b.start + 1) % len(b.lines)
	}
}

// LastN returns the most recent n lines, oldest to newest, in O(n).
// n <= 0 or n greater than the stored count returns everything stored.
// An empty buffer returns an empty, non-nil slice.
func (b *LineBuffer) LastN(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]string, n)
	first := b.start + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.lines[(first+i)%len(b.lines)]
	}
	return out
}

// Len returns the number of stored lines.
func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the fixed capacity set at construction.
func (b *LineBuffer) Cap() int {
	return len(b.lines)
}

// Clear resets the buffer to empty without changing capacity.
func (b *LineBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start, b.size = 0, 0
}
