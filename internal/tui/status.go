package tui

// StatusLine provides a session status display for the completion pipeline.
//
// Features:
// - Shows active provider, model, buffered context size, and cache hit rate
// - Optional persistent footer repainted on a timer
// - Footer renders only when stdout is a terminal

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/pairadmin/terminal-gateway/internal/termctx"
)

// FooterRefreshInterval keeps the footer current between requests.
const FooterRefreshInterval = 10 * time.Second

// ContextSource provides buffer and cache data for the status line.
// Implemented by termctx.Engine.
type ContextSource interface {
	BufferLen() int
	BufferCap() int
	GetEstimatedTokenCount() int
	CacheStats() termctx.CacheStats
}

// StatusLine renders the session status.
type StatusLine struct {
	mu sync.RWMutex

	provider string
	model    string
	source   ContextSource

	footerEnabled bool
	autoRefreshOn bool
	autoStop      chan struct{}
}

// NewStatusLine creates a status line reading from the given context source.
func NewStatusLine(source ContextSource) *StatusLine {
	return &StatusLine{source: source}
}

// SetProvider records the active provider and model for display.
func (sl *StatusLine) SetProvider(provider, model string) {
	sl.mu.Lock()
	sl.provider = provider
	sl.model = model
	sl.mu.Unlock()
}

// EnableFooter toggles the persistent footer line.
func (sl *StatusLine) EnableFooter(enabled bool) {
	sl.mu.Lock()
	sl.footerEnabled = enabled
	sl.mu.Unlock()
}

// Render prints the status as a one-shot line.
func (sl *StatusLine) Render() {
	line := sl.formatLine()
	if line == "" {
		return
	}
	PrintInfo(line)
}

// RenderFooter paints the status as a persistent footer at the bottom of the
// terminal. No-op when stdout is not a terminal.
func (sl *StatusLine) RenderFooter() {
	sl.mu.RLock()
	enabled := sl.footerEnabled
	sl.mu.RUnlock()
	if !enabled {
		return
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}

	line := sl.formatLine()
	if line == "" {
		return
	}

	// Save cursor, move to bottom line, clear, print, restore.
	// Use DECSC/DECRC for broad terminal compatibility.
	fmt.Print("\0337")
	if _, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && h > 0 {
		fmt.Printf("\033[%d;1H", h)
	} else {
		fmt.Print("\r")
	}
	fmt.Print("\033[2K")
	fmt.Printf("  %s", line)
	fmt.Print("\0338")
}

// StartAutoRefresh repaints the footer on a timer. Safe to call multiple
// times; subsequent calls are ignored.
func (sl *StatusLine) StartAutoRefresh(interval time.Duration) {
	if interval <= 0 {
		return
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}

	sl.mu.Lock()
	if sl.autoRefreshOn {
		sl.mu.Unlock()
		return
	}
	sl.autoRefreshOn = true
	sl.autoStop = make(chan struct{})
	stopCh := sl.autoStop
	sl.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sl.RenderFooter()
			case <-stopCh:
				return
			}
		}
	}()
}

// StopAutoRefresh stops the periodic repaint loop if running.
func (sl *StatusLine) StopAutoRefresh() {
	sl.mu.Lock()
	if !sl.autoRefreshOn {
		sl.mu.Unlock()
		return
	}
	sl.autoRefreshOn = false
	if sl.autoStop != nil {
		close(sl.autoStop)
		sl.autoStop = nil
	}
	sl.mu.Unlock()
}

// formatLine assembles the status string.
func (sl *StatusLine) formatLine() string {
	sl.mu.RLock()
	provider := sl.provider
	model := sl.model
	source := sl.source
	sl.mu.RUnlock()

	if source == nil {
		return ""
	}

	lines := source.BufferLen()
	capacity := source.BufferCap()
	tokens := source.GetEstimatedTokenCount()
	cache := source.CacheStats()

	fillColor := ColorGreen
	if capacity > 0 {
		switch fill := float64(lines) / float64(capacity); {
		case fill >= 0.9:
			fillColor = ColorRed
		case fill >= 0.7:
			fillColor = ColorYellow
		}
	}

	line := fmt.Sprintf("Context: %s%d/%d lines%s (~%d tok) │ Cache: %.0f%% hit",
		fillColor, lines, capacity, ColorReset,
		tokens, cache.HitRate()*100)

	if provider != "" {
		prefix := fmt.Sprintf("%s%s%s", ColorBold, provider, ColorReset)
		if model != "" {
			prefix += ColorDim + "/" + model + ColorReset
		}
		line = prefix + " │ " + line
	}
	return line
}
