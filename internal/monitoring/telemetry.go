// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured records as JSONL (one JSON object per
// line):
//   - RequestRecord:    Every finished completion request
//   - TruncationRecord: Every context truncation
//
// Records are appended immediately after each event for real-time logging.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pairadmin/terminal-gateway/internal/events"
)

// Tracker handles telemetry record writing to file and stdout.
type Tracker struct {
	config      TelemetryConfig
	logPath     string
	recordCount int
	mu          sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
	}

	if !cfg.Enabled {
		return t, nil
	}

	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
			return nil, err
		}
		t.logPath = cfg.LogPath
		// Create empty file if it doesn't exist
		if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
			if f, err := os.Create(cfg.LogPath); err == nil {
				_ = f.Close()
			}
		}
	}

	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// Observe subscribes the tracker to the notification bus. The returned
// function removes the subscriptions.
func (t *Tracker) Observe(bus *events.Bus) (unsubscribe func()) {
	unsubs := []func(){
		bus.Subscribe(events.KindResponseReceived, func(ev events.Event) {
			t.RecordRequest(&RequestRecord{
				Timestamp:    ev.Time,
				RequestID:    ev.RequestID,
				Provider:     ev.Provider,
				Model:        ev.Model,
				Attempts:     ev.Attempt,
				InputTokens:  ev.InputTokens,
				OutputTokens: ev.OutputTokens,
				DurationMs:   ev.DurationMs,
				Success:      true,
			})
		}),
		bus.Subscribe(events.KindErrorOccurred, func(ev events.Event) {
			t.RecordRequest(&RequestRecord{
				Timestamp: ev.Time,
				RequestID: ev.RequestID,
				Provider:  ev.Provider,
				Model:     ev.Model,
				Attempts:  ev.Attempt,
				Success:   false,
				Error:     ev.Error,
				Retryable: ev.Retryable,
			})
		}),
		bus.Subscribe(events.KindContextTruncated, func(ev events.Event) {
			t.RecordTruncation(&TruncationRecord{
				Timestamp:       ev.Time,
				Model:           ev.Model,
				OriginalTokens:  ev.OriginalTokens,
				TruncatedTokens: ev.TruncatedTokens,
				Reason:          ev.Reason,
			})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// RecordRequest records a finished request.
func (t *Tracker) RecordRequest(record *RequestRecord) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Log summary to stdout if enabled
	if t.config.LogToStdout {
		reqID := record.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Str("provider", record.Provider).
			Int("attempts", record.Attempts).
			Bool("success", record.Success).
			Msg("telemetry")
	}

	// Append to JSONL file
	if t.logPath != "" {
		if err := appendJSONL(t.logPath, record); err != nil {
			log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write request record")
		} else {
			t.recordCount++
		}
	}
}

// RecordTruncation records a context truncation.
func (t *Tracker) RecordTruncation(record *TruncationRecord) {
	if !t.config.Enabled || t.logPath == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.logPath, record); err != nil {
		log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write truncation record")
	} else {
		t.recordCount++
	}
}

// Close logs a session summary. The tracker holds no open handles between
// writes, so there is nothing else to release.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.logPath != "" && t.recordCount > 0 {
		log.Info().
			Str("path", t.logPath).
			Int("records", t.recordCount).
			Msg("telemetry: session complete")
	}

	return nil
}
