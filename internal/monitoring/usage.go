// Package monitoring - usage.go persists per-request token usage in SQLite.
//
// DESIGN: One row per finished request. The store survives restarts, so
// usage totals cover the lifetime of the database rather than one process.
// Writes happen on the bus callback; SQLite serializes them internally.
package monitoring

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/pairadmin/terminal-gateway/internal/events"
)

// UsageStore records token usage rows in a SQLite database.
type UsageStore struct {
	db *sql.DB
}

// UsageRow is one persisted request outcome.
type UsageRow struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	DurationMs   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
}

// UsageTotals aggregates usage for one provider.
type UsageTotals struct {
	Provider     string `json:"provider"`
	Requests     int64  `json:"requests"`
	Successful   int64  `json:"successful"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// NewUsageStore opens (or creates) the usage database at the given path.
func NewUsageStore(dbPath string) (*UsageStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening usage database: %w", err)
	}

	// WAL keeps bus-callback writes from blocking /stats reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrateUsage(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running usage migrations: %w", err)
	}

	return &UsageStore{db: db}, nil
}

func migrateUsage(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage (
			request_id    TEXT PRIMARY KEY,
			timestamp     DATETIME NOT NULL,
			provider      TEXT NOT NULL,
			model         TEXT NOT NULL DEFAULT '',
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			duration_ms   INTEGER NOT NULL DEFAULT 0,
			success       INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_usage_provider
			ON usage(provider);
	`)
	return err
}

// Close closes the database connection.
func (s *UsageStore) Close() error {
	return s.db.Close()
}

// Observe subscribes the store to the notification bus. The returned
// function removes the subscriptions.
func (s *UsageStore) Observe(bus *events.Bus) (unsubscribe func()) {
	unsubs := []func(){
		bus.Subscribe(events.KindResponseReceived, func(ev events.Event) {
			s.record(ev, true)
		}),
		bus.Subscribe(events.KindErrorOccurred, func(ev events.Event) {
			s.record(ev, false)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (s *UsageStore) record(ev events.Event, success bool) {
	row := UsageRow{
		RequestID:    ev.RequestID,
		Timestamp:    ev.Time,
		Provider:     ev.Provider,
		Model:        ev.Model,
		InputTokens:  ev.InputTokens,
		OutputTokens: ev.OutputTokens,
		DurationMs:   ev.DurationMs,
		Success:      success,
	}
	if err := s.Insert(&row); err != nil {
		log.Error().Err(err).Str("request_id", ev.RequestID).Msg("usage: failed to record request")
	}
}

// Insert persists one usage row. Re-recording the same request id replaces
// the earlier row, so a failure followed by a recorded success is not
// double-counted.
func (s *UsageStore) Insert(row *UsageRow) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO usage
			(request_id, timestamp, provider, model, input_tokens, output_tokens, duration_ms, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RequestID, row.Timestamp, row.Provider, row.Model,
		row.InputTokens, row.OutputTokens, row.DurationMs, row.Success,
	)
	return err
}

// Totals returns lifetime usage aggregated per provider.
func (s *UsageStore) Totals() ([]UsageTotals, error) {
	rows, err := s.db.Query(
		`SELECT provider,
		        COUNT(*),
		        SUM(success),
		        SUM(input_tokens),
		        SUM(output_tokens)
		 FROM usage GROUP BY provider ORDER BY provider`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []UsageTotals
	for rows.Next() {
		var t UsageTotals
		if err := rows.Scan(&t.Provider, &t.Requests, &t.Successful, &t.InputTokens, &t.OutputTokens); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Recent returns the newest usage rows, up to limit.
func (s *UsageStore) Recent(limit int) ([]UsageRow, error) {
	rows, err := s.db.Query(
		`SELECT request_id, timestamp, provider, model,
		        input_tokens, output_tokens, duration_ms, success
		 FROM usage ORDER BY timestamp DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var r UsageRow
		if err := rows.Scan(&r.RequestID, &r.Timestamp, &r.Provider, &r.Model,
			&r.InputTokens, &r.OutputTokens, &r.DurationMs, &r.Success); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
