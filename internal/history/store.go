// Package history persists action outcomes to a local SQLite database so
// runs can be inspected after the fact, including batch tickets whose
// result the caller never waited for.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gyaneshwarpardhi/actionflow/internal/event"
)

// ErrNoRecord is returned by FindTicket when nothing matches.
var ErrNoRecord = errors.New("history: no record")

// tsLayout is fixed width so timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed outcome log.
type Store struct {
	db *sql.DB
}

// OpenAt creates or opens the database at path, creating parent
// directories as needed.
func OpenAt(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS outcomes (
			id           TEXT    PRIMARY KEY,
			action_id    TEXT    NOT NULL,
			ticket       TEXT    NOT NULL DEFAULT '',
			trigger_kind TEXT    NOT NULL,
			success      INTEGER NOT NULL,
			error_msg    TEXT    NOT NULL DEFAULT '',
			attempts     INTEGER NOT NULL DEFAULT 0,
			started_at   TEXT    NOT NULL,
			finished_at  TEXT    NOT NULL,
			duration_ms  INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_action ON outcomes(action_id, finished_at);
		CREATE INDEX IF NOT EXISTS idx_outcomes_ticket ON outcomes(ticket);
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migration failed: %w", err)
	}
	return nil
}

// Record inserts one outcome. Recording the same outcome id twice is a no-op.
func (s *Store) Record(ctx context.Context, o event.Outcome) error {
	success := 0
	if o.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO outcomes (id, action_id, ticket, trigger_kind, success, error_msg, attempts, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ActionID, o.Ticket, string(o.Trigger), success, o.Error, o.Attempts,
		o.StartedAt.UTC().Format(tsLayout), o.FinishedAt.UTC().Format(tsLayout), o.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("history: insert failed: %w", err)
	}
	return nil
}

const selectCols = `SELECT id, action_id, ticket, trigger_kind, success, error_msg, attempts, started_at, finished_at, duration_ms FROM outcomes`

// ListRecent returns the n most recently finished outcomes, newest first.
func (s *Store) ListRecent(ctx context.Context, n int) ([]event.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` ORDER BY finished_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// ListByAction returns the n most recent outcomes of one action, newest first.
func (s *Store) ListByAction(ctx context.Context, actionID string, n int) ([]event.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` WHERE action_id = ? ORDER BY finished_at DESC LIMIT ?`, actionID, n)
	if err != nil {
		return nil, fmt.Errorf("history: query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// FindTicket returns the outcome of a batch item by its ticket.
func (s *Store) FindTicket(ctx context.Context, ticket string) (*event.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` WHERE ticket = ? LIMIT 1`, ticket)
	if err != nil {
		return nil, fmt.Errorf("history: query failed: %w", err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w for ticket %s", ErrNoRecord, ticket)
	}
	return &out[0], nil
}

// DeleteOlderThan removes outcomes that finished more than d ago and
// returns how many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, d time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-d).Format(tsLayout)
	result, err := s.db.ExecContext(ctx, `DELETE FROM outcomes WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: delete failed: %w", err)
	}
	return result.RowsAffected()
}

// Close releases database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sink records every outcome read from ch until ch is closed or ctx is
// done. Insert failures are logged and skipped.
func (s *Store) Sink(ctx context.Context, ch <-chan event.Outcome, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-ch:
			if !ok {
				return
			}
			if err := s.Record(context.WithoutCancel(ctx), o); err != nil {
				log.Error("outcome not recorded", "action_id", o.ActionID, "outcome_id", o.ID, "err", err)
			}
		}
	}
}

func scanRows(rows *sql.Rows) ([]event.Outcome, error) {
	var out []event.Outcome
	for rows.Next() {
		var (
			o                 event.Outcome
			trigger           string
			success           int
			started, finished string
		)
		err := rows.Scan(&o.ID, &o.ActionID, &o.Ticket, &trigger, &success, &o.Error,
			&o.Attempts, &started, &finished, &o.DurationMs)
		if err != nil {
			return nil, fmt.Errorf("history: scan failed: %w", err)
		}
		o.Trigger = event.Trigger(trigger)
		o.Success = success != 0
		o.StartedAt, _ = time.Parse(tsLayout, started)
		o.FinishedAt, _ = time.Parse(tsLayout, finished)
		out = append(out, o)
	}
	return out, rows.Err()
}
