// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists audit events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at dsn and returns a store
// backed by it. The caller owns closing the store.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore creates a SQLite-backed audit store and ensures its schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, fmt.Errorf("audit: ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores a single audit event.
func (s *SQLiteStore) Record(ctx context.Context, event Event) error {
	output, err := encodeOutput(event.Output)
	if err != nil {
		return err
	}
	var finished any
	if !event.FinishedAt.IsZero() {
		finished = utc(event.FinishedAt)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_audit_events (
			agent_id, run_id, step, kind, status, output_json, error_text, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.AgentID,
		event.RunID,
		event.Step,
		event.Kind,
		event.Status,
		string(output),
		event.Error,
		utc(event.StartedAt),
		finished,
	)
	return err
}

// List returns audit events matching the filter in recording order.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT agent_id, run_id, step, kind, status, output_json, error_text, started_at, finished_at
		FROM agent_audit_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.AgentID != "" {
		addFilter("agent_id = ?", filter.AgentID)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.Step != "" {
		addFilter("step = ?", filter.Step)
	}
	if filter.Status != "" {
		addFilter("status = ?", filter.Status)
	}
	query += where + " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event      Event
			outputJSON sql.NullString
			errText    sql.NullString
			started    sql.NullTime
			finished   sql.NullTime
		)
		if err := rows.Scan(
			&event.AgentID,
			&event.RunID,
			&event.Step,
			&event.Kind,
			&event.Status,
			&outputJSON,
			&errText,
			&started,
			&finished,
		); err != nil {
			return nil, err
		}
		if outputJSON.Valid {
			if out, err := decodeOutput([]byte(outputJSON.String)); err == nil {
				event.Output = out
			}
		}
		event.Error = errText.String
		if started.Valid {
			event.StartedAt = started.Time
		}
		if finished.Valid {
			event.FinishedAt = finished.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			step TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			output_json TEXT,
			error_text TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_agent_audit_agent ON agent_audit_events(agent_id);
		CREATE INDEX IF NOT EXISTS idx_agent_audit_run ON agent_audit_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_agent_audit_status ON agent_audit_events(status);
	`)
	return err
}
