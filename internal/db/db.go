package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the SQLite audit log.
type DB struct {
	conn *sql.DB
	path string
}

// DefaultDBPath returns ~/.gatekeeper/gatekeeper.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".gatekeeper")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "gatekeeper.db"), nil
}

// Open opens or creates the database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS policy_decisions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    issue       INTEGER NOT NULL,
    stage       TEXT NOT NULL,
    trace_id    TEXT NOT NULL,
    decision    TEXT NOT NULL CHECK(decision IN ('allow','review_required','block')),
    reason      TEXT NOT NULL,
    constraints TEXT NOT NULL DEFAULT '{}',
    timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_issue ON policy_decisions(issue, id);
CREATE INDEX IF NOT EXISTS idx_decisions_trace ON policy_decisions(trace_id);

CREATE TABLE IF NOT EXISTS stage_transitions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    issue       INTEGER NOT NULL,
    from_stage  TEXT NOT NULL DEFAULT '',
    to_stage    TEXT NOT NULL,
    reason      TEXT NOT NULL,
    trace_id    TEXT NOT NULL,
    timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_issue ON stage_transitions(issue, id);
`

// Migrate applies the database schema.
func (d *DB) Migrate(ctx context.Context) error {
	var count int
	err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqliteSchemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset(ctx context.Context) error {
	tables := []string{"stage_transitions", "policy_decisions", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate(ctx)
}

// RecordDecision inserts a policy decision.
func (d *DB) RecordDecision(ctx context.Context, r DecisionRecord) error {
	if r.Constraints == "" {
		r.Constraints = "{}"
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO policy_decisions (issue, stage, trace_id, decision, reason, constraints, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Issue, r.Stage, r.TraceID, r.Decision, r.Reason, r.Constraints, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// RecordTransition inserts an applied transition.
func (d *DB) RecordTransition(ctx context.Context, r TransitionRecord) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO stage_transitions (issue, from_stage, to_stage, reason, trace_id, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Issue, r.FromStage, r.ToStage, r.Reason, r.TraceID, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// DecisionHistory returns all decisions for an issue, oldest first.
func (d *DB) DecisionHistory(ctx context.Context, issue int) ([]DecisionRecord, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, issue, stage, trace_id, decision, reason, constraints, timestamp
		 FROM policy_decisions WHERE issue = ? ORDER BY id`,
		issue,
	)
	if err != nil {
		return nil, fmt.Errorf("decision history: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		if err := rows.Scan(&r.ID, &r.Issue, &r.Stage, &r.TraceID, &r.Decision, &r.Reason, &r.Constraints, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TransitionHistory returns all transitions for an issue, oldest first.
func (d *DB) TransitionHistory(ctx context.Context, issue int) ([]TransitionRecord, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, issue, from_stage, to_stage, reason, trace_id, timestamp
		 FROM stage_transitions WHERE issue = ? ORDER BY id`,
		issue,
	)
	if err != nil {
		return nil, fmt.Errorf("transition history: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var r TransitionRecord
		if err := rows.Scan(&r.ID, &r.Issue, &r.FromStage, &r.ToStage, &r.Reason, &r.TraceID, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
