package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the PostgreSQL audit log.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("connect to database: url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

const postgresSchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS policy_decisions (
    id          BIGSERIAL PRIMARY KEY,
    issue       INTEGER NOT NULL,
    stage       TEXT NOT NULL,
    trace_id    TEXT NOT NULL,
    decision    TEXT NOT NULL CHECK (decision IN ('allow','review_required','block')),
    reason      TEXT NOT NULL,
    constraints JSONB NOT NULL DEFAULT '{}'::jsonb,
    timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_issue ON policy_decisions(issue, id);
CREATE INDEX IF NOT EXISTS idx_decisions_trace ON policy_decisions(trace_id);

CREATE TABLE IF NOT EXISTS stage_transitions (
    id          BIGSERIAL PRIMARY KEY,
    issue       INTEGER NOT NULL,
    from_stage  TEXT NOT NULL DEFAULT '',
    to_stage    TEXT NOT NULL,
    reason      TEXT NOT NULL,
    trace_id    TEXT NOT NULL,
    timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_issue ON stage_transitions(issue, id);
`

// Migrate applies the schema once, recording it in schema_version.
func (p *Postgres) Migrate(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, postgresSchemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES (1) ON CONFLICT (version) DO NOTHING"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit(ctx)
}

// RecordDecision inserts a policy decision.
func (p *Postgres) RecordDecision(ctx context.Context, r DecisionRecord) error {
	if r.Constraints == "" {
		r.Constraints = "{}"
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO policy_decisions (issue, stage, trace_id, decision, reason, constraints, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		r.Issue, r.Stage, r.TraceID, r.Decision, r.Reason, r.Constraints, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// RecordTransition inserts an applied transition.
func (p *Postgres) RecordTransition(ctx context.Context, r TransitionRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO stage_transitions (issue, from_stage, to_stage, reason, trace_id, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.Issue, r.FromStage, r.ToStage, r.Reason, r.TraceID, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// DecisionHistory returns all decisions for an issue, oldest first.
func (p *Postgres) DecisionHistory(ctx context.Context, issue int) ([]DecisionRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, issue, stage, trace_id, decision, reason, constraints::text, timestamp
		 FROM policy_decisions WHERE issue = $1 ORDER BY id`,
		issue,
	)
	if err != nil {
		return nil, fmt.Errorf("decision history: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DecisionRecord, error) {
		var r DecisionRecord
		err := row.Scan(&r.ID, &r.Issue, &r.Stage, &r.TraceID, &r.Decision, &r.Reason, &r.Constraints, &r.Timestamp)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan decision: %w", err)
	}
	return out, nil
}

// TransitionHistory returns all transitions for an issue, oldest first.
func (p *Postgres) TransitionHistory(ctx context.Context, issue int) ([]TransitionRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, issue, from_stage, to_stage, reason, trace_id, timestamp
		 FROM stage_transitions WHERE issue = $1 ORDER BY id`,
		issue,
	)
	if err != nil {
		return nil, fmt.Errorf("transition history: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TransitionRecord, error) {
		var r TransitionRecord
		err := row.Scan(&r.ID, &r.Issue, &r.FromStage, &r.ToStage, &r.Reason, &r.TraceID, &r.Timestamp)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan transition: %w", err)
	}
	return out, nil
}
