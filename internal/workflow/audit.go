package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lucasnoah/gatekeeper/internal/db"
	"github.com/lucasnoah/gatekeeper/internal/policy"
	"github.com/lucasnoah/gatekeeper/internal/stage"
)

// NewDecisionRecord converts a decision into an audit log row.
func NewDecisionRecord(issue int, stageName, traceID string, d policy.PolicyDecision) (db.DecisionRecord, error) {
	constraints := "{}"
	if len(d.Constraints) > 0 {
		data, err := json.Marshal(d.Constraints)
		if err != nil {
			return db.DecisionRecord{}, fmt.Errorf("encode constraints: %w", err)
		}
		constraints = string(data)
	}
	return db.DecisionRecord{
		Issue:       issue,
		Stage:       stageName,
		TraceID:     traceID,
		Decision:    string(d.Decision),
		Reason:      d.Reason,
		Constraints: constraints,
		Timestamp:   d.Timestamp.UTC().Format(time.RFC3339),
	}, nil
}

// NewTransitionRecord converts an applied transition into an audit log row.
func NewTransitionRecord(t stage.Transition) db.TransitionRecord {
	return db.TransitionRecord{
		Issue:     t.Issue,
		FromStage: string(t.From),
		ToStage:   string(t.To),
		Reason:    t.Reason,
		TraceID:   t.TraceID,
		Timestamp: t.At.UTC().Format(time.RFC3339),
	}
}

// AuditObserver records every applied transition in store.
func AuditObserver(ctx context.Context, store db.Store) stage.Observer {
	return stage.ObserverFunc(func(t stage.Transition) error {
		return store.RecordTransition(ctx, NewTransitionRecord(t))
	})
}

// IssueNumber parses a gate IssueID. Non-numeric ids yield 0.
func IssueNumber(id string) int {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
