package db

import (
	"context"
	"fmt"
)

// DecisionRecord is one policy gate decision in the audit log.
// Constraints holds the decision's constraints as JSON.
type DecisionRecord struct {
	ID          int64
	Issue       int
	Stage       string
	TraceID     string
	Decision    string
	Reason      string
	Constraints string
	Timestamp   string
}

// TransitionRecord is one applied stage transition in the audit log.
// FromStage is empty for an issue's initial stage.
type TransitionRecord struct {
	ID        int64
	Issue     int
	FromStage string
	ToStage   string
	Reason    string
	TraceID   string
	Timestamp string
}

// Store is the audit log of decisions and transitions.
type Store interface {
	Migrate(ctx context.Context) error
	RecordDecision(ctx context.Context, r DecisionRecord) error
	RecordTransition(ctx context.Context, r TransitionRecord) error
	DecisionHistory(ctx context.Context, issue int) ([]DecisionRecord, error)
	TransitionHistory(ctx context.Context, issue int) ([]TransitionRecord, error)
	Close() error
}

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenStore opens and migrates the store for driver. For sqlite, dsn is a
// file path (empty selects the default path); for postgres it is a URL.
func OpenStore(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case DriverSQLite, "":
		if dsn == "" {
			if dsn, err = DefaultDBPath(); err != nil {
				return nil, err
			}
		}
		s, err = Open(dsn)
	case DriverPostgres:
		s, err = OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q (valid: sqlite, postgres)", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
