package stage

import (
	"errors"
	"fmt"

	"github.com/lucasnoah/gatekeeper/internal/labels"
)

var (
	// ErrIllegalTransition is wrapped by every *TransitionError.
	ErrIllegalTransition = errors.New("illegal stage transition")
	// ErrLabelIntegrity is wrapped by every *IntegrityError.
	ErrLabelIntegrity = errors.New("stage label integrity violation")
)

// TransitionError reports an attempted edge that is not in the graph.
// No labels or comments are changed when it is returned.
type TransitionError struct {
	Issue int
	From  labels.Stage
	To    labels.Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("issue #%d: cannot transition from %s to %s (valid: %s)",
		e.Issue, e.From, e.To, joinStages(ValidTransitions(e.From)))
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// IntegrityError reports an issue that does not carry exactly one valid stage label.
type IntegrityError struct {
	Issue       int
	StageLabels []string
}

func (e *IntegrityError) Error() string {
	if len(e.StageLabels) == 0 {
		return fmt.Sprintf("issue #%d has no stage label", e.Issue)
	}
	return fmt.Sprintf("issue #%d has invalid stage labels %v (want exactly one)", e.Issue, e.StageLabels)
}

func (e *IntegrityError) Unwrap() error { return ErrLabelIntegrity }

func joinStages(stages []labels.Stage) string {
	if len(stages) == 0 {
		return "none"
	}
	s := string(stages[0])
	for _, st := range stages[1:] {
		s += ", " + string(st)
	}
	return s
}
