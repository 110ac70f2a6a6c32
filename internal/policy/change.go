package policy

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lucasnoah/gatekeeper/internal/config"
)

// CI statuses.
const (
	CISuccess = "success"
	CIFailure = "failure"
	CIPending = "pending"
)

// TestResults summarizes a test run.
type TestResults struct {
	AllPassed bool `json:"all_passed"`
	Passed    int  `json:"passed,omitempty"`
	Failed    int  `json:"failed,omitempty"`
}

// ChangeContext describes an implementation change set. TestResults is nil
// when no test run was reported.
type ChangeContext struct {
	ChangedFiles []string       `json:"changed_files"`
	DiffStats    map[string]int `json:"diff_stats,omitempty"`
	CIStatus     string         `json:"ci_status"`
	TestResults  *TestResults   `json:"test_results,omitempty"`
	TraceID      string         `json:"trace_id,omitempty"`
}

// ChangeEvaluator decides whether an implementation change may proceed.
type ChangeEvaluator struct {
	policy   config.ChangePolicy
	now      func() time.Time
	progress io.Writer
}

// NewChangeEvaluator creates an evaluator for the given change policy.
func NewChangeEvaluator(cp config.ChangePolicy) *ChangeEvaluator {
	if cp.MaxFilesChanged == 0 {
		cp.MaxFilesChanged = config.DefaultMaxFilesChanged
	}
	if cp.RestrictedPaths == nil {
		cp.RestrictedPaths = append([]string(nil), config.DefaultRestrictedPaths...)
	}
	return &ChangeEvaluator{
		policy: cp,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetProgress sets a writer for evaluation log lines.
func (e *ChangeEvaluator) SetProgress(w io.Writer) {
	e.progress = w
}

// SetClock overrides the decision timestamp source (for testing).
func (e *ChangeEvaluator) SetClock(now func() time.Time) {
	e.now = now
}

// EvaluateImplementationChanges checks file count, restricted paths, CI
// status and test results, in that order. The first failure wins.
func (e *ChangeEvaluator) EvaluateImplementationChanges(cc ChangeContext) PolicyDecision {
	d := e.evaluate(cc)
	d.Timestamp = e.now()
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → [%s] change set of %d file(s): %s (%s)\n", cc.TraceID, len(cc.ChangedFiles), d.Decision, d.Reason)
	}
	return d
}

func (e *ChangeEvaluator) evaluate(cc ChangeContext) PolicyDecision {
	if n := len(cc.ChangedFiles); n > e.policy.MaxFilesChanged {
		return PolicyDecision{
			Decision:    ReviewRequired,
			Reason:      fmt.Sprintf("Too many files changed (%d), requires human review", n),
			Constraints: Constraints{"max_files_changed": e.policy.MaxFilesChanged},
		}
	}

	for _, f := range cc.ChangedFiles {
		for _, restricted := range e.policy.RestrictedPaths {
			if strings.HasPrefix(f, restricted) {
				return PolicyDecision{
					Decision:    ReviewRequired,
					Reason:      fmt.Sprintf("Changes to restricted path '%s' require human review", f),
					Constraints: Constraints{"restricted_paths": append([]string(nil), e.policy.RestrictedPaths...)},
				}
			}
		}
	}

	if cc.CIStatus != CISuccess {
		return PolicyDecision{
			Decision:    Block,
			Reason:      fmt.Sprintf("CI status is '%s', must be 'success' to proceed", cc.CIStatus),
			Constraints: Constraints{"required_ci_status": CISuccess},
		}
	}

	if cc.TestResults != nil && !cc.TestResults.AllPassed {
		return PolicyDecision{
			Decision:    Block,
			Reason:      "Not all tests passed, cannot proceed with deployment",
			Constraints: Constraints{"required_test_status": "all_passed"},
		}
	}

	c := Constraints{
		"files_changed": len(cc.ChangedFiles),
		"ci_status":     cc.CIStatus,
		"tests_passed":  cc.TestResults == nil || cc.TestResults.AllPassed,
	}
	if len(cc.DiffStats) > 0 {
		c["diff_stats"] = cc.DiffStats
	}
	return PolicyDecision{
		Decision:    Allow,
		Reason:      "Implementation changes meet all policy requirements",
		Constraints: c,
	}
}
