package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lucasnoah/gatekeeper/internal/db"
	"github.com/lucasnoah/gatekeeper/internal/events"
	"github.com/lucasnoah/gatekeeper/internal/github"
	"github.com/lucasnoah/gatekeeper/internal/labels"
	"github.com/lucasnoah/gatekeeper/internal/llm"
	"github.com/lucasnoah/gatekeeper/internal/policy"
	"github.com/lucasnoah/gatekeeper/internal/stage"
)

// IssueReader is the part of the issue store the runner reads and comments through.
type IssueReader interface {
	GetIssue(number int) (*github.Issue, error)
	ListComments(number int) ([]github.Comment, error)
	AddComment(number int, body string) error
}

// stageWork describes what a gate stage produces and where it goes next.
type stageWork struct {
	title string
	next  labels.Stage
}

var work = map[labels.Stage]stageWork{
	labels.StageTriage:     {"Triage", labels.StagePlan},
	labels.StagePlan:       {"Planning", labels.StagePrioritize},
	labels.StagePrioritize: {"Prioritization", labels.StageAwaitingImplementationApproval},
	labels.StageImplement:  {"Implementation", labels.StagePROpened},
}

// Successor returns the stage a successful run of s moves to.
func Successor(s labels.Stage) (labels.Stage, bool) {
	w, ok := work[s]
	return w.next, ok
}

// Result is the outcome of one stage run.
type Result struct {
	Issue     int
	Stage     labels.Stage
	TraceID   string
	Decision  policy.PolicyDecision
	Sections  map[string]string
	Priority  labels.Priority
	NextStage labels.Stage
}

// Runner drives one gate stage for an issue: evaluate, invoke the LLM,
// record the output and advance the issue.
type Runner struct {
	issues    IssueReader
	gate      *policy.Gate
	manager   *stage.Manager
	invoker   llm.Invoker
	store     db.Store
	publisher events.Publisher
	runURL    string
	now       func() time.Time
	progress  io.Writer
}

// NewRunner creates a runner. The audit log and publisher are optional.
func NewRunner(issues IssueReader, gate *policy.Gate, manager *stage.Manager, invoker llm.Invoker) *Runner {
	return &Runner{
		issues:    issues,
		gate:      gate,
		manager:   manager,
		invoker:   invoker,
		publisher: events.Nop{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetAuditLog records every decision in store.
func (r *Runner) SetAuditLog(store db.Store) {
	r.store = store
}

// SetPublisher publishes every decision to p.
func (r *Runner) SetPublisher(p events.Publisher) {
	r.publisher = p
}

// SetRunURL links stage comments to the CI run that produced them.
func (r *Runner) SetRunURL(url string) {
	r.runURL = url
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (r *Runner) SetProgress(w io.Writer) {
	r.progress = w
}

// SetClock overrides the comment timestamp source (for testing).
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Runner) logf(format string, args ...interface{}) {
	if r.progress != nil {
		fmt.Fprintf(r.progress, "  → "+format+"\n", args...)
	}
}

// RunStage runs stage s for an issue that must currently be at s.
//
// The gate decision is always posted and recorded. On allow the LLM output
// is validated, posted and the issue moves to the stage's successor. A block
// or an invalid LLM response moves the issue to blocked when the graph
// allows it. review_required leaves the issue where it is.
func (r *Runner) RunStage(ctx context.Context, number int, s labels.Stage) (*Result, error) {
	if _, ok := work[s]; !ok {
		return nil, fmt.Errorf("stage %q has no automated workflow", s)
	}
	issue, err := r.issues.GetIssue(number)
	if err != nil {
		return nil, fmt.Errorf("run %s on issue #%d: %w", s, number, err)
	}
	current, err := stage.StageOf(number, issue.LabelNames())
	if err != nil {
		return nil, err
	}
	if current != s {
		return nil, fmt.Errorf("run %s on issue #%d: issue is at stage %s", s, number, current)
	}
	comments, err := r.issues.ListComments(number)
	if err != nil {
		return nil, fmt.Errorf("run %s on issue #%d: %w", s, number, err)
	}

	sc := ExtractStageContext(issue, comments, s)
	res := &Result{Issue: number, Stage: s, TraceID: sc.TraceID}
	r.logf("[%s] running %s for issue #%d", sc.TraceID, s, number)

	res.Decision = r.gate.EvaluateStageTransition(sc)
	if err := r.issues.AddComment(number, policy.FormatDecisionComment(string(s), sc.TraceID, res.Decision)); err != nil {
		return res, fmt.Errorf("post decision on issue #%d: %w", number, err)
	}
	r.recordDecision(ctx, number, s, sc.TraceID, res.Decision)

	switch res.Decision.Decision {
	case policy.ReviewRequired:
		return res, nil
	case policy.Block:
		return res, r.block(number, s, sc.TraceID, res, res.Decision.Reason)
	}

	out, err := r.invoker.Invoke(ctx, res.Decision.ConstructedPrompt)
	if err != nil {
		return res, fmt.Errorf("run %s on issue #%d: %w", s, number, err)
	}
	sections, err := llm.ValidateStageResponse(s, out)
	if err != nil {
		r.comment(number, s, "failed", err.Error(), sc.TraceID)
		if berr := r.block(number, s, sc.TraceID, res, fmt.Sprintf("%s workflow failed: %v", work[s].title, err)); berr != nil {
			return res, errors.Join(err, berr)
		}
		return res, err
	}
	res.Sections = sections

	if err := r.comment(number, s, "completed", out, sc.TraceID); err != nil {
		return res, err
	}

	if s == labels.StagePrioritize {
		if p, ok := llm.ExtractPriority(sections["priority_recommendation"]); ok {
			if err := r.manager.AddPriorityLabel(number, p, sc.TraceID); err != nil {
				return res, err
			}
			res.Priority = p
		}
	}

	if s == labels.StageTriage && recommendsBlock(sections["recommendation"]) {
		reason := "Triage recommended blocking: " + sections["recommendation"]
		return res, r.block(number, s, sc.TraceID, res, reason)
	}

	next := work[s].next
	reason := fmt.Sprintf("%s workflow completed successfully", work[s].title)
	if err := r.manager.TransitionIssueState(number, next, reason, sc.TraceID); err != nil {
		return res, err
	}
	res.NextStage = next
	return res, nil
}

// recommendsBlock reports whether a triage recommendation asks to block
// rather than proceed.
func recommendsBlock(rec string) bool {
	rec = strings.ToLower(rec)
	return strings.Contains(rec, "block") && !strings.Contains(rec, "proceed")
}

// block moves the issue to blocked if its current stage permits it.
func (r *Runner) block(number int, s labels.Stage, traceID string, res *Result, reason string) error {
	if !stage.CanTransition(s, labels.StageBlocked) {
		r.logf("[%s] issue #%d stays at %s: %s", traceID, number, s, reason)
		return nil
	}
	if err := r.manager.TransitionIssueState(number, labels.StageBlocked, reason, traceID); err != nil {
		return err
	}
	res.NextStage = labels.StageBlocked
	return nil
}

func (r *Runner) recordDecision(ctx context.Context, number int, s labels.Stage, traceID string, d policy.PolicyDecision) {
	if r.store != nil {
		rec, err := NewDecisionRecord(number, string(s), traceID, d)
		if err == nil {
			err = r.store.RecordDecision(ctx, rec)
		}
		if err != nil {
			r.logf("[%s] audit log: %v", traceID, err)
		}
	}
	ev := events.DecisionEvent{Issue: number, Stage: string(s), TraceID: traceID, Decision: d}
	if err := r.publisher.PublishDecision(ctx, ev); err != nil {
		r.logf("[%s] publish decision: %v", traceID, err)
	}
}

// comment posts a stage progress comment. The "<Title> Workflow Completed"
// heading is what later runs look for to find the stage's artifact.
func (r *Runner) comment(number int, s labels.Stage, status, details, traceID string) error {
	mark := "✅"
	if status != "completed" {
		mark = "❌"
	}
	lines := []string{
		fmt.Sprintf("%s **%s Workflow %s**", mark, work[s].title, strings.ToUpper(status[:1])+status[1:]),
		"",
		fmt.Sprintf("**Status**: %s", status),
		fmt.Sprintf("**Timestamp**: %s", r.now().UTC().Format(time.RFC3339)),
		fmt.Sprintf("**Trace_ID**: `%s`", traceID),
	}
	if details != "" {
		lines = append(lines, "", "**Details**:", details)
	}
	if r.runURL != "" {
		lines = append(lines, "", fmt.Sprintf("**Workflow Run**: %s", r.runURL))
	}
	if err := r.issues.AddComment(number, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("post %s output on issue #%d: %w", s, number, err)
	}
	return nil
}

// RunURL builds the CI run link from GitHub Actions variables. It returns ""
// unless all three are set.
func RunURL(serverURL, repo, runID string) string {
	if serverURL == "" || repo == "" || runID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/actions/runs/%s", strings.TrimRight(serverURL, "/"), repo, runID)
}
