package stage

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lucasnoah/gatekeeper/internal/github"
	"github.com/lucasnoah/gatekeeper/internal/labels"
)

// IssueStore is the label/comment store the manager drives. *github.Client
// satisfies it.
type IssueStore interface {
	GetIssue(number int) (*github.Issue, error)
	SetLabels(number int, names []string) error
	AddComment(number int, body string) error
	CreateIssue(title, body string, labelNames []string) (int, error)
	EnsureLabels(defs []labels.Definition) error
}

// Transition is a stage change that has been applied to an issue.
// From is empty for the initial stage of a new issue.
type Transition struct {
	Issue   int
	From    labels.Stage
	To      labels.Stage
	Reason  string
	TraceID string
	At      time.Time
}

// Observer is notified after a transition is applied. Observer errors are
// logged and never undo or fail the transition.
type Observer interface {
	TransitionApplied(t Transition) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition) error

func (f ObserverFunc) TransitionApplied(t Transition) error { return f(t) }

// Manager moves issues through the stage graph using labels as the only
// persistent state. Every change is recorded as an audit comment.
type Manager struct {
	store     IssueStore
	observers []Observer
	now       func() time.Time
	progress  io.Writer
}

// NewManager creates a state manager over store.
func NewManager(store IssueStore) *Manager {
	return &Manager{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// AddObserver registers an observer for applied transitions.
func (m *Manager) AddObserver(o Observer) {
	m.observers = append(m.observers, o)
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (m *Manager) SetProgress(w io.Writer) {
	m.progress = w
}

// SetClock overrides the audit timestamp source (for testing).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.progress != nil {
		fmt.Fprintf(m.progress, "  → "+format+"\n", args...)
	}
}

// StageOf returns the single stage named by an issue's labels.
func StageOf(number int, names []string) (labels.Stage, error) {
	var stageLabels []string
	for _, n := range names {
		if labels.IsStageLabel(n) {
			stageLabels = append(stageLabels, n)
		}
	}
	if len(stageLabels) != 1 {
		return "", &IntegrityError{Issue: number, StageLabels: stageLabels}
	}
	s, err := labels.ParseStage(stageLabels[0])
	if err != nil {
		return "", &IntegrityError{Issue: number, StageLabels: stageLabels}
	}
	return s, nil
}

// GetIssueStage returns the issue's current stage.
func (m *Manager) GetIssueStage(number int) (labels.Stage, error) {
	issue, err := m.store.GetIssue(number)
	if err != nil {
		return "", err
	}
	return StageOf(number, issue.LabelNames())
}

// TransitionIssueState moves an issue to a new stage. The edge is validated
// before anything is written; on success the stage label is replaced in a
// single label update and an audit comment is posted.
func (m *Manager) TransitionIssueState(number int, to labels.Stage, reason, traceID string) error {
	if !to.Valid() {
		return fmt.Errorf("transition issue #%d: unknown target stage %q", number, to)
	}
	issue, err := m.store.GetIssue(number)
	if err != nil {
		return fmt.Errorf("transition issue #%d: %w", number, err)
	}
	names := issue.LabelNames()
	from, err := StageOf(number, names)
	if err != nil {
		return err
	}
	if !CanTransition(from, to) {
		return &TransitionError{Issue: number, From: from, To: to}
	}

	next := make([]string, 0, len(names))
	for _, n := range names {
		if !labels.IsStageLabel(n) {
			next = append(next, n)
		}
	}
	next = append(next, to.Label())

	if err := m.store.SetLabels(number, next); err != nil {
		return fmt.Errorf("transition issue #%d: %w", number, err)
	}

	t := Transition{Issue: number, From: from, To: to, Reason: reason, TraceID: traceID, At: m.now()}
	if err := m.store.AddComment(number, transitionComment(t)); err != nil {
		return fmt.Errorf("transition issue #%d: labels updated but audit comment failed: %w", number, err)
	}
	m.logf("[%s] issue #%d: %s → %s", traceID, number, from, to)
	m.notify(t)
	return nil
}

// CreateRequest describes a new issue.
type CreateRequest struct {
	Title       string
	Description string
	RequestType labels.RequestType
	Source      labels.Source
	TraceID     string
	Severity    string
	Priority    string
}

// CreateIssueWithInitialState opens an issue labeled with its request type,
// source and the triage stage, and records the initial transition.
func (m *Manager) CreateIssueWithInitialState(req CreateRequest) (int, error) {
	if !req.RequestType.Valid() {
		return 0, fmt.Errorf("create issue: unknown request type %q", req.RequestType)
	}
	if !req.Source.Valid() {
		return 0, fmt.Errorf("create issue: unknown source %q", req.Source)
	}
	if strings.TrimSpace(req.Title) == "" {
		return 0, fmt.Errorf("create issue: title is required")
	}
	if req.TraceID == "" {
		return 0, fmt.Errorf("create issue: trace id is required")
	}

	initial := []string{req.RequestType.Label(), req.Source.Label(), labels.StageTriage.Label()}
	number, err := m.store.CreateIssue(req.Title, issueBody(req), initial)
	if err != nil {
		return 0, err
	}

	t := Transition{
		Issue:   number,
		To:      labels.StageTriage,
		Reason:  "Issue created with Trace_ID: " + req.TraceID,
		TraceID: req.TraceID,
		At:      m.now(),
	}
	if err := m.store.AddComment(number, transitionComment(t)); err != nil {
		return number, fmt.Errorf("issue #%d created but audit comment failed: %w", number, err)
	}
	m.logf("[%s] created issue #%d in %s", req.TraceID, number, labels.StageTriage)
	m.notify(t)
	return number, nil
}

// issueBody prefixes severity (bugs) or priority (features) and appends the trace id.
func issueBody(req CreateRequest) string {
	body := req.Description
	switch {
	case req.Severity != "" && req.RequestType == labels.RequestBug:
		body = fmt.Sprintf("**Severity**: %s\n\n%s", req.Severity, body)
	case req.Priority != "" && req.RequestType == labels.RequestFeature:
		body = fmt.Sprintf("**Priority**: %s\n\n%s", req.Priority, body)
	}
	return fmt.Sprintf("%s\n\n---\n**Trace_ID**: `%s`", body, req.TraceID)
}

// AddPriorityLabel adds a priority label, replacing any existing priority
// label, and posts an audit comment. The stage is not changed.
func (m *Manager) AddPriorityLabel(number int, p labels.Priority, traceID string) error {
	if !p.Valid() {
		return fmt.Errorf("set priority on issue #%d: unknown priority %q", number, p)
	}
	issue, err := m.store.GetIssue(number)
	if err != nil {
		return fmt.Errorf("set priority on issue #%d: %w", number, err)
	}

	var next []string
	for _, n := range issue.LabelNames() {
		if !strings.HasPrefix(n, labels.PriorityPrefix) {
			next = append(next, n)
		}
	}
	next = append(next, p.Label())
	if err := m.store.SetLabels(number, next); err != nil {
		return fmt.Errorf("set priority on issue #%d: %w", number, err)
	}

	body := fmt.Sprintf("Priority set to %s\n\n**Trace_ID**: `%s`\n**Timestamp**: %s",
		p.Label(), traceID, m.now().UTC().Format(time.RFC3339))
	if err := m.store.AddComment(number, body); err != nil {
		return fmt.Errorf("set priority on issue #%d: labels updated but audit comment failed: %w", number, err)
	}
	m.logf("[%s] issue #%d: priority %s", traceID, number, p)
	return nil
}

// EnsureRepositoryLabels creates or updates every workflow label.
func (m *Manager) EnsureRepositoryLabels() error {
	return m.store.EnsureLabels(labels.Catalog())
}

func (m *Manager) notify(t Transition) {
	for _, o := range m.observers {
		if err := o.TransitionApplied(t); err != nil {
			m.logf("[%s] observer failed for issue #%d: %v", t.TraceID, t.Issue, err)
		}
	}
}

// transitionComment renders the audit comment for a transition.
func transitionComment(t Transition) string {
	from := "None"
	if t.From != "" {
		from = t.From.Label()
	}
	return fmt.Sprintf("**State Transition**: %s → %s\n\n**Reason**: %s\n\n**Trace_ID**: `%s`\n**Timestamp**: %s",
		from, t.To.Label(), t.Reason, t.TraceID, t.At.UTC().Format(time.RFC3339))
}
