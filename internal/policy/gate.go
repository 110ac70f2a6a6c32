package policy

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lucasnoah/gatekeeper/internal/config"
	"github.com/lucasnoah/gatekeeper/internal/labels"
	"github.com/lucasnoah/gatekeeper/internal/prompt"
)

const notSpecified = "not specified"

// StageContext is everything the gate needs to decide whether work on an
// issue may proceed at a stage.
type StageContext struct {
	IssueID           string             `json:"issue_id"`
	CurrentStage      string             `json:"current_stage"`
	RequestType       labels.RequestType `json:"request_type"`
	Source            labels.Source      `json:"source"`
	Priority          string             `json:"priority,omitempty"`
	Severity          string             `json:"severity,omitempty"`
	TraceID           string             `json:"trace_id"`
	IssueContent      string             `json:"issue_content"`
	WorkflowArtifacts []string           `json:"workflow_artifacts"`
}

// Gate evaluates stage contexts against the constraint table and builds
// constrained prompts. It holds no mutable state after construction and is
// safe for concurrent use.
type Gate struct {
	table     *config.ConstraintTable
	templates *prompt.Store
	now       func() time.Time
	progress  io.Writer
}

// NewGate builds a gate. Every stage in the table must have a template;
// otherwise a *prompt.TemplateLoadError is returned.
func NewGate(table *config.ConstraintTable, templates *prompt.Store) (*Gate, error) {
	if table == nil {
		return nil, fmt.Errorf("policy gate: constraint table is required")
	}
	if templates == nil {
		return nil, &prompt.TemplateLoadError{Source: "gate", Problems: []string{"no templates loaded"}}
	}
	var problems []string
	for _, name := range table.StageNames() {
		if _, ok := templates.Template(labels.Stage(name)); !ok {
			problems = append(problems, fmt.Sprintf("no template for stage %q", name))
		}
	}
	if len(problems) > 0 {
		return nil, &prompt.TemplateLoadError{Source: "gate", Problems: problems}
	}
	return &Gate{
		table:     table,
		templates: templates,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetProgress sets a writer for evaluation log lines (e.g. os.Stderr).
func (g *Gate) SetProgress(w io.Writer) {
	g.progress = w
}

// SetClock overrides the decision timestamp source (for testing).
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

func (g *Gate) logf(format string, args ...interface{}) {
	if g.progress != nil {
		fmt.Fprintf(g.progress, "  → "+format+"\n", args...)
	}
}

// Table returns the constraint table the gate evaluates against.
func (g *Gate) Table() *config.ConstraintTable {
	return g.table
}

// EvaluateStageTransition decides whether LLM work may proceed for sc.
// Checks run in a fixed order and the first failure wins. It never returns
// an error: every failure is expressed as a decision.
func (g *Gate) EvaluateStageTransition(sc StageContext) PolicyDecision {
	d := g.evaluate(sc)
	d.Timestamp = g.now()
	g.logf("[%s] issue %s stage %s: %s (%s)", sc.TraceID, sc.IssueID, sc.CurrentStage, d.Decision, d.Reason)
	return d
}

func (g *Gate) evaluate(sc StageContext) PolicyDecision {
	if !sc.Source.Valid() {
		return PolicyDecision{
			Decision:    Block,
			Reason:      fmt.Sprintf("Unknown source '%s'", sc.Source),
			Constraints: Constraints{"valid_sources": []string{string(labels.SourceUser), string(labels.SourceMonitor)}},
		}
	}

	rules, ok := g.table.Lookup(sc.CurrentStage)
	if !ok {
		return PolicyDecision{
			Decision:    Block,
			Reason:      fmt.Sprintf("Invalid stage: %s", sc.CurrentStage),
			Constraints: Constraints{"valid_stages": g.table.StageNames()},
		}
	}

	if !rules.AllowsRequestType(sc.RequestType) {
		allowed := make([]string, len(rules.AllowedRequestTypes))
		for i, rt := range rules.AllowedRequestTypes {
			allowed[i] = string(rt)
		}
		return PolicyDecision{
			Decision:    Block,
			Reason:      fmt.Sprintf("Request type '%s' not allowed for %s stage", sc.RequestType, sc.CurrentStage),
			Constraints: Constraints{"allowed_request_types": allowed},
		}
	}

	if !rules.SourcePolicy.Permits(sc.Source) {
		return PolicyDecision{
			Decision:    ReviewRequired,
			Reason:      fmt.Sprintf("Source '%s' requires human review for %s stage", sc.Source, sc.CurrentStage),
			Constraints: Constraints{"source_policy": string(rules.SourcePolicy)},
		}
	}

	if cr := ValidateContent(sc.IssueContent); cr.Decision != Allow {
		return PolicyDecision{Decision: cr.Decision, Reason: cr.Reason, Constraints: cr.Constraints}
	}

	if d, failed := checkStageFields(sc, rules); failed {
		return d
	}

	text, err := g.templates.Render(labels.Stage(sc.CurrentStage), promptVars(sc, rules))
	if err != nil {
		return PolicyDecision{
			Decision:    Block,
			Reason:      fmt.Sprintf("Prompt construction failed: %v", err),
			Constraints: Constraints{"error": "prompt_construction_failed"},
		}
	}

	return PolicyDecision{
		Decision: Allow,
		Reason:   fmt.Sprintf("All policy checks passed for %s stage", sc.CurrentStage),
		Constraints: Constraints{
			"stage":        sc.CurrentStage,
			"request_type": string(sc.RequestType),
			"source":       string(sc.Source),
			"scope_limits": rules.ScopeLimits,
		},
		ConstructedPrompt: text,
	}
}

// checkStageFields enforces per-stage required fields, then required artifacts.
func checkStageFields(sc StageContext, c config.StageConstraints) (PolicyDecision, bool) {
	var missingFields []string
	if sc.CurrentStage == string(labels.StagePrioritize) && strings.TrimSpace(sc.Priority) == "" {
		missingFields = append(missingFields, "priority")
	}
	if sc.CurrentStage == string(labels.StageTriage) && sc.RequestType == labels.RequestBug && strings.TrimSpace(sc.Severity) == "" {
		missingFields = append(missingFields, "severity")
	}
	if len(missingFields) > 0 {
		return PolicyDecision{
			Decision:    Block,
			Reason:      fmt.Sprintf("Missing required field(s) for %s stage: %s", sc.CurrentStage, strings.Join(missingFields, ", ")),
			Constraints: Constraints{"required_fields": missingFields},
		}, true
	}

	if missing := c.MissingArtifacts(sc.WorkflowArtifacts); len(missing) > 0 {
		return PolicyDecision{
			Decision: Block,
			Reason:   fmt.Sprintf("Missing required artifacts for %s stage: %s", sc.CurrentStage, strings.Join(missing, ", ")),
			Constraints: Constraints{
				"required_artifacts": c.RequiredArtifacts,
				"missing":            missing,
			},
		}, true
	}
	return PolicyDecision{}, false
}

// ConstraintText renders a stage's constraints as the prompt's constraint block.
func ConstraintText(c config.StageConstraints) string {
	var lines []string
	if len(c.ScopeLimits) > 0 {
		lines = append(lines, "SCOPE LIMITS: "+strings.Join(c.ScopeLimits, ", "))
	}
	if c.OutputFormat != "" {
		lines = append(lines, "OUTPUT FORMAT: "+c.OutputFormat)
	}
	if c.MaxResponseLength > 0 {
		lines = append(lines, fmt.Sprintf("MAX RESPONSE LENGTH: %d characters", c.MaxResponseLength))
	}
	return strings.Join(lines, "\n")
}

func promptVars(sc StageContext, c config.StageConstraints) prompt.Vars {
	return prompt.Vars{
		prompt.VarRequestType:  string(sc.RequestType),
		prompt.VarSource:       string(sc.Source),
		prompt.VarIssueContent: sc.IssueContent,
		prompt.VarTraceID:      sc.TraceID,
		prompt.VarConstraints:  ConstraintText(c),
		prompt.VarPriority:     orNotSpecified(sc.Priority),
		prompt.VarSeverity:     orNotSpecified(sc.Severity),
	}
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return notSpecified
	}
	return s
}
