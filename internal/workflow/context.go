package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lucasnoah/gatekeeper/internal/github"
	"github.com/lucasnoah/gatekeeper/internal/labels"
	"github.com/lucasnoah/gatekeeper/internal/policy"
)

// SeverityPrefix is the label prefix for an explicit severity.
const SeverityPrefix = "severity:"

// Artifact names recorded by completed stages.
const (
	ArtifactTriageReport       = "triage_report"
	ArtifactImplementationPlan = "implementation_plan"
	ArtifactPriorityAssessment = "priority_assessment"
	ArtifactHumanApproval      = "human_approval"
)

var (
	traceFieldRe    = regexp.MustCompile("\\*\\*Trace_ID\\*\\*:\\s*`([^`]+)`")
	traceFallbackRe = regexp.MustCompile(`trace-[a-zA-Z0-9\-_]+`)
	severityFieldRe = regexp.MustCompile(`(?m)^\*\*Severity\*\*:\s*(\S+)`)

	severityKeywords = []struct {
		re       *regexp.Regexp
		severity string
	}{
		{regexp.MustCompile(`\b(critical|severe)\b`), "critical"},
		{regexp.MustCompile(`\bhigh\b`), "high"},
		{regexp.MustCompile(`\bmedium\b`), "medium"},
		{regexp.MustCompile(`\blow\b`), "low"},
	}
)

// NewTraceID returns a fresh trace id.
func NewTraceID() string {
	return "trace-" + uuid.NewString()
}

// TraceIDFromBody returns the trace id recorded in an issue body, preferring
// the **Trace_ID** field over a bare trace-... token.
func TraceIDFromBody(body string) (string, bool) {
	if m := traceFieldRe.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	if m := traceFallbackRe.FindString(body); m != "" {
		return m, true
	}
	return "", false
}

// severityFromText returns the first severity keyword found, highest first.
func severityFromText(text string) string {
	lower := strings.ToLower(text)
	for _, k := range severityKeywords {
		if k.re.MatchString(lower) {
			return k.severity
		}
	}
	return ""
}

// artifactsFromComments maps completion markers in comments to artifact names.
func artifactsFromComments(comments []github.Comment) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(a string) {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, c := range comments {
		switch {
		case strings.Contains(c.Body, "Triage Workflow Completed"):
			add(ArtifactTriageReport)
		case strings.Contains(c.Body, "Planning Workflow Completed"):
			add(ArtifactImplementationPlan)
		case strings.Contains(c.Body, "Prioritization Workflow Completed"):
			add(ArtifactPriorityAssessment)
		case strings.Contains(strings.ToLower(c.Body), "implementation approved"):
			add(ArtifactHumanApproval)
		}
	}
	return out
}

// ExtractStageContext builds the gate input for an issue at stage s from its
// labels, body and comments. Request type and source default to bug and user.
// Label values are passed through unparsed; the gate blocks unknown request
// types and sources.
func ExtractStageContext(issue *github.Issue, comments []github.Comment, s labels.Stage) policy.StageContext {
	sc := policy.StageContext{
		IssueID:      strconv.Itoa(issue.Number),
		CurrentStage: string(s),
		RequestType:  labels.RequestBug,
		Source:       labels.SourceUser,
		IssueContent: fmt.Sprintf("Title: %s\n\nDescription: %s", issue.Title, issue.Body),
	}

	for _, name := range issue.LabelNames() {
		switch {
		case strings.HasPrefix(name, labels.RequestPrefix):
			sc.RequestType = labels.RequestType(strings.TrimPrefix(name, labels.RequestPrefix))
		case strings.HasPrefix(name, labels.SourcePrefix):
			sc.Source = labels.Source(strings.TrimPrefix(name, labels.SourcePrefix))
		case strings.HasPrefix(name, labels.PriorityPrefix):
			sc.Priority = strings.TrimPrefix(name, labels.PriorityPrefix)
		case strings.HasPrefix(name, SeverityPrefix):
			sc.Severity = strings.TrimPrefix(name, SeverityPrefix)
		}
	}

	if sc.Severity == "" {
		if m := severityFieldRe.FindStringSubmatch(issue.Body); m != nil {
			sc.Severity = strings.ToLower(m[1])
		} else {
			sc.Severity = severityFromText(issue.Title + " " + issue.Body)
		}
	}

	if id, ok := TraceIDFromBody(issue.Body); ok {
		sc.TraceID = id
	} else {
		sc.TraceID = NewTraceID()
	}

	sc.WorkflowArtifacts = artifactsFromComments(comments)
	return sc
}
