package labels

import (
	"fmt"
	"strings"
)

// Label prefixes used on issues.
const (
	StagePrefix    = "stage:"
	RequestPrefix  = "request:"
	SourcePrefix   = "source:"
	PriorityPrefix = "priority:"
	AgentLabel     = "agent:claude"
)

// Stage is a lifecycle stage of an issue.
type Stage string

const (
	StageTriage                         Stage = "triage"
	StagePlan                           Stage = "plan"
	StagePrioritize                     Stage = "prioritize"
	StageAwaitingImplementationApproval Stage = "awaiting-implementation-approval"
	StageImplement                      Stage = "implement"
	StagePROpened                       Stage = "pr-opened"
	StageAwaitingDeployApproval         Stage = "awaiting-deploy-approval"
	StageBlocked                        Stage = "blocked"
	StageDone                           Stage = "done"
)

var allStages = []Stage{
	StageTriage,
	StagePlan,
	StagePrioritize,
	StageAwaitingImplementationApproval,
	StageImplement,
	StagePROpened,
	StageAwaitingDeployApproval,
	StageBlocked,
	StageDone,
}

// gateStages are the stages where an LLM does work and the policy gate applies.
var gateStages = []Stage{StageTriage, StagePlan, StagePrioritize, StageImplement}

// Stages returns every stage in lifecycle order.
func Stages() []Stage {
	return append([]Stage(nil), allStages...)
}

// GateStages returns the stages the policy gate evaluates, in lifecycle order.
func GateStages() []Stage {
	return append([]Stage(nil), gateStages...)
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, known := range allStages {
		if s == known {
			return true
		}
	}
	return false
}

// Label returns the issue label for the stage, e.g. "stage:triage".
func (s Stage) Label() string { return StagePrefix + string(s) }

func (s Stage) String() string { return string(s) }

// ParseStage accepts either a bare stage name or a "stage:" label.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.TrimPrefix(strings.TrimSpace(s), StagePrefix))
	if !st.Valid() {
		return "", fmt.Errorf("unknown stage %q (valid: %s)", s, joinStages(allStages))
	}
	return st, nil
}

// IsStageLabel reports whether label carries the stage prefix.
func IsStageLabel(label string) bool {
	return strings.HasPrefix(label, StagePrefix)
}

func joinStages(stages []Stage) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// RequestType classifies what an issue asks for.
type RequestType string

const (
	RequestBug         RequestType = "bug"
	RequestFeature     RequestType = "feature"
	RequestInvestigate RequestType = "investigate"
)

var requestTypes = []RequestType{RequestBug, RequestFeature, RequestInvestigate}

// RequestTypes returns all request types.
func RequestTypes() []RequestType {
	return append([]RequestType(nil), requestTypes...)
}

func (r RequestType) Valid() bool {
	for _, known := range requestTypes {
		if r == known {
			return true
		}
	}
	return false
}

func (r RequestType) Label() string { return RequestPrefix + string(r) }

// ParseRequestType accepts "bug" or "request:bug".
func ParseRequestType(s string) (RequestType, error) {
	r := RequestType(strings.TrimPrefix(strings.TrimSpace(s), RequestPrefix))
	if !r.Valid() {
		return "", fmt.Errorf("unknown request type %q (valid: bug, feature, investigate)", s)
	}
	return r, nil
}

// Source is where an issue came from.
type Source string

const (
	SourceUser    Source = "user"
	SourceMonitor Source = "monitor"
)

func (s Source) Valid() bool {
	return s == SourceUser || s == SourceMonitor
}

func (s Source) Label() string { return SourcePrefix + string(s) }

// ParseSource accepts "user" or "source:user".
func ParseSource(s string) (Source, error) {
	src := Source(strings.TrimPrefix(strings.TrimSpace(s), SourcePrefix))
	if !src.Valid() {
		return "", fmt.Errorf("unknown source %q (valid: user, monitor)", s)
	}
	return src, nil
}

// Priority is a p0 (highest) to p2 ranking.
type Priority string

const (
	PriorityP0 Priority = "p0"
	PriorityP1 Priority = "p1"
	PriorityP2 Priority = "p2"
)

func (p Priority) Valid() bool {
	return p == PriorityP0 || p == PriorityP1 || p == PriorityP2
}

func (p Priority) Label() string { return PriorityPrefix + string(p) }

// ParsePriority accepts "p1", "P1" or "priority:p1".
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), PriorityPrefix)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q (valid: p0, p1, p2)", s)
	}
	return p, nil
}
