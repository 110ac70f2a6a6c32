package config

import (
	"github.com/lucasnoah/gatekeeper/internal/labels"
)

// SourcePolicy controls which issue sources may proceed at a stage without review.
type SourcePolicy string

const (
	SourceAllAllowed            SourcePolicy = "all_allowed"
	SourceUserOnly              SourcePolicy = "user_only"
	SourceMonitorRequiresReview SourcePolicy = "monitor_requires_review"
)

// Valid reports whether p is a known policy.
func (p SourcePolicy) Valid() bool {
	switch p {
	case SourceAllAllowed, SourceUserOnly, SourceMonitorRequiresReview:
		return true
	}
	return false
}

// Permits reports whether an issue from src passes without review.
// Every policy other than all_allowed admits only user-sourced issues.
func (p SourcePolicy) Permits(src labels.Source) bool {
	if p == SourceAllAllowed {
		return true
	}
	return src == labels.SourceUser
}

// PolicyFile is the on-disk YAML form of the gate policy.
type PolicyFile struct {
	Stages map[string]StageConstraints `yaml:"stages"`
	Change ChangePolicy                `yaml:"change,omitempty"`
}

// StageConstraints is the policy for one gate stage.
type StageConstraints struct {
	AllowedRequestTypes []labels.RequestType `yaml:"allowed_request_types" json:"allowed_request_types"`
	SourcePolicy        SourcePolicy         `yaml:"source_policy" json:"source_policy"`
	ScopeLimits         []string             `yaml:"scope_limits" json:"scope_limits"`
	OutputFormat        string               `yaml:"output_format" json:"output_format"`
	MaxResponseLength   int                  `yaml:"max_response_length" json:"max_response_length"`
	RequiredArtifacts   []string             `yaml:"required_artifacts" json:"required_artifacts"`
}

// AllowsRequestType reports whether rt is on the allowed list.
func (c StageConstraints) AllowsRequestType(rt labels.RequestType) bool {
	for _, allowed := range c.AllowedRequestTypes {
		if allowed == rt {
			return true
		}
	}
	return false
}

// MissingArtifacts returns the required artifacts not present in have,
// in the order they are declared.
func (c StageConstraints) MissingArtifacts(have []string) []string {
	present := make(map[string]bool, len(have))
	for _, a := range have {
		present[a] = true
	}
	var missing []string
	for _, req := range c.RequiredArtifacts {
		if !present[req] {
			missing = append(missing, req)
		}
	}
	return missing
}

func (c StageConstraints) clone() StageConstraints {
	c.AllowedRequestTypes = append([]labels.RequestType(nil), c.AllowedRequestTypes...)
	c.ScopeLimits = append([]string(nil), c.ScopeLimits...)
	c.RequiredArtifacts = append([]string(nil), c.RequiredArtifacts...)
	return c
}

// ChangePolicy configures the implementation change evaluator.
type ChangePolicy struct {
	MaxFilesChanged int      `yaml:"max_files_changed" json:"max_files_changed"`
	RestrictedPaths []string `yaml:"restricted_paths" json:"restricted_paths"`
}

// ConstraintTable is the read-only stage policy consulted by the gate.
type ConstraintTable struct {
	stages map[labels.Stage]StageConstraints
	change ChangePolicy
}

// Lookup returns a copy of the constraints for a stage name.
func (t *ConstraintTable) Lookup(stage string) (StageConstraints, bool) {
	c, ok := t.stages[labels.Stage(stage)]
	if !ok {
		return StageConstraints{}, false
	}
	return c.clone(), true
}

// StageNames returns the configured stages in lifecycle order.
func (t *ConstraintTable) StageNames() []string {
	var names []string
	for _, s := range labels.Stages() {
		if _, ok := t.stages[s]; ok {
			names = append(names, string(s))
		}
	}
	return names
}

// Change returns a copy of the change policy.
func (t *ConstraintTable) Change() ChangePolicy {
	cp := t.change
	cp.RestrictedPaths = append([]string(nil), cp.RestrictedPaths...)
	return cp
}

// File returns the table in its YAML-serializable form.
func (t *ConstraintTable) File() *PolicyFile {
	f := &PolicyFile{Stages: make(map[string]StageConstraints, len(t.stages)), Change: t.Change()}
	for s, c := range t.stages {
		f.Stages[string(s)] = c.clone()
	}
	return f
}
