package config

import "github.com/lucasnoah/gatekeeper/internal/labels"

const (
	DefaultMaxFilesChanged = 20
	defaultPolicyName      = "gatekeeper.policy.yaml"
)

// DefaultRestrictedPaths are path prefixes that always need a human to look at.
var DefaultRestrictedPaths = []string{
	".github/workflows/",
	"internal/policy/gate.go",
	"go.mod",
}

// DefaultPolicy returns the builtin gate policy.
func DefaultPolicy() *PolicyFile {
	return &PolicyFile{
		Stages: map[string]StageConstraints{
			string(labels.StageTriage): {
				AllowedRequestTypes: []labels.RequestType{labels.RequestBug, labels.RequestFeature, labels.RequestInvestigate},
				SourcePolicy:        SourceAllAllowed,
				ScopeLimits: []string{
					"analyze problem only",
					"no code changes",
					"no implementation suggestions",
					"focus on understanding and clarification",
				},
				OutputFormat:      "structured triage report",
				MaxResponseLength: 2000,
			},
			string(labels.StagePlan): {
				AllowedRequestTypes: []labels.RequestType{labels.RequestBug, labels.RequestFeature},
				SourcePolicy:        SourceAllAllowed,
				ScopeLimits: []string{
					"create implementation plan only",
					"no actual code implementation",
					"focus on approach and design",
					"include test strategy",
				},
				OutputFormat:      "structured implementation plan",
				MaxResponseLength: 3000,
				RequiredArtifacts: []string{"triage_report"},
			},
			string(labels.StagePrioritize): {
				AllowedRequestTypes: []labels.RequestType{labels.RequestBug, labels.RequestFeature},
				SourcePolicy:        SourceAllAllowed,
				ScopeLimits: []string{
					"assess priority only",
					"no implementation decisions",
					"focus on value and effort analysis",
				},
				OutputFormat:      "priority recommendation with justification",
				MaxResponseLength: 1500,
				RequiredArtifacts: []string{"triage_report", "implementation_plan"},
			},
			string(labels.StageImplement): {
				AllowedRequestTypes: []labels.RequestType{labels.RequestBug, labels.RequestFeature},
				SourcePolicy:        SourceUserOnly,
				ScopeLimits: []string{
					"implement approved plan only",
					"include comprehensive tests",
					"follow existing code patterns",
					"no architectural changes without approval",
				},
				OutputFormat:      "code implementation with tests",
				MaxResponseLength: 10000,
				RequiredArtifacts: []string{"triage_report", "implementation_plan", "priority_assessment", "human_approval"},
			},
		},
		Change: ChangePolicy{
			MaxFilesChanged: DefaultMaxFilesChanged,
			RestrictedPaths: append([]string(nil), DefaultRestrictedPaths...),
		},
	}
}

// DefaultTable returns the builtin constraint table.
func DefaultTable() *ConstraintTable {
	t, err := NewTable(DefaultPolicy())
	if err != nil {
		panic("builtin policy is invalid: " + err.Error())
	}
	return t
}

// applyDefaults fills unset fields with builtin values.
func applyDefaults(f *PolicyFile) {
	for name, c := range f.Stages {
		if c.SourcePolicy == "" {
			c.SourcePolicy = SourceAllAllowed
			f.Stages[name] = c
		}
	}
	if f.Change.MaxFilesChanged == 0 {
		f.Change.MaxFilesChanged = DefaultMaxFilesChanged
	}
	if f.Change.RestrictedPaths == nil {
		f.Change.RestrictedPaths = append([]string(nil), DefaultRestrictedPaths...)
	}
}
