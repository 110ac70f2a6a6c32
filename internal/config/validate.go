package config

import (
	"fmt"
	"sort"

	"github.com/lucasnoah/gatekeeper/internal/labels"
)

// ValidationError represents a single validation issue with a policy file.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a PolicyFile for structural and semantic errors.
// It returns every problem found, sorted by field (empty if valid).
func Validate(f *PolicyFile) []ValidationError {
	var errs []ValidationError

	gate := make(map[string]bool)
	for _, s := range labels.GateStages() {
		gate[string(s)] = true
		if _, ok := f.Stages[string(s)]; !ok {
			errs = append(errs, ValidationError{
				Field:   "stages." + string(s),
				Message: "is required",
			})
		}
	}

	for name, c := range f.Stages {
		field := "stages." + name
		if !gate[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "is not a gated stage (valid: triage, plan, prioritize, implement)",
			})
			continue
		}
		if len(c.AllowedRequestTypes) == 0 {
			errs = append(errs, ValidationError{Field: field + ".allowed_request_types", Message: "at least one request type is required"})
		}
		for i, rt := range c.AllowedRequestTypes {
			if !rt.Valid() {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.allowed_request_types[%d]", field, i),
					Message: fmt.Sprintf("unknown request type %q", rt),
				})
			}
		}
		if !c.SourcePolicy.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".source_policy",
				Message: fmt.Sprintf("unknown source policy %q", c.SourcePolicy),
			})
		}
		if c.MaxResponseLength < 0 {
			errs = append(errs, ValidationError{Field: field + ".max_response_length", Message: "must not be negative"})
		}
		for i, a := range c.RequiredArtifacts {
			if a == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.required_artifacts[%d]", field, i),
					Message: "must not be empty",
				})
			}
		}
	}

	if f.Change.MaxFilesChanged < 1 {
		errs = append(errs, ValidationError{Field: "change.max_files_changed", Message: "must be at least 1"})
	}
	for i, p := range f.Change.RestrictedPaths {
		if p == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("change.restricted_paths[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}
