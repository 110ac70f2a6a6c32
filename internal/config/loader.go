package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lucasnoah/gatekeeper/internal/labels"
	"gopkg.in/yaml.v3"
)

// InvalidPolicyError is returned when a policy file fails validation.
type InvalidPolicyError struct {
	Path   string
	Errors []ValidationError
}

func (e *InvalidPolicyError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	src := e.Path
	if src == "" {
		src = "policy"
	}
	return fmt.Sprintf("%s has %d validation error(s): %s", src, len(e.Errors), strings.Join(msgs, "; "))
}

// NewTable validates f and freezes it into a ConstraintTable.
func NewTable(f *PolicyFile) (*ConstraintTable, error) {
	applyDefaults(f)
	if errs := Validate(f); len(errs) > 0 {
		return nil, &InvalidPolicyError{Errors: errs}
	}
	t := &ConstraintTable{
		stages: make(map[labels.Stage]StageConstraints, len(f.Stages)),
		change: ChangePolicy{
			MaxFilesChanged: f.Change.MaxFilesChanged,
			RestrictedPaths: append([]string(nil), f.Change.RestrictedPaths...),
		},
	}
	for name, c := range f.Stages {
		t.stages[labels.Stage(name)] = c.clone()
	}
	return t, nil
}

// Load reads a policy from the given YAML file path and builds a table from it.
func Load(path string) (*ConstraintTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var f PolicyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	t, err := NewTable(&f)
	if err != nil {
		var invalid *InvalidPolicyError
		if errors.As(err, &invalid) {
			invalid.Path = path
		}
		return nil, err
	}
	return t, nil
}

// LoadDefault loads the policy at path when set, then ./gatekeeper.policy.yaml
// if present, and otherwise falls back to the builtin table.
func LoadDefault(path string) (*ConstraintTable, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(defaultPolicyName); err == nil {
		return Load(defaultPolicyName)
	}
	return DefaultTable(), nil
}
