package policy

import (
	"encoding/json"
	"fmt"
	"time"
)

// Decision is the outcome of a policy evaluation.
type Decision string

const (
	Allow          Decision = "allow"
	ReviewRequired Decision = "review_required"
	Block          Decision = "block"
)

// ParseDecision parses a decision name.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case Allow, ReviewRequired, Block:
		return d, nil
	}
	return "", fmt.Errorf("unknown decision %q (valid: allow, review_required, block)", s)
}

// Constraints carries structured detail about a decision. Values are
// strings, ints, bools or string slices.
type Constraints map[string]any

// PolicyDecision is the result of evaluating a stage or a change set.
// ConstructedPrompt is non-empty only when Decision is Allow.
type PolicyDecision struct {
	Decision          Decision    `json:"decision"`
	Reason            string      `json:"reason"`
	Constraints       Constraints `json:"constraints"`
	ConstructedPrompt string      `json:"constructed_prompt,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// Allowed reports whether the decision is allow.
func (d *PolicyDecision) Allowed() bool {
	return d.Decision == Allow
}

// JSON returns the decision as indented JSON.
func (d *PolicyDecision) JSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
