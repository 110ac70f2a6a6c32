package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatDecisionComment renders a decision as an issue comment. Constraint
// keys are listed in sorted order.
func FormatDecisionComment(stage, traceID string, d PolicyDecision) string {
	lines := []string{
		fmt.Sprintf("**Policy Gate Decision: %s**", strings.ToUpper(string(d.Decision))),
		"",
		fmt.Sprintf("**Stage**: %s", stage),
		fmt.Sprintf("**Decision**: %s", d.Decision),
		fmt.Sprintf("**Reason**: %s", d.Reason),
		fmt.Sprintf("**Timestamp**: %s", d.Timestamp.UTC().Format(time.RFC3339)),
		fmt.Sprintf("**Trace_ID**: `%s`", traceID),
	}

	if len(d.Constraints) > 0 {
		lines = append(lines, "", "**Applied Constraints**:")
		keys := make([]string, 0, len(d.Constraints))
		for k := range d.Constraints {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("- %s: %s", k, formatValue(d.Constraints[k])))
		}
	}
	return strings.Join(lines, "\n")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
