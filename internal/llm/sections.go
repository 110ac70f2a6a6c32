package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/gatekeeper/internal/labels"
)

// ResponseError reports an LLM response that does not have the shape a
// stage requires.
type ResponseError struct {
	Stage   labels.Stage
	Message string
	Missing []string
}

func (e *ResponseError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s response missing required sections: %s", e.Stage, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s response invalid: %s", e.Stage, e.Message)
}

// Required sections per stage.
var stageSections = map[labels.Stage][]string{
	labels.StageTriage: {
		"Problem Summary",
		"Suspected Cause",
		"Clarifying Questions",
		"Recommendation",
	},
	labels.StagePlan: {
		"Proposed Approach",
		"Affected Files",
		"Acceptance Criteria",
		"Unit Test Plan",
		"Risks and Considerations",
		"Effort Estimate",
	},
	labels.StagePrioritize: {
		"Expected User Value",
		"Implementation Effort",
		"Risk Assessment",
		"Priority Recommendation",
		"Justification",
	},
}

// SectionKey converts a section title to its map key, e.g. "Unit Test Plan" -> "unit_test_plan".
func SectionKey(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "_")
}

// headerText strips list and emphasis markup from a line so "- **Recommendation**: x"
// reads as "Recommendation: x".
func headerText(line string) string {
	line = strings.TrimPrefix(line, "- ")
	line = strings.TrimLeft(line, "# ")
	return strings.ReplaceAll(line, "**", "")
}

// ParseSections splits content into the named sections. A section starts at a
// line beginning with "<Title>:" (optionally as a list item) and runs until
// the next section header. Text after the colon belongs to the section.
// Missing or empty sections produce a *ResponseError.
func ParseSections(stage labels.Stage, content string, required []string) (map[string]string, error) {
	parsed := make(map[string]string)
	var current string
	var buf []string

	flush := func() {
		if current != "" {
			parsed[SectionKey(current)] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		header := headerText(line)

		found := ""
		for _, title := range required {
			if strings.HasPrefix(header, title+":") {
				found = title
				break
			}
		}

		if found != "" {
			flush()
			current = found
			buf = nil
			if rest := strings.TrimSpace(header[len(found)+1:]); rest != "" {
				buf = append(buf, rest)
			}
			continue
		}
		if current != "" && line != "" {
			buf = append(buf, line)
		}
	}
	flush()

	var missing []string
	for _, title := range required {
		if parsed[SectionKey(title)] == "" {
			missing = append(missing, title)
		}
	}
	if len(missing) > 0 {
		return nil, &ResponseError{Stage: stage, Missing: missing}
	}
	return parsed, nil
}

var priorityRe = regexp.MustCompile(`\bp[0-2]\b`)

// ExtractPriority returns the first p0, p1 or p2 mentioned in text.
func ExtractPriority(text string) (labels.Priority, bool) {
	m := priorityRe.FindString(strings.ToLower(text))
	if m == "" {
		return "", false
	}
	return labels.Priority(m), true
}

const minImplementationLength = 100

// ValidateStageResponse parses and checks an LLM response for a stage.
func ValidateStageResponse(stage labels.Stage, content string) (map[string]string, error) {
	if stage == labels.StageImplement {
		if len(strings.TrimSpace(content)) < minImplementationLength {
			return nil, &ResponseError{Stage: stage, Message: "implementation response too short"}
		}
		if !strings.Contains(content, "```") && !strings.Contains(content, "func ") &&
			!strings.Contains(content, "def ") && !strings.Contains(content, "class ") {
			return nil, &ResponseError{Stage: stage, Message: "implementation response must contain code"}
		}
		return map[string]string{"implementation_content": content}, nil
	}

	required, ok := stageSections[stage]
	if !ok {
		return nil, fmt.Errorf("no response format defined for stage %q", stage)
	}
	parsed, err := ParseSections(stage, content, required)
	if err != nil {
		return nil, err
	}

	switch stage {
	case labels.StageTriage:
		rec := strings.ToLower(parsed["recommendation"])
		if !strings.Contains(rec, "proceed") && !strings.Contains(rec, "block") {
			return nil, &ResponseError{Stage: stage, Message: "recommendation must contain 'proceed' or 'block'"}
		}
	case labels.StagePlan:
		if len(parsed["affected_files"]) < 10 {
			return nil, &ResponseError{Stage: stage, Message: "affected files must name specific files"}
		}
	case labels.StagePrioritize:
		if _, ok := ExtractPriority(parsed["priority_recommendation"]); !ok {
			return nil, &ResponseError{Stage: stage, Message: "priority recommendation must include p0, p1 or p2"}
		}
	}
	return parsed, nil
}
