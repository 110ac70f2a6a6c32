package policy

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinContentLength   = 10
	MaxRepeatedMarks   = 10
	spamIndicatorMarks = "excessive_punctuation"
)

// BlockedPatterns are matched case-insensitively as substrings of issue content.
var BlockedPatterns = []string{
	"delete everything",
	"rm -rf",
	"drop database",
	"format hard drive",
	"shutdown system",
	"hack",
	"exploit",
	"backdoor",
}

// ContentResult is the outcome of content validation.
type ContentResult struct {
	Decision    Decision
	Reason      string
	Constraints Constraints
}

// ValidateContent screens issue content. The first matching rule wins:
// a blocked pattern, then minimum length, then spam-like punctuation.
func ValidateContent(content string) ContentResult {
	lower := strings.ToLower(content)
	for _, p := range BlockedPatterns {
		if strings.Contains(lower, p) {
			return ContentResult{
				Decision:    Block,
				Reason:      fmt.Sprintf("Content contains inappropriate pattern: '%s'", p),
				Constraints: Constraints{"blocked_patterns": append([]string(nil), BlockedPatterns...)},
			}
		}
	}

	if utf8.RuneCountInString(strings.TrimSpace(content)) < MinContentLength {
		return ContentResult{
			Decision:    Block,
			Reason:      fmt.Sprintf("Issue content too short, minimum %d characters required", MinContentLength),
			Constraints: Constraints{"min_content_length": MinContentLength},
		}
	}

	if strings.Count(content, "!") > MaxRepeatedMarks || strings.Count(content, "?") > MaxRepeatedMarks {
		return ContentResult{
			Decision:    ReviewRequired,
			Reason:      "Content appears spam-like, requires human review",
			Constraints: Constraints{"spam_indicators": spamIndicatorMarks},
		}
	}

	return ContentResult{Decision: Allow, Reason: "Content validation passed", Constraints: Constraints{}}
}
