package checks

import (
	"fmt"
	"sort"

	"github.com/lucasnoah/gatekeeper/internal/policy"
)

// Failure is one failing test.
type Failure struct {
	Suite string `json:"suite"`
	Test  string `json:"test"`
	Error string `json:"error"`
}

// Report is the normalized outcome of a CI test run.
type Report struct {
	Passed    bool      `json:"passed"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Summary   string    `json:"summary"`
	Failures  []Failure `json:"failures,omitempty"`
}

// TestResults converts the report into change evaluator input.
func (r Report) TestResults() *policy.TestResults {
	return &policy.TestResults{AllPassed: r.Passed, Passed: r.Succeeded, Failed: r.Failed}
}

// Parser converts raw test runner output into a Report.
type Parser interface {
	Parse(output string, exitCode int) Report
}

// Report formats.
const (
	FormatGoJSON   = "go-json"
	FormatVitest   = "vitest"
	FormatJest     = "jest"
	FormatExitCode = "exit-code"
)

var parsers = map[string]Parser{
	FormatGoJSON:   &GoTestParser{},
	FormatVitest:   &VitestParser{},
	FormatJest:     &VitestParser{},
	FormatExitCode: &GenericParser{},
}

// Formats returns the supported report formats, sorted.
func Formats() []string {
	out := make([]string, 0, len(parsers))
	for f := range parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ParserFor returns the parser for a report format.
func ParserFor(format string) (Parser, error) {
	p, ok := parsers[format]
	if !ok {
		return nil, fmt.Errorf("unknown test report format %q (valid: %v)", format, Formats())
	}
	return p, nil
}

func summarize(r Report) string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped out of %d", r.Succeeded, r.Failed, r.Skipped, r.Total)
}
