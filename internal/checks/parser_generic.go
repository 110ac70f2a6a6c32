package checks

import "fmt"

// GenericParser decides from the exit code alone and keeps the output tail.
type GenericParser struct{}

// maxOutputLen caps how much output the generic parser retains.
const maxOutputLen = 8000

func (p *GenericParser) Parse(output string, exitCode int) Report {
	if exitCode == 0 {
		return Report{Passed: true, Summary: "passed (exit code 0)"}
	}

	// Keep the tail; error summaries and tracebacks are usually at the end.
	tail := output
	if len(tail) > maxOutputLen {
		tail = "…(truncated)\n" + tail[len(tail)-maxOutputLen:]
	}
	return Report{
		Passed:   false,
		Failed:   1,
		Summary:  fmt.Sprintf("exit code %d, output=%d bytes", exitCode, len(output)),
		Failures: []Failure{{Test: "(run)", Error: tail}},
	}
}
