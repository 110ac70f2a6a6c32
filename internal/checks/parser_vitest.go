package checks

import (
	"encoding/json"
	"fmt"
)

// VitestParser parses vitest/jest JSON reporter output.
type VitestParser struct{}

type vitestOutput struct {
	NumTotalTests   int                 `json:"numTotalTests"`
	NumPassedTests  int                 `json:"numPassedTests"`
	NumFailedTests  int                 `json:"numFailedTests"`
	NumPendingTests int                 `json:"numPendingTests"`
	TestResults     []vitestSuiteResult `json:"testResults"`
}

type vitestSuiteResult struct {
	Name             string                  `json:"name"`
	Status           string                  `json:"status"` // "passed" or "failed"
	AssertionResults []vitestAssertionResult `json:"assertionResults"`
}

type vitestAssertionResult struct {
	FullName        string   `json:"fullName"`
	Status          string   `json:"status"` // "passed", "failed"
	FailureMessages []string `json:"failureMessages"`
}

func (p *VitestParser) Parse(output string, exitCode int) Report {
	var raw vitestOutput
	if err := json.Unmarshal([]byte(output), &raw); err != nil {
		return Report{
			Passed:  false,
			Total:   -1,
			Failed:  -1,
			Summary: fmt.Sprintf("exit code %d (could not parse test JSON)", exitCode),
		}
	}

	r := Report{
		Total:     raw.NumTotalTests,
		Succeeded: raw.NumPassedTests,
		Failed:    raw.NumFailedTests,
		Skipped:   raw.NumPendingTests,
	}

	for _, suite := range raw.TestResults {
		for _, a := range suite.AssertionResults {
			if a.Status == "failed" {
				errMsg := ""
				if len(a.FailureMessages) > 0 {
					errMsg = a.FailureMessages[0]
				}
				r.Failures = append(r.Failures, Failure{
					Suite: suite.Name,
					Test:  a.FullName,
					Error: errMsg,
				})
			}
		}
	}

	r.Passed = exitCode == 0 && r.Failed == 0
	r.Summary = summarize(r)
	return r
}
