package checks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// GoTestParser parses the event stream written by `go test -json`.
type GoTestParser struct{}

type goTestEvent struct {
	Action  string `json:"Action"`
	Package string `json:"Package"`
	Test    string `json:"Test"`
	Output  string `json:"Output"`
}

// maxFailureOutput caps the output kept per failing test.
const maxFailureOutput = 2000

func (p *GoTestParser) Parse(output string, exitCode int) Report {
	var r Report
	events := 0
	packageFailed := false
	outputs := make(map[string]*strings.Builder)

	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var ev goTestEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		events++

		if ev.Test == "" {
			if ev.Action == "fail" {
				packageFailed = true
			}
			continue
		}
		key := ev.Package + "\x00" + ev.Test
		switch ev.Action {
		case "output":
			b, ok := outputs[key]
			if !ok {
				b = &strings.Builder{}
				outputs[key] = b
			}
			if b.Len() < maxFailureOutput {
				b.WriteString(ev.Output)
			}
		case "pass":
			r.Total++
			r.Succeeded++
		case "skip":
			r.Total++
			r.Skipped++
		case "fail":
			r.Total++
			r.Failed++
			msg := ""
			if b, ok := outputs[key]; ok {
				msg = strings.TrimSpace(b.String())
			}
			r.Failures = append(r.Failures, Failure{Suite: ev.Package, Test: ev.Test, Error: msg})
		}
	}

	if events == 0 {
		return Report{
			Passed:  false,
			Total:   -1,
			Failed:  -1,
			Summary: fmt.Sprintf("exit code %d (no go test events)", exitCode),
		}
	}

	r.Passed = exitCode == 0 && r.Failed == 0 && !packageFailed
	r.Summary = summarize(r)
	if packageFailed && r.Failed == 0 {
		r.Summary += " (package failed)"
	}
	return r
}
