package checks

import (
	"strings"
	"testing"
)

const goTestStream = `{"Action":"run","Package":"example.com/export","Test":"TestWriteRows"}
{"Action":"output","Package":"example.com/export","Test":"TestWriteRows","Output":"=== RUN   TestWriteRows\n"}
{"Action":"pass","Package":"example.com/export","Test":"TestWriteRows","Elapsed":0.01}
{"Action":"run","Package":"example.com/export","Test":"TestStream"}
{"Action":"output","Package":"example.com/export","Test":"TestStream","Output":"    csv_test.go:40: got 9999 rows, want 10000\n"}
{"Action":"fail","Package":"example.com/export","Test":"TestStream","Elapsed":0.02}
{"Action":"skip","Package":"example.com/export","Test":"TestLarge","Elapsed":0}
{"Action":"fail","Package":"example.com/export","Elapsed":0.05}
`

func TestGoTestParser_Failures(t *testing.T) {
	r := (&GoTestParser{}).Parse(goTestStream, 1)
	if r.Passed {
		t.Error("expected passed=false")
	}
	if r.Total != 3 || r.Succeeded != 1 || r.Failed != 1 || r.Skipped != 1 {
		t.Errorf("counts = %+v", r)
	}
	if len(r.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(r.Failures))
	}
	f := r.Failures[0]
	if f.Suite != "example.com/export" || f.Test != "TestStream" {
		t.Errorf("failure = %+v", f)
	}
	if !strings.Contains(f.Error, "want 10000") {
		t.Errorf("error = %q", f.Error)
	}
	if r.Summary != "1 passed, 1 failed, 1 skipped out of 3" {
		t.Errorf("summary = %q", r.Summary)
	}
}

func TestGoTestParser_AllPass(t *testing.T) {
	in := `{"Action":"pass","Package":"p","Test":"TestA"}
{"Action":"pass","Package":"p","Test":"TestB"}
{"Action":"pass","Package":"p"}`
	r := (&GoTestParser{}).Parse(in, 0)
	if !r.Passed || r.Succeeded != 2 {
		t.Errorf("report = %+v", r)
	}
	tr := r.TestResults()
	if !tr.AllPassed || tr.Passed != 2 || tr.Failed != 0 {
		t.Errorf("TestResults = %+v", tr)
	}
}

func TestGoTestParser_PackageBuildFailure(t *testing.T) {
	in := "# example.com/export\n./csv.go:3: undefined: Row\n" +
		`{"Action":"fail","Package":"example.com/export"}`
	r := (&GoTestParser{}).Parse(in, 1)
	if r.Passed {
		t.Error("expected passed=false")
	}
	if !strings.HasSuffix(r.Summary, "(package failed)") {
		t.Errorf("summary = %q", r.Summary)
	}
}

func TestGoTestParser_NoEvents(t *testing.T) {
	r := (&GoTestParser{}).Parse("ok  \texample.com/export\t0.01s", 0)
	if r.Passed || r.Total != -1 {
		t.Errorf("report = %+v", r)
	}
}

func TestVitestParser_AllPass(t *testing.T) {
	input := `{
		"numTotalTests": 10,
		"numPassedTests": 10,
		"numFailedTests": 0,
		"numPendingTests": 0,
		"testResults": []
	}`
	r := (&VitestParser{}).Parse(input, 0)
	if !r.Passed {
		t.Error("expected passed=true")
	}
	if r.Summary != "10 passed, 0 failed, 0 skipped out of 10" {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
}

func TestVitestParser_Failures(t *testing.T) {
	input := `{
		"numTotalTests": 5,
		"numPassedTests": 3,
		"numFailedTests": 2,
		"numPendingTests": 0,
		"testResults": [{
			"name": "auth.test.ts",
			"status": "failed",
			"assertionResults": [
				{"fullName": "should reject expired tokens", "status": "failed", "failureMessages": ["Expected 401, received 200"]},
				{"fullName": "should accept valid tokens", "status": "passed", "failureMessages": []}
			]
		}]
	}`
	r := (&VitestParser{}).Parse(input, 1)
	if r.Passed {
		t.Error("expected passed=false")
	}
	if r.Failed != 2 {
		t.Errorf("expected 2 failed, got %d", r.Failed)
	}
	if len(r.Failures) != 1 {
		t.Fatalf("expected 1 failure detail, got %d", len(r.Failures))
	}
	if r.Failures[0].Test != "should reject expired tokens" {
		t.Errorf("expected test name, got %q", r.Failures[0].Test)
	}
	if r.Failures[0].Error != "Expected 401, received 200" {
		t.Errorf("expected error message, got %q", r.Failures[0].Error)
	}
	tr := r.TestResults()
	if tr.AllPassed || tr.Passed != 3 || tr.Failed != 2 {
		t.Errorf("TestResults = %+v", tr)
	}
}

func TestVitestParser_InvalidJSON(t *testing.T) {
	r := (&VitestParser{}).Parse("not json", 1)
	if r.Passed {
		t.Error("expected passed=false")
	}
}

func TestGenericParser_Pass(t *testing.T) {
	r := (&GenericParser{}).Parse("output text", 0)
	if !r.Passed {
		t.Error("expected passed=true")
	}
	if r.Summary != "passed (exit code 0)" {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
}

func TestGenericParser_Fail(t *testing.T) {
	long := strings.Repeat("x", maxOutputLen+10)
	r := (&GenericParser{}).Parse(long, 2)
	if r.Passed || r.Failed != 1 {
		t.Errorf("report = %+v", r)
	}
	if !strings.HasPrefix(r.Failures[0].Error, "…(truncated)") {
		t.Error("expected truncated output")
	}
	if r.TestResults().AllPassed {
		t.Error("AllPassed should be false")
	}
}

func TestParserFor(t *testing.T) {
	for _, f := range []string{FormatGoJSON, FormatVitest, FormatJest, FormatExitCode} {
		if _, err := ParserFor(f); err != nil {
			t.Errorf("ParserFor(%q): %v", f, err)
		}
	}
	if _, err := ParserFor("junit"); err == nil {
		t.Error("expected error for unknown format")
	}
	if got := strings.Join(Formats(), ","); got != "exit-code,go-json,jest,vitest" {
		t.Errorf("Formats() = %q", got)
	}
}
