package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lucasnoah/gatekeeper/internal/labels"
)

const triageResponse = `Here is my analysis.

- Problem Summary: Export to CSV returns a 500 error
for reports with more than 10k rows.
- Suspected Cause: The export loads every row into memory.
- Clarifying Questions: Which browsers?
- Recommendation: proceed to planning`

func TestParseSections_Triage(t *testing.T) {
	got, err := ValidateStageResponse(labels.StageTriage, triageResponse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Export to CSV returns a 500 error\nfor reports with more than 10k rows."
	if got["problem_summary"] != want {
		t.Errorf("problem_summary = %q, want %q", got["problem_summary"], want)
	}
	if got["recommendation"] != "proceed to planning" {
		t.Errorf("recommendation = %q", got["recommendation"])
	}
	if _, ok := got["here_is_my_analysis."]; ok {
		t.Error("preamble should be ignored")
	}
}

func TestParseSections_MarkdownHeaders(t *testing.T) {
	content := "**Problem Summary**: a\n## Suspected Cause: b\nClarifying Questions:\nnone\n- **Recommendation**: block, needs repro"
	got, err := ValidateStageResponse(labels.StageTriage, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["problem_summary"] != "a" || got["suspected_cause"] != "b" || got["clarifying_questions"] != "none" {
		t.Errorf("parsed = %v", got)
	}
}

func TestParseSections_Missing(t *testing.T) {
	content := "Problem Summary: x\nRecommendation: proceed\nSuspected Cause:\n"
	_, err := ValidateStageResponse(labels.StageTriage, content)
	var re *ResponseError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResponseError, got %v", err)
	}
	if strings.Join(re.Missing, ",") != "Suspected Cause,Clarifying Questions" {
		t.Errorf("Missing = %v", re.Missing)
	}
}

func TestValidate_TriageRecommendation(t *testing.T) {
	content := strings.Replace(triageResponse, "proceed to planning", "unsure", 1)
	if _, err := ValidateStageResponse(labels.StageTriage, content); err == nil {
		t.Fatal("expected error for recommendation without proceed/block")
	}
}

func TestValidate_Plan(t *testing.T) {
	content := `Proposed Approach: stream rows
Affected Files: internal/export/csv.go
Acceptance Criteria: 100k rows export
Unit Test Plan: table test for the writer
Risks and Considerations: memory
Effort Estimate: small`
	if _, err := ValidateStageResponse(labels.StagePlan, content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	short := strings.Replace(content, "internal/export/csv.go", "csv.go", 1)
	if _, err := ValidateStageResponse(labels.StagePlan, short); err == nil {
		t.Error("expected error for vague affected files")
	}
}

func TestValidate_Prioritize(t *testing.T) {
	content := `Expected User Value: high
Implementation Effort: low
Risk Assessment: low
Priority Recommendation: P1 - ship next sprint
Justification: blocks finance`
	got, err := ValidateStageResponse(labels.StagePrioritize, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := ExtractPriority(got["priority_recommendation"])
	if !ok || p != labels.PriorityP1 {
		t.Errorf("ExtractPriority = %q, %v", p, ok)
	}

	bad := strings.Replace(content, "P1", "soon", 1)
	if _, err := ValidateStageResponse(labels.StagePrioritize, bad); err == nil {
		t.Error("expected error without p0/p1/p2")
	}
}

func TestValidate_Implement(t *testing.T) {
	code := "Here is the change to internal/export/csv.go:\n\n```go\nfunc WriteRows(w io.Writer, rows []Row) error {\n\treturn nil\n}\n```\n"
	if _, err := ValidateStageResponse(labels.StageImplement, code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ValidateStageResponse(labels.StageImplement, "too short"); err == nil {
		t.Error("expected error for short response")
	}
	prose := strings.Repeat("I would change the exporter to stream. ", 5)
	if _, err := ValidateStageResponse(labels.StageImplement, prose); err == nil {
		t.Error("expected error for response without code")
	}
}

func TestValidate_UnknownStage(t *testing.T) {
	if _, err := ValidateStageResponse(labels.StageDone, "x"); err == nil {
		t.Error("expected error")
	}
}

func TestExtractPriority(t *testing.T) {
	tests := []struct {
		in   string
		want labels.Priority
		ok   bool
	}{
		{"p0", labels.PriorityP0, true},
		{"Recommend P2 given effort", labels.PriorityP2, true},
		{"p3", "", false},
		{"top1", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractPriority(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractPriority(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestNew(t *testing.T) {
	inv, err := New(Options{Backend: BackendClaudeCLI, Model: "sonnet"})
	if err != nil {
		t.Fatal(err)
	}
	if c, ok := inv.(*ClaudeCLI); !ok || c.Model != "sonnet" {
		t.Errorf("invoker = %#v", inv)
	}

	if _, err := New(Options{Backend: BackendAnthropic}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := New(Options{Backend: BackendOpenAI}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := New(Options{Backend: "llama"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	a, err := New(Options{Backend: BackendAnthropic, APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	if a.(*Anthropic).model != defaultAnthropicModel {
		t.Errorf("model = %q", a.(*Anthropic).model)
	}
}

func TestInvokerFunc(t *testing.T) {
	var inv Invoker = InvokerFunc(func(ctx context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	out, err := inv.Invoke(context.Background(), "hi")
	if err != nil || out != "echo: hi" {
		t.Errorf("Invoke = %q, %v", out, err)
	}
}
