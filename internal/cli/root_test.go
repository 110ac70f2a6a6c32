package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lucasnoah/gatekeeper/internal/db"
	"github.com/lucasnoah/gatekeeper/internal/policy"
)

// resetFlags restores every flag to its default so values do not leak
// between executions of the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCommand(args ...string) (string, error) {
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"policy", "issue", "workflow", "labels", "templates",
		"history", "config", "db", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	groups := map[string][]string{
		"policy":    {"evaluate-stage", "evaluate-change", "table"},
		"issue":     {"create", "transition", "priority", "stage"},
		"workflow":  {"run"},
		"labels":    {"setup", "list"},
		"templates": {"install", "validate", "show"},
		"db":        {"migrate", "reset"},
		"config":    {"validate", "show"},
	}
	for group, subs := range groups {
		for _, sub := range subs {
			out, err := executeCommand(group, sub, "--help")
			if err != nil {
				t.Errorf("%s %s --help failed: %v", group, sub, err)
			}
			if out == "" {
				t.Errorf("%s %s --help produced no output", group, sub)
			}
		}
	}
}

func TestPolicyEvaluateStage_Allow(t *testing.T) {
	promptFile := filepath.Join(t.TempDir(), "prompt.txt")
	out, err := executeCommand("policy", "evaluate-stage",
		"--db-driver", "none",
		"--stage", "triage",
		"--request-type", "bug",
		"--source", "user",
		"--severity", "high",
		"--trace-id", "trace-cli-1",
		"--content", "CSV export fails for large reports",
		"--prompt-file", promptFile,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	for _, want := range []string{"decision=allow", "trace_id=trace-cli-1", "constructed_prompt_file=" + promptFile} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	data, err := os.ReadFile(promptFile)
	if err != nil {
		t.Fatalf("read prompt: %v", err)
	}
	if !strings.Contains(string(data), "trace-cli-1") || !strings.Contains(string(data), "CSV export fails") {
		t.Errorf("prompt = %s", data)
	}
}

func TestPolicyEvaluateStage_BlockExitsNonZero(t *testing.T) {
	out, err := executeCommand("policy", "evaluate-stage",
		"--db-driver", "none",
		"--stage", "triage",
		"--severity", "low",
		"--content", "short",
	)
	var de *DecisionError
	if !errors.As(err, &de) || de.Decision != policy.Block {
		t.Fatalf("expected block DecisionError, got %v", err)
	}
	if !strings.Contains(out, "decision=block") || strings.Contains(out, "constructed_prompt_file") {
		t.Errorf("output = %s", out)
	}
}

func TestPolicyEvaluateStage_JSON(t *testing.T) {
	out, err := executeCommand("policy", "evaluate-stage",
		"--db-driver", "none",
		"--stage", "plan",
		"--request-type", "feature",
		"--artifact", "triage_report",
		"--content", "Add dark mode to the settings page",
		"--output", "json",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"decision": "allow"`) || !strings.Contains(out, `"constructed_prompt"`) {
		t.Errorf("output = %s", out)
	}
}

func TestPolicyEvaluateStage_MonitorNeedsReview(t *testing.T) {
	out, err := executeCommand("policy", "evaluate-stage",
		"--db-driver", "none",
		"--stage", "implement",
		"--source", "monitor",
		"--content", "Error rate spike in checkout service",
	)
	var de *DecisionError
	if !errors.As(err, &de) || de.Decision != policy.ReviewRequired {
		t.Fatalf("expected review_required, got %v", err)
	}
	if !strings.Contains(out, "decision=review_required") {
		t.Errorf("output = %s", out)
	}
}

func TestPolicyEvaluateStage_RequiresInput(t *testing.T) {
	if _, err := executeCommand("policy", "evaluate-stage", "--stage", "triage"); err == nil {
		t.Error("expected error without content or issue")
	}
	if _, err := executeCommand("policy", "evaluate-stage", "--content", "some content here"); err == nil {
		t.Error("expected error without stage")
	}
	if _, err := executeCommand("policy", "evaluate-stage", "--stage", "triage", "--content", "some content here", "--add-comment"); err == nil {
		t.Error("expected error for --add-comment without --issue-id")
	}
}

func TestPolicyEvaluateChange(t *testing.T) {
	out, err := executeCommand("policy", "evaluate-change",
		"--changed-file", "internal/api/handler.go",
		"--changed-file", "internal/api/handler_test.go",
		"--trace-id", "trace-chg",
		"--additions", "40",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "decision=allow") || !strings.Contains(out, "trace_id=trace-chg") {
		t.Errorf("output = %s", out)
	}

	out, err = executeCommand("policy", "evaluate-change", "go.mod")
	var de *DecisionError
	if !errors.As(err, &de) || de.Decision != policy.ReviewRequired {
		t.Fatalf("expected review_required for go.mod, got %v\n%s", err, out)
	}

	_, err = executeCommand("policy", "evaluate-change", "--changed-file", "a.go", "--all-passed=false")
	if !errors.As(err, &de) || de.Decision != policy.Block {
		t.Fatalf("expected block for failing tests, got %v", err)
	}

	if _, err := executeCommand("policy", "evaluate-change"); err == nil || errors.As(err, &de) {
		t.Errorf("expected usage error without files, got %v", err)
	}
}

func TestPolicyEvaluateChange_CommaInPath(t *testing.T) {
	out, err := executeCommand("policy", "evaluate-change",
		"--changed-file", "docs/notes,go.mod",
		"--output", "json",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"files_changed": 1`) {
		t.Errorf("expected a single changed file: %s", out)
	}
}

func TestPolicyEvaluateChange_TestReport(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "go-test.json")
	stream := `{"Action":"pass","Package":"p","Test":"TestA"}
{"Action":"fail","Package":"p","Test":"TestB"}
{"Action":"fail","Package":"p"}
`
	if err := os.WriteFile(report, []byte(stream), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand("policy", "evaluate-change",
		"--changed-file", "internal/api/handler.go",
		"--test-report", report,
		"--test-exit-code", "1",
	)
	var de *DecisionError
	if !errors.As(err, &de) || de.Decision != policy.Block {
		t.Fatalf("expected block from failing report, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 passed, 1 failed") {
		t.Errorf("expected report summary in output: %s", out)
	}

	if _, err := executeCommand("policy", "evaluate-change",
		"--changed-file", "a.go",
		"--test-report", report,
		"--test-format", "junit",
	); err == nil || errors.As(err, &de) {
		t.Errorf("expected format error, got %v", err)
	}
}

func TestPolicyTable(t *testing.T) {
	out, err := executeCommand("policy", "table")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"STAGE", "triage", "implement", "user_only", "change policy: max 20 files"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand("policy", "table", "--yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "stages:") || !strings.Contains(out, "triage:") {
		t.Errorf("yaml = %s", out)
	}
}

func TestLabelsList(t *testing.T) {
	out, err := executeCommand("labels", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "stage:awaiting-deploy-approval") || !strings.Contains(out, "priority:p0") {
		t.Errorf("output = %s", out)
	}

	out, err = executeCommand("labels", "list", "--yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "agent:claude") || !strings.Contains(out, "color: ") {
		t.Errorf("yaml = %s", out)
	}
}

func TestTemplatesInstallAndValidate(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCommand("templates", "install", dir)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if strings.Count(out, "wrote ") != 4 {
		t.Errorf("output = %s", out)
	}

	out, err = executeCommand("templates", "install", dir)
	if err != nil || !strings.Contains(out, "already present") {
		t.Errorf("second install = %q, %v", out, err)
	}

	out, err = executeCommand("templates", "validate", "--template-dir", dir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "implement: 7 placeholders ok") {
		t.Errorf("output = %s", out)
	}

	if err := os.WriteFile(filepath.Join(dir, "plan.txt"), []byte("no placeholders"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := executeCommand("templates", "validate", "--template-dir", dir); err == nil {
		t.Error("expected error for broken template")
	}
}

func TestHistoryAndDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	out, err := executeCommand("db", "migrate", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "Schema up to date") {
		t.Errorf("output = %s", out)
	}

	out, err = executeCommand("history", "4", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No history recorded for issue #4") {
		t.Errorf("output = %s", out)
	}

	ctx := context.Background()
	d, err := db.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.RecordTransition(ctx, db.TransitionRecord{Issue: 4, FromStage: "triage", ToStage: "plan", Reason: "Triage workflow completed successfully", TraceID: "trace-h", Timestamp: "2025-06-01T12:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	if err := d.RecordDecision(ctx, db.DecisionRecord{Issue: 4, Stage: "triage", TraceID: "trace-h", Decision: "allow", Reason: "All policy checks passed for triage stage", Timestamp: "2025-06-01T11:59:00Z"}); err != nil {
		t.Fatal(err)
	}
	d.Close()

	out, err = executeCommand("history", "4", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"triage", "plan", "trace-h", "allow"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand("history", "4", "--db-path", dbPath, "--json")
	if err != nil || !strings.Contains(out, `"transitions"`) {
		t.Errorf("json history = %q, %v", out, err)
	}

	if _, err := executeCommand("db", "reset", "--db-path", dbPath); err == nil {
		t.Error("expected reset to require --force")
	}
	if _, err := executeCommand("db", "reset", "--db-path", dbPath, "--force"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	out, _ = executeCommand("history", "4", "--db-path", dbPath)
	if !strings.Contains(out, "No history recorded") {
		t.Errorf("history after reset = %s", out)
	}
}

func TestHistoryDisabled(t *testing.T) {
	if _, err := executeCommand("history", "4", "--db-driver", "none"); err == nil {
		t.Error("expected error when the audit log is disabled")
	}
}

func TestInvalidIssueArgs(t *testing.T) {
	cases := [][]string{
		{"issue", "transition", "abc", "plan", "--reason", "x"},
		{"issue", "priority", "0", "p1"},
		{"issue", "stage", "-3"},
		{"workflow", "run", "5", "bogus"},
		{"history", "x"},
	}
	for _, args := range cases {
		if _, err := executeCommand(args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-secret")
	out, err := executeCommand("config", "show")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "sk-secret") {
		t.Error("secret leaked into config show output")
	}
	if !strings.Contains(out, "anthropic_api_key_set: true") {
		t.Errorf("output = %s", out)
	}
}
