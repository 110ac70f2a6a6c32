package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucasnoah/gatekeeper/internal/labels"
)

const validPolicy = `
stages:
  triage:
    allowed_request_types: [bug, feature, investigate]
    scope_limits: ["analyze problem only"]
    output_format: "triage report"
    max_response_length: 500
  plan:
    allowed_request_types: [bug]
    source_policy: all_allowed
    required_artifacts: [triage_report]
  prioritize:
    allowed_request_types: [bug, feature]
    required_artifacts: [triage_report, implementation_plan]
  implement:
    allowed_request_types: [feature]
    source_policy: user_only
    required_artifacts: [human_approval]
change:
  max_files_changed: 5
  restricted_paths: ["deploy/"]
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	table, err := Load(writePolicy(t, validPolicy))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	triage, ok := table.Lookup("triage")
	if !ok {
		t.Fatal("triage missing")
	}
	if triage.SourcePolicy != SourceAllAllowed {
		t.Errorf("triage source policy = %q, want default %q", triage.SourcePolicy, SourceAllAllowed)
	}
	if triage.MaxResponseLength != 500 {
		t.Errorf("MaxResponseLength = %d, want 500", triage.MaxResponseLength)
	}

	impl, _ := table.Lookup("implement")
	if impl.SourcePolicy != SourceUserOnly {
		t.Errorf("implement source policy = %q", impl.SourcePolicy)
	}
	if impl.AllowsRequestType(labels.RequestBug) {
		t.Error("implement should not allow bug")
	}

	cp := table.Change()
	if cp.MaxFilesChanged != 5 || len(cp.RestrictedPaths) != 1 || cp.RestrictedPaths[0] != "deploy/" {
		t.Errorf("change policy = %+v", cp)
	}
}

func TestLoad_AppliesChangeDefaults(t *testing.T) {
	content := strings.SplitN(validPolicy, "change:", 2)[0]
	table, err := Load(writePolicy(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cp := table.Change()
	if cp.MaxFilesChanged != DefaultMaxFilesChanged {
		t.Errorf("MaxFilesChanged = %d, want %d", cp.MaxFilesChanged, DefaultMaxFilesChanged)
	}
	if len(cp.RestrictedPaths) != len(DefaultRestrictedPaths) {
		t.Errorf("RestrictedPaths = %v", cp.RestrictedPaths)
	}
}

func TestLoad_MissingStage(t *testing.T) {
	content := `
stages:
  triage:
    allowed_request_types: [bug]
`
	_, err := Load(writePolicy(t, content))
	var invalid *InvalidPolicyError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPolicyError, got %v", err)
	}
	fields := make(map[string]bool)
	for _, ve := range invalid.Errors {
		fields[ve.Field] = true
	}
	for _, want := range []string{"stages.plan", "stages.prioritize", "stages.implement"} {
		if !fields[want] {
			t.Errorf("missing validation error for %s, got %v", want, invalid.Errors)
		}
	}
	if invalid.Path == "" {
		t.Error("expected path on InvalidPolicyError")
	}
}

func TestValidate_BadValues(t *testing.T) {
	f := DefaultPolicy()
	c := f.Stages["plan"]
	c.AllowedRequestTypes = []labels.RequestType{"chore"}
	c.SourcePolicy = "anyone"
	c.MaxResponseLength = -1
	f.Stages["plan"] = c
	f.Stages["deploy"] = StageConstraints{AllowedRequestTypes: []labels.RequestType{labels.RequestBug}}

	errs := Validate(f)
	want := []string{
		"stages.deploy",
		"stages.plan.allowed_request_types[0]",
		"stages.plan.max_response_length",
		"stages.plan.source_policy",
	}
	if len(errs) != len(want) {
		t.Fatalf("got %d errors, want %d: %v", len(errs), len(want), errs)
	}
	for i, w := range want {
		if errs[i].Field != w {
			t.Errorf("errs[%d].Field = %q, want %q", i, errs[i].Field, w)
		}
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/policy.yaml"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writePolicy(t, "stages: [unclosed")); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	got := table.StageNames()
	want := []string{"triage", "plan", "prioritize", "implement"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("StageNames() = %v, want %v", got, want)
	}

	impl, _ := table.Lookup("implement")
	if len(impl.RequiredArtifacts) != 4 {
		t.Errorf("implement artifacts = %v", impl.RequiredArtifacts)
	}
	if impl.MaxResponseLength != 10000 {
		t.Errorf("implement max length = %d", impl.MaxResponseLength)
	}
	if _, ok := table.Lookup("blocked"); ok {
		t.Error("blocked should not be a gated stage")
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	table := DefaultTable()
	c, _ := table.Lookup("triage")
	c.ScopeLimits[0] = "mutated"
	again, _ := table.Lookup("triage")
	if again.ScopeLimits[0] == "mutated" {
		t.Error("Lookup leaked internal slice")
	}
}

func TestMissingArtifacts(t *testing.T) {
	c := StageConstraints{RequiredArtifacts: []string{"a", "b", "c"}}
	got := c.MissingArtifacts([]string{"c", "a", "extra"})
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("MissingArtifacts = %v, want [b]", got)
	}
	if got := c.MissingArtifacts([]string{"a", "b", "c"}); got != nil {
		t.Errorf("MissingArtifacts = %v, want nil", got)
	}
}

func TestSourcePolicyPermits(t *testing.T) {
	tests := []struct {
		policy SourcePolicy
		src    labels.Source
		want   bool
	}{
		{SourceAllAllowed, labels.SourceMonitor, true},
		{SourceUserOnly, labels.SourceUser, true},
		{SourceUserOnly, labels.SourceMonitor, false},
		{SourceMonitorRequiresReview, labels.SourceMonitor, false},
		{SourceMonitorRequiresReview, labels.SourceUser, true},
	}
	for _, tt := range tests {
		if got := tt.policy.Permits(tt.src); got != tt.want {
			t.Errorf("%s.Permits(%s) = %v, want %v", tt.policy, tt.src, got, tt.want)
		}
	}
}

func TestLoadDefault_Explicit(t *testing.T) {
	path := writePolicy(t, validPolicy)
	table, err := LoadDefault(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Change().MaxFilesChanged != 5 {
		t.Error("expected explicit policy to be loaded")
	}
}

func TestLoadSettings_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GITHUB_REPOSITORY", "acme/widgets")
	t.Setenv("GATEKEEPER_DB_DRIVER", "postgres")
	t.Setenv("GATEKEEPER_DB_URL", "postgres://localhost/gk")
	t.Setenv("GATEKEEPER_LLM_BACKEND", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	s, err := LoadSettings(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Repo != "acme/widgets" {
		t.Errorf("Repo = %q", s.Repo)
	}
	if s.DBDriver != "postgres" || s.DBURL != "postgres://localhost/gk" {
		t.Errorf("db = %q %q", s.DBDriver, s.DBURL)
	}
	if s.LLMBackend != "anthropic" || s.AnthropicAPIKey != "sk-test" {
		t.Errorf("llm = %q key=%q", s.LLMBackend, s.AnthropicAPIKey)
	}
	if s.LLMMaxTokens != 4096 {
		t.Errorf("LLMMaxTokens = %d, want default 4096", s.LLMMaxTokens)
	}
}

func TestLoadSettings_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GITHUB_REPOSITORY", "")
	t.Setenv("GATEKEEPER_REPO", "")
	content := "repo: acme/site\nllm:\n  backend: openai\n  model: gpt-4o-mini\n"
	if err := os.WriteFile(filepath.Join(dir, "gatekeeper.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Repo != "acme/site" || s.LLMBackend != "openai" || s.LLMModel != "gpt-4o-mini" {
		t.Errorf("settings = %+v", s)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GATEKEEPER_DB_DRIVER", "mongo")
	if _, err := LoadSettings(NewViper()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
