package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/gatekeeper/internal/config"
	"github.com/lucasnoah/gatekeeper/internal/db"
	"github.com/lucasnoah/gatekeeper/internal/events"
	"github.com/lucasnoah/gatekeeper/internal/github"
	"github.com/lucasnoah/gatekeeper/internal/llm"
	"github.com/lucasnoah/gatekeeper/internal/policy"
	"github.com/lucasnoah/gatekeeper/internal/prompt"
	"github.com/lucasnoah/gatekeeper/internal/stage"
	"github.com/lucasnoah/gatekeeper/internal/workflow"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var settingsViper = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "gatekeeper: policy gate and stage machine for agent-driven issues",
	Long: `gatekeeper decides whether automated LLM work on a GitHub issue may proceed,
builds the constrained prompt for the issue's stage, and moves issues through
the stage lifecycle using labels as the only persistent state.

Every decision and transition is posted to the issue as an audit comment and,
when configured, recorded in a local SQLite or Postgres audit log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// DecisionError is returned by commands whose policy decision is not allow,
// so the process exits non-zero.
type DecisionError struct {
	Decision policy.Decision
	Reason   string
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("policy decision %s: %s", e.Decision, e.Reason)
}

func decisionErr(d policy.PolicyDecision) error {
	if d.Allowed() {
		return nil
	}
	return &DecisionError{Decision: d.Decision, Reason: d.Reason}
}

// loadSettings resolves flags, environment and config file.
func loadSettings() (*config.Settings, error) {
	return config.LoadSettings(settingsViper)
}

// newGate loads the constraint table and templates and builds the gate.
func newGate(s *config.Settings) (*policy.Gate, error) {
	table, err := config.LoadDefault(s.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	templates, err := prompt.LoadDir(s.TemplateDir)
	if err != nil {
		return nil, err
	}
	gate, err := policy.NewGate(table, templates)
	if err != nil {
		return nil, err
	}
	gate.SetProgress(os.Stderr)
	return gate, nil
}

func newGitHubClient(s *config.Settings) *github.Client {
	c := github.NewClient(&github.ExecRunner{Token: s.GitHubToken})
	c.SetRepo(s.Repo)
	c.SetProgress(os.Stderr)
	return c
}

// openAuditLog opens the configured audit log. It returns a nil store when
// the driver is "none".
func openAuditLog(ctx context.Context, s *config.Settings) (db.Store, func(), error) {
	if s.DBDriver == "none" {
		return nil, func() {}, nil
	}
	dsn := s.DBPath
	if s.DBDriver == db.DriverPostgres {
		dsn = s.DBURL
	}
	store, err := db.OpenStore(ctx, s.DBDriver, dsn)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

// deps is the wired set of collaborators for commands that touch issues.
type deps struct {
	settings  *config.Settings
	github    *github.Client
	manager   *stage.Manager
	store     db.Store
	publisher events.Publisher
}

// newDeps wires the GitHub client, state manager, audit log and publisher.
func newDeps(ctx context.Context) (*deps, func(), error) {
	s, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openAuditLog(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	pub, err := events.Open(s.RedisURL)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	gh := newGitHubClient(s)
	mgr := stage.NewManager(gh)
	mgr.SetProgress(os.Stderr)
	if store != nil {
		mgr.AddObserver(workflow.AuditObserver(ctx, store))
	}
	mgr.AddObserver(events.TransitionObserver(ctx, pub))

	cleanup := func() {
		pub.Close()
		closeStore()
	}
	return &deps{settings: s, github: gh, manager: mgr, store: store, publisher: pub}, cleanup, nil
}

// recordDecision writes a decision to the audit log and publisher, logging
// failures without failing the command.
func (d *deps) recordDecision(ctx context.Context, issue int, stageName, traceID string, pd policy.PolicyDecision) {
	if d.store != nil {
		rec, err := workflow.NewDecisionRecord(issue, stageName, traceID, pd)
		if err == nil {
			err = d.store.RecordDecision(ctx, rec)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "  → audit log: %v\n", err)
		}
	}
	ev := events.DecisionEvent{Issue: issue, Stage: stageName, TraceID: traceID, Decision: pd}
	if err := d.publisher.PublishDecision(ctx, ev); err != nil {
		fmt.Fprintf(os.Stderr, "  → publish decision: %v\n", err)
	}
}

func newInvoker(s *config.Settings) (llm.Invoker, error) {
	key := ""
	switch s.LLMBackend {
	case llm.BackendAnthropic:
		key = s.AnthropicAPIKey
	case llm.BackendOpenAI:
		key = s.OpenAIAPIKey
	}
	return llm.New(llm.Options{
		Backend:   s.LLMBackend,
		Model:     s.LLMModel,
		MaxTokens: s.LLMMaxTokens,
		APIKey:    key,
	})
}

// parseIssue parses a positive issue number argument.
func parseIssue(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid issue number %q: must be a positive integer", arg)
	}
	return n, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("repo", "", "GitHub repository (owner/name); defaults to the current gh repo")
	pf.String("policy-file", "", "stage constraint table YAML (default ./gatekeeper.policy.yaml or builtin)")
	pf.String("template-dir", "", "directory of <stage>.txt prompt templates (default builtin)")
	pf.String("db-driver", "", "audit log driver: sqlite, postgres or none")
	pf.String("db-path", "", "SQLite audit log path (default ~/.gatekeeper/gatekeeper.db)")
	pf.String("db-url", "", "Postgres audit log URL")
	pf.String("redis-url", "", "Redis URL for event streams (disabled when empty)")
	pf.String("llm-backend", "", "LLM backend: claude-cli, anthropic or openai")
	pf.String("llm-model", "", "LLM model name")

	for key, flag := range map[string]string{
		"repo":         "repo",
		"policy_file":  "policy-file",
		"template_dir": "template-dir",
		"db.driver":    "db-driver",
		"db.path":      "db-path",
		"db.url":       "db-url",
		"redis.url":    "redis-url",
		"llm.backend":  "llm-backend",
		"llm.model":    "llm-model",
	} {
		_ = settingsViper.BindPFlag(key, pf.Lookup(flag))
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
