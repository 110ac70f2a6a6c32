package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/gatekeeper/internal/checks"
	"github.com/lucasnoah/gatekeeper/internal/config"
	"github.com/lucasnoah/gatekeeper/internal/labels"
	"github.com/lucasnoah/gatekeeper/internal/policy"
	"github.com/lucasnoah/gatekeeper/internal/prompt"
	"github.com/lucasnoah/gatekeeper/internal/workflow"
)

// Output formats.
const (
	outputGitHubActions = "github-actions"
	outputJSON          = "json"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Evaluate policy decisions and inspect the constraint table",
}

var policyEvaluateStageCmd = &cobra.Command{
	Use:   "evaluate-stage",
	Short: "Decide whether LLM work may proceed at a stage",
	Long: `Evaluates a stage context against the constraint table and prints the decision.

The context comes from flags when --content or --content-file is given;
otherwise it is extracted from issue --issue-id (labels, body and comments).
Exits non-zero unless the decision is allow.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		issue, _ := cmd.Flags().GetInt("issue-id")
		stageName, _ := cmd.Flags().GetString("stage")
		output, _ := cmd.Flags().GetString("output")
		addComment, _ := cmd.Flags().GetBool("add-comment")
		promptFile, _ := cmd.Flags().GetString("prompt-file")

		if stageName == "" {
			return fmt.Errorf("--stage is required")
		}
		fromFlags := cmd.Flags().Changed("content") || cmd.Flags().Changed("content-file")
		if !fromFlags && issue <= 0 {
			return fmt.Errorf("either --content/--content-file or --issue-id is required")
		}
		if addComment && issue <= 0 {
			return fmt.Errorf("--add-comment requires --issue-id")
		}

		s, err := loadSettings()
		if err != nil {
			return err
		}
		gate, err := newGate(s)
		if err != nil {
			return err
		}

		var sc policy.StageContext
		var d *deps
		if issue > 0 {
			var cleanup func()
			d, cleanup, err = newDeps(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
		}

		if fromFlags {
			sc, err = stageContextFromFlags(cmd, stageName)
			if err != nil {
				return err
			}
		} else {
			iss, err := d.github.GetIssue(issue)
			if err != nil {
				return fmt.Errorf("fetch issue #%d: %w", issue, err)
			}
			comments, err := d.github.ListComments(issue)
			if err != nil {
				return fmt.Errorf("fetch comments for issue #%d: %w", issue, err)
			}
			sc = workflow.ExtractStageContext(iss, comments, labels.Stage(stageName))
		}

		decision := gate.EvaluateStageTransition(sc)

		if d != nil {
			d.recordDecision(ctx, issue, stageName, sc.TraceID, decision)
			if addComment {
				if err := d.github.AddComment(issue, policy.FormatDecisionComment(stageName, sc.TraceID, decision)); err != nil {
					return fmt.Errorf("post decision on issue #%d: %w", issue, err)
				}
			}
		}

		if err := writeDecision(cmd.OutOrStdout(), output, sc.TraceID, decision, promptFile); err != nil {
			return err
		}
		return decisionErr(decision)
	},
}

// stageContextFromFlags builds a stage context from evaluate-stage flags.
func stageContextFromFlags(cmd *cobra.Command, stageName string) (policy.StageContext, error) {
	issue, _ := cmd.Flags().GetInt("issue-id")
	requestType, _ := cmd.Flags().GetString("request-type")
	source, _ := cmd.Flags().GetString("source")
	priority, _ := cmd.Flags().GetString("priority")
	severity, _ := cmd.Flags().GetString("severity")
	artifacts, _ := cmd.Flags().GetStringSlice("artifact")
	traceID, _ := cmd.Flags().GetString("trace-id")
	content, _ := cmd.Flags().GetString("content")
	contentFile, _ := cmd.Flags().GetString("content-file")

	if contentFile != "" {
		data, err := os.ReadFile(contentFile)
		if err != nil {
			return policy.StageContext{}, fmt.Errorf("read content file: %w", err)
		}
		content = string(data)
	}
	if traceID == "" {
		traceID = workflow.NewTraceID()
	}
	sc := policy.StageContext{
		CurrentStage:      stageName,
		RequestType:       labels.RequestType(requestType),
		Source:            labels.Source(source),
		Priority:          priority,
		Severity:          severity,
		TraceID:           traceID,
		IssueContent:      content,
		WorkflowArtifacts: artifacts,
	}
	if issue > 0 {
		sc.IssueID = fmt.Sprint(issue)
	}
	return sc, nil
}

var policyEvaluateChangeCmd = &cobra.Command{
	Use:   "evaluate-change",
	Short: "Decide whether an implementation change set may proceed",
	Long: `Evaluates changed files, CI status and test results against the change policy.
Exits non-zero unless the decision is allow.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		files, _ := cmd.Flags().GetStringArray("changed-file")
		ciStatus, _ := cmd.Flags().GetString("ci-status")
		traceID, _ := cmd.Flags().GetString("trace-id")
		output, _ := cmd.Flags().GetString("output")
		issue, _ := cmd.Flags().GetInt("issue-id")
		additions, _ := cmd.Flags().GetInt("additions")
		deletions, _ := cmd.Flags().GetInt("deletions")

		files = append(files, args...)
		if len(files) == 0 {
			return fmt.Errorf("at least one --changed-file is required")
		}
		if traceID == "" {
			traceID = workflow.NewTraceID()
		}

		s, err := loadSettings()
		if err != nil {
			return err
		}
		table, err := config.LoadDefault(s.PolicyFile)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}

		cc := policy.ChangeContext{ChangedFiles: files, CIStatus: ciStatus, TraceID: traceID}
		if cmd.Flags().Changed("additions") || cmd.Flags().Changed("deletions") {
			cc.DiffStats = map[string]int{"additions": additions, "deletions": deletions}
		}
		if cmd.Flags().Changed("all-passed") {
			allPassed, _ := cmd.Flags().GetBool("all-passed")
			passed, _ := cmd.Flags().GetInt("tests-passed")
			failed, _ := cmd.Flags().GetInt("tests-failed")
			cc.TestResults = &policy.TestResults{AllPassed: allPassed, Passed: passed, Failed: failed}
		}
		if reportFile, _ := cmd.Flags().GetString("test-report"); reportFile != "" {
			report, err := parseTestReport(cmd, reportFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "  → tests: %s\n", report.Summary)
			cc.TestResults = report.TestResults()
		}

		eval := policy.NewChangeEvaluator(table.Change())
		eval.SetProgress(os.Stderr)
		decision := eval.EvaluateImplementationChanges(cc)

		if issue > 0 {
			d, cleanup, err := newDeps(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			d.recordDecision(ctx, issue, "change", traceID, decision)
		}

		if err := writeDecision(cmd.OutOrStdout(), output, traceID, decision, ""); err != nil {
			return err
		}
		return decisionErr(decision)
	},
}

// parseTestReport reads a CI test report and normalizes it with the parser
// for --test-format.
func parseTestReport(cmd *cobra.Command, path string) (checks.Report, error) {
	format, _ := cmd.Flags().GetString("test-format")
	exitCode, _ := cmd.Flags().GetInt("test-exit-code")

	p, err := checks.ParserFor(format)
	if err != nil {
		return checks.Report{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return checks.Report{}, fmt.Errorf("read test report: %w", err)
	}
	return p.Parse(string(data), exitCode), nil
}

// writeDecision prints a decision as JSON or as GitHub Actions key=value
// lines. In github-actions mode an allowed prompt is written to promptFile.
func writeDecision(w io.Writer, output, traceID string, d policy.PolicyDecision, promptFile string) error {
	switch output {
	case outputJSON:
		out, err := d.JSON()
		if err != nil {
			return fmt.Errorf("encode decision: %w", err)
		}
		fmt.Fprintln(w, out)
	case outputGitHubActions, "":
		fmt.Fprintf(w, "decision=%s\n", d.Decision)
		fmt.Fprintf(w, "reason=%s\n", d.Reason)
		fmt.Fprintf(w, "trace_id=%s\n", traceID)
		if d.ConstructedPrompt != "" && promptFile != "" {
			if err := prompt.WriteAtomic(promptFile, []byte(d.ConstructedPrompt)); err != nil {
				return fmt.Errorf("write prompt file: %w", err)
			}
			fmt.Fprintf(w, "constructed_prompt_file=%s\n", promptFile)
		}
	default:
		return fmt.Errorf("unknown output format %q (valid: github-actions, json)", output)
	}
	return nil
}

var policyTableCmd = &cobra.Command{
	Use:   "table",
	Short: "Show the resolved stage constraint table",
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")

		s, err := loadSettings()
		if err != nil {
			return err
		}
		table, err := config.LoadDefault(s.PolicyFile)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}

		w := cmd.OutOrStdout()
		if asYAML {
			data, err := yaml.Marshal(table.File())
			if err != nil {
				return fmt.Errorf("marshalling policy: %w", err)
			}
			fmt.Fprint(w, string(data))
			return nil
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STAGE\tREQUEST TYPES\tSOURCE POLICY\tMAX LENGTH\tREQUIRED ARTIFACTS")
		for _, name := range table.StageNames() {
			c, _ := table.Lookup(name)
			types := make([]string, len(c.AllowedRequestTypes))
			for i, rt := range c.AllowedRequestTypes {
				types[i] = string(rt)
			}
			artifacts := "-"
			if len(c.RequiredArtifacts) > 0 {
				artifacts = strings.Join(c.RequiredArtifacts, ",")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", name, strings.Join(types, ","), c.SourcePolicy, c.MaxResponseLength, artifacts)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		cp := table.Change()
		fmt.Fprintf(w, "\nchange policy: max %d files; restricted: %s\n", cp.MaxFilesChanged, strings.Join(cp.RestrictedPaths, ", "))
		return nil
	},
}

func init() {
	f := policyEvaluateStageCmd.Flags()
	f.Int("issue-id", 0, "Issue number (extracts context from the issue unless --content is given)")
	f.String("stage", "", "Stage to evaluate: triage, plan, prioritize or implement")
	f.String("request-type", string(labels.RequestBug), "Request type: bug, feature or investigate")
	f.String("source", string(labels.SourceUser), "Request source: user or monitor")
	f.String("priority", "", "Priority (p0, p1, p2)")
	f.String("severity", "", "Severity (critical, high, medium, low)")
	f.StringSlice("artifact", nil, "Completed workflow artifact (repeatable)")
	f.String("trace-id", "", "Trace ID (generated when empty)")
	f.String("content", "", "Issue content")
	f.String("content-file", "", "Read issue content from a file")
	f.String("output", outputGitHubActions, "Output format: github-actions or json")
	f.String("prompt-file", "policy_prompt.txt", "Where github-actions output writes an allowed prompt")
	f.Bool("add-comment", false, "Post the decision as a comment on the issue")

	f = policyEvaluateChangeCmd.Flags()
	f.StringArray("changed-file", nil, "Changed file path (repeatable; positional args also accepted)")
	f.String("ci-status", policy.CISuccess, "CI status: success, failure or pending")
	f.Bool("all-passed", true, "Whether all tests passed (omit when no test run was reported)")
	f.Int("tests-passed", 0, "Number of passing tests")
	f.Int("tests-failed", 0, "Number of failing tests")
	f.String("test-report", "", "Test runner output to derive test results from (overrides --all-passed)")
	f.String("test-format", checks.FormatGoJSON, "Test report format: "+strings.Join(checks.Formats(), ", "))
	f.Int("test-exit-code", 0, "Exit code of the test run that produced --test-report")
	f.Int("additions", 0, "Lines added")
	f.Int("deletions", 0, "Lines deleted")
	f.String("trace-id", "", "Trace ID (generated when empty)")
	f.Int("issue-id", 0, "Issue number to record the decision against")
	f.String("output", outputGitHubActions, "Output format: github-actions or json")

	policyTableCmd.Flags().Bool("yaml", false, "Print the table as policy YAML")

	policyCmd.AddCommand(policyEvaluateStageCmd)
	policyCmd.AddCommand(policyEvaluateChangeCmd)
	policyCmd.AddCommand(policyTableCmd)
}
