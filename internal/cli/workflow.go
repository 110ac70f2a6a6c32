package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/gatekeeper/internal/labels"
	"github.com/lucasnoah/gatekeeper/internal/workflow"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Run automated stage workflows",
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <issue> <stage>",
	Short: "Run the gate and LLM for an issue's current stage and advance it",
	Long: `Runs one stage for an issue that is currently at that stage: evaluates the
policy gate, invokes the configured LLM with the constrained prompt, posts the
validated output and moves the issue to the next stage. A block moves the
issue to blocked; review_required leaves it in place. Exits non-zero unless
the decision is allow.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		number, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		s, err := labels.ParseStage(args[1])
		if err != nil {
			return err
		}

		d, cleanup, err := newDeps(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		gate, err := newGate(d.settings)
		if err != nil {
			return err
		}
		invoker, err := newInvoker(d.settings)
		if err != nil {
			return err
		}

		runner := workflow.NewRunner(d.github, gate, d.manager, invoker)
		if d.store != nil {
			runner.SetAuditLog(d.store)
		}
		runner.SetPublisher(d.publisher)
		runner.SetRunURL(workflow.RunURL(os.Getenv("GITHUB_SERVER_URL"), os.Getenv("GITHUB_REPOSITORY"), os.Getenv("GITHUB_RUN_ID")))
		runner.SetProgress(os.Stderr)

		res, err := runner.RunStage(ctx, number, s)
		if res != nil {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "decision=%s\n", res.Decision.Decision)
			fmt.Fprintf(w, "reason=%s\n", res.Decision.Reason)
			fmt.Fprintf(w, "trace_id=%s\n", res.TraceID)
			if res.Priority != "" {
				fmt.Fprintf(w, "priority=%s\n", res.Priority)
			}
			if res.NextStage != "" {
				fmt.Fprintf(w, "next_stage=%s\n", res.NextStage)
			}
		}
		if err != nil {
			return err
		}
		return decisionErr(res.Decision)
	},
}

func init() {
	workflowCmd.AddCommand(workflowRunCmd)
}
