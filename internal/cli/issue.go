package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/gatekeeper/internal/labels"
	"github.com/lucasnoah/gatekeeper/internal/stage"
	"github.com/lucasnoah/gatekeeper/internal/workflow"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Create issues and move them through stages",
}

var issueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an issue in the triage stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		rt, _ := cmd.Flags().GetString("request-type")
		src, _ := cmd.Flags().GetString("source")
		severity, _ := cmd.Flags().GetString("severity")
		priority, _ := cmd.Flags().GetString("priority")
		traceID, _ := cmd.Flags().GetString("trace-id")

		requestType, err := labels.ParseRequestType(rt)
		if err != nil {
			return err
		}
		source, err := labels.ParseSource(src)
		if err != nil {
			return err
		}
		if traceID == "" {
			traceID = workflow.NewTraceID()
		}

		d, cleanup, err := newDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		number, err := d.manager.CreateIssueWithInitialState(stage.CreateRequest{
			Title:       title,
			Description: description,
			RequestType: requestType,
			Source:      source,
			TraceID:     traceID,
			Severity:    severity,
			Priority:    priority,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "issue=%d\ntrace_id=%s\n", number, traceID)
		return nil
	},
}

var issueTransitionCmd = &cobra.Command{
	Use:   "transition <issue> <stage>",
	Short: "Move an issue to a new stage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		to, err := labels.ParseStage(args[1])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		traceID, _ := cmd.Flags().GetString("trace-id")

		d, cleanup, err := newDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if traceID == "" {
			traceID = issueTraceID(d, number)
		}
		if err := d.manager.TransitionIssueState(number, to, reason, traceID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "issue #%d → %s\n", number, to)
		return nil
	},
}

var issuePriorityCmd = &cobra.Command{
	Use:   "priority <issue> <p0|p1|p2>",
	Short: "Set an issue's priority label",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		p, err := labels.ParsePriority(args[1])
		if err != nil {
			return err
		}
		traceID, _ := cmd.Flags().GetString("trace-id")

		d, cleanup, err := newDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if traceID == "" {
			traceID = issueTraceID(d, number)
		}
		if err := d.manager.AddPriorityLabel(number, p, traceID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "issue #%d priority %s\n", number, p)
		return nil
	},
}

var issueStageCmd = &cobra.Command{
	Use:   "stage <issue>",
	Short: "Print an issue's current stage and valid next stages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		d, cleanup, err := newDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		s, err := d.manager.GetIssueStage(number)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "stage=%s\n", s)
		next := stage.ValidTransitions(s)
		names := make([]string, len(next))
		for i, n := range next {
			names[i] = string(n)
		}
		fmt.Fprintf(w, "next=%s\n", joinOrNone(names))
		return nil
	},
}

// issueTraceID recovers the issue's trace id from its body, or generates one.
func issueTraceID(d *deps, number int) string {
	if iss, err := d.github.GetIssue(number); err == nil {
		if id, ok := workflow.TraceIDFromBody(iss.Body); ok {
			return id
		}
	}
	return workflow.NewTraceID()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ",")
}

func init() {
	f := issueCreateCmd.Flags()
	f.String("title", "", "Issue title")
	f.String("description", "", "Issue description")
	f.String("request-type", "", "Request type: bug, feature or investigate")
	f.String("source", string(labels.SourceUser), "Request source: user or monitor")
	f.String("severity", "", "Severity, recorded on bug reports")
	f.String("priority", "", "Requested priority, recorded on feature requests")
	f.String("trace-id", "", "Trace ID (generated when empty)")
	issueCreateCmd.MarkFlagRequired("title")
	issueCreateCmd.MarkFlagRequired("request-type")

	issueTransitionCmd.Flags().String("reason", "", "Reason recorded in the audit comment")
	issueTransitionCmd.Flags().String("trace-id", "", "Trace ID (read from the issue body when empty)")
	issueTransitionCmd.MarkFlagRequired("reason")

	issuePriorityCmd.Flags().String("trace-id", "", "Trace ID (read from the issue body when empty)")

	issueCmd.AddCommand(issueCreateCmd)
	issueCmd.AddCommand(issueTransitionCmd)
	issueCmd.AddCommand(issuePriorityCmd)
	issueCmd.AddCommand(issueStageCmd)
}
