package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/gatekeeper/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history <issue>",
	Short: "Show recorded decisions and transitions for an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		number, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		s, err := loadSettings()
		if err != nil {
			return err
		}
		if s.DBDriver == "none" {
			return fmt.Errorf("audit log is disabled (db.driver=none)")
		}
		store, cleanup, err := openAuditLog(ctx, s)
		if err != nil {
			return err
		}
		defer cleanup()

		decisions, err := store.DecisionHistory(ctx, number)
		if err != nil {
			return err
		}
		transitions, err := store.TransitionHistory(ctx, number)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if asJSON {
			data, err := json.MarshalIndent(struct {
				Decisions   []db.DecisionRecord   `json:"decisions"`
				Transitions []db.TransitionRecord `json:"transitions"`
			}{decisions, transitions}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(data))
			return nil
		}

		if len(decisions) == 0 && len(transitions) == 0 {
			fmt.Fprintf(w, "No history recorded for issue #%d.\n", number)
			return nil
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		if len(transitions) > 0 {
			fmt.Fprintln(tw, "TIME\tFROM\tTO\tTRACE\tREASON")
			for _, t := range transitions {
				from := t.FromStage
				if from == "" {
					from = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Timestamp, from, t.ToStage, t.TraceID, t.Reason)
			}
			fmt.Fprintln(tw)
		}
		if len(decisions) > 0 {
			fmt.Fprintln(tw, "TIME\tSTAGE\tDECISION\tTRACE\tREASON")
			for _, d := range decisions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Timestamp, d.Stage, d.Decision, d.TraceID, d.Reason)
			}
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().Bool("json", false, "Print history as JSON")
}
