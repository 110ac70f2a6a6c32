package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/gatekeeper/internal/labels"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Manage the repository's workflow labels",
}

var labelsSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create or update every workflow label in the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := newDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if err := d.manager.EnsureRepositoryLabels(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ensured %d labels.\n", len(labels.Catalog()))
		return nil
	},
}

var labelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workflow labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")
		w := cmd.OutOrStdout()
		if asYAML {
			data, err := yaml.Marshal(labels.Catalog())
			if err != nil {
				return fmt.Errorf("marshalling labels: %w", err)
			}
			fmt.Fprint(w, string(data))
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCOLOR\tDESCRIPTION")
		for _, def := range labels.Catalog() {
			fmt.Fprintf(tw, "%s\t#%s\t%s\n", def.Name, def.Color, def.Description)
		}
		return tw.Flush()
	},
}

func init() {
	labelsListCmd.Flags().Bool("yaml", false, "Print labels as YAML")
	labelsCmd.AddCommand(labelsSetupCmd)
	labelsCmd.AddCommand(labelsListCmd)
}
