package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/gatekeeper/internal/labels"
	"github.com/lucasnoah/gatekeeper/internal/prompt"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and customize prompt templates",
}

var templatesInstallCmd = &cobra.Command{
	Use:   "install <dir>",
	Short: "Write the builtin templates to a directory for editing",
	Long: `Writes <stage>.txt for every gate stage into dir. Existing files are left
untouched. Point --template-dir at the directory to use the edited copies.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		written, err := prompt.InstallBuiltin(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(written) == 0 {
			fmt.Fprintln(w, "All templates already present.")
			return nil
		}
		for _, p := range written {
			fmt.Fprintf(w, "wrote %s\n", p)
		}
		return nil
	},
}

var templatesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and check the configured templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		store, err := prompt.LoadDir(s.TemplateDir)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, st := range labels.GateStages() {
			tmpl, _ := store.Template(st)
			fmt.Fprintf(w, "%s: %d placeholders ok\n", st, len(prompt.Placeholders(tmpl)))
		}
		return nil
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <stage>",
	Short: "Print the template for a stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := labels.ParseStage(args[0])
		if err != nil {
			return err
		}
		s, err := loadSettings()
		if err != nil {
			return err
		}
		store, err := prompt.LoadDir(s.TemplateDir)
		if err != nil {
			return err
		}
		tmpl, ok := store.Template(st)
		if !ok {
			return fmt.Errorf("no template for stage %s", st)
		}
		fmt.Fprint(cmd.OutOrStdout(), tmpl)
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesInstallCmd)
	templatesCmd.AddCommand(templatesValidateCmd)
	templatesCmd.AddCommand(templatesShowCmd)
}
