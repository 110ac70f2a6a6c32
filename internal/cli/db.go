package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/gatekeeper/internal/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Audit log database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		if s.DBDriver == "none" {
			return fmt.Errorf("audit log is disabled (db.driver=none)")
		}
		_, cleanup, err := openAuditLog(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer cleanup()
		fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s).\n", s.DBDriver)
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate the SQLite audit log (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to reset without --force")
		}
		s, err := loadSettings()
		if err != nil {
			return err
		}
		if s.DBDriver != db.DriverSQLite {
			return fmt.Errorf("reset is only supported for the sqlite driver")
		}
		store, cleanup, err := openAuditLog(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := store.(*db.DB).Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Audit log reset.")
		return nil
	},
}

func init() {
	dbResetCmd.Flags().Bool("force", false, "Confirm the reset")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
