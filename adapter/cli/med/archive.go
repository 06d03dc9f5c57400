package med

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
)

var archiveCmd = &cobra.Command{
	Use:   "archive [medication-id]",
	Short: "Stop a medication",
	Long:  `Archive a medication. Its pending future doses are dropped; history is kept.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		purged, err := app.ArchiveMedicationHandler.Handle(cmd.Context(), commands.ArchiveMedicationCommand{
			MedicationID: id,
			UserID:       app.CurrentUserID,
		})
		if err != nil {
			return fmt.Errorf("failed to archive medication: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Archived medication %s (%d pending doses dropped)\n", id, purged)
		return nil
	},
}
