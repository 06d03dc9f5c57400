package dose

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
)

var prnAt string

var prnCmd = &cobra.Command{
	Use:   "prn [medication-id]",
	Short: "Log an as-needed dose",
	Long: `Record a dose of an as-needed medication.

Examples:
  dosely dose prn 3a7e...
  dosely dose prn 3a7e... --at 13:45`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}
		medID, err := parseID("medication", args[0])
		if err != nil {
			return err
		}
		takenAt, err := cli.ParseAt(prnAt, time.Now(), app.Location)
		if err != nil {
			return err
		}

		doseID, err := app.LogAsNeededDoseHandler.Handle(cmd.Context(), commands.LogAsNeededDoseCommand{
			MedicationID: medID,
			UserID:       app.CurrentUserID,
			TakenAt:      takenAt,
		})
		if err != nil {
			return fmt.Errorf("failed to log dose: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Logged dose %s at %s\n", doseID, takenAt.In(app.Location).Format("2006-01-02 15:04"))
		return nil
	},
}

func init() {
	prnCmd.Flags().StringVar(&prnAt, "at", "", "when it was taken (default now)")
}
