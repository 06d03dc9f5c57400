package dose

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/application/queries"
)

var adherenceDays int

var adherenceCmd = &cobra.Command{
	Use:   "adherence [medication-id]",
	Short: "Show how many planned doses were taken",
	Long: `Summarize the last --days days of a medication. The rate is taken doses
over taken, skipped and missed ones; pending doses are not counted yet.`,
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

		report, err := app.GetAdherenceHandler.Handle(cmd.Context(), queries.GetAdherenceQuery{
			MedicationID: medID,
			UserID:       app.CurrentUserID,
			Days:         adherenceDays,
		})
		if err != nil {
			return fmt.Errorf("failed to compute adherence: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s, last %d days\n", report.Name, adherenceDays)
		fmt.Fprintf(out, "  Taken:   %d\n", report.Taken)
		fmt.Fprintf(out, "  Skipped: %d\n", report.Skipped)
		fmt.Fprintf(out, "  Missed:  %d\n", report.Missed)
		fmt.Fprintf(out, "  Pending: %d\n", report.Pending)
		if report.Unscheduled > 0 {
			fmt.Fprintf(out, "  As needed: %d\n", report.Unscheduled)
		}
		fmt.Fprintf(out, "  Adherence: %.0f%%\n", report.Rate)
		return nil
	},
}

func init() {
	adherenceCmd.Flags().IntVarP(&adherenceDays, "days", "d", 30, "period length in days")
}
