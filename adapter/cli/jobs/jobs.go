package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
)

var (
	materializeAll bool
	sweepGrace     time.Duration
)

// Cmd is the jobs command group
var Cmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run background jobs once",
	Long: `Run the worker's jobs by hand. The worker runs them on a schedule; these
commands are for local mode and for catching up after downtime.`,
}

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Plan doses up to the horizon",
	Long: `Top up the planned doses of every medication that is running low.
Without --all only the current user's medications are considered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}

		command := commands.MaterializeLogsCommand{UserID: app.CurrentUserID}
		if materializeAll {
			command.UserID = uuid.Nil
		}
		result, err := app.MaterializeLogsHandler.Handle(cmd.Context(), command)
		if result == nil {
			return fmt.Errorf("materialization failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Medications: %d\n", result.Medications)
		fmt.Fprintf(out, "  Doses planned: %d\n", result.Inserted)
		fmt.Fprintf(out, "  Already covered: %d\n", result.Skipped)
		if result.Expired > 0 {
			fmt.Fprintf(out, "  Finished courses: %d\n", result.Expired)
		}
		if result.Failed > 0 {
			fmt.Fprintf(out, "  Failed: %d\n", result.Failed)
		}
		if err != nil {
			return fmt.Errorf("some medications failed: %w", err)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark overdue doses as missed",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}

		result, err := app.SweepMissedDosesHandler.Handle(cmd.Context(), commands.SweepMissedDosesCommand{Grace: sweepGrace})
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Marked %d doses missed (planned before %s)\n",
			len(result.DoseIDs), result.Cutoff.In(app.Location).Format("2006-01-02 15:04"))
		if result.Lost > 0 {
			fmt.Fprintf(out, "  %d doses changed while sweeping and were left alone\n", result.Lost)
		}
		return nil
	},
}

func init() {
	materializeCmd.Flags().BoolVar(&materializeAll, "all", false, "every user's medications")
	sweepCmd.Flags().DurationVar(&sweepGrace, "grace", 0, "override the grace period, e.g. 30m")

	Cmd.AddCommand(materializeCmd)
	Cmd.AddCommand(sweepCmd)
}
