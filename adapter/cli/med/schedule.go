package med

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
)

var scheduleFlagSet scheduleFlags

var scheduleCmd = &cobra.Command{
	Use:   "schedule [medication-id]",
	Short: "Replace a medication's schedule and reminders",
	Long: `Replace when a medication is taken. Pending future doses are dropped
and planned again from the new schedule; doses already taken, skipped or
missed are kept.

Takes the same schedule and reminder flags as "dosely med add".

Examples:
  dosely med schedule 6f1c... --times 09:00
  dosely med schedule 6f1c... --every 2 --start 2024-03-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		plan, err := scheduleFlagSet.build(time.Now(), app.Location)
		if err != nil {
			return err
		}

		result, err := app.ChangeScheduleHandler.Handle(cmd.Context(), commands.ChangeScheduleCommand{
			MedicationID: id,
			UserID:       app.CurrentUserID,
			StartDate:    plan.Start,
			Duration:     plan.Duration,
			Recurrence:   plan.Recurrence,
			Reminders:    plan.Reminders,
		})
		if err != nil {
			return fmt.Errorf("failed to change schedule: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Schedule updated")
		fmt.Fprintf(out, "  Doses dropped: %d\n", result.DosesPurged)
		fmt.Fprintf(out, "  Doses planned: %d\n", result.DosesPlanned)
		if result.DosesKept > 0 {
			fmt.Fprintf(out, "  Already recorded: %d\n", result.DosesKept)
		}
		return nil
	},
}

func init() {
	scheduleFlagSet.register(scheduleCmd)
}
