package med

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
)

var (
	addFlags     scheduleFlags
	dosage       string
	instructions string
	asNeeded     bool
)

var addCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a medication",
	Long: `Add a medication and plan its first week of doses.

Schedules:
  (default)        every day
  --weekdays LIST  only on the listed days
  --every N        every N days from the start
  --days N         stop after N days

Reminders:
  --times LIST                    clock times, default 08:00
  --hourly 4h --from --until      every interval inside a window
  --no-reminders                  keep the schedule, plan nothing

Examples:
  dosely med add Metformin --dosage "500 mg" --times 08:00,20:00
  dosely med add Amoxicillin --dosage "250 mg" --days 7 --times 08:00,14:00,20:00
  dosely med add "Vitamin D" --weekdays mon,thu
  dosely med add Ibuprofen --dosage "200 mg" --as-needed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}

		createCmd := commands.CreateMedicationCommand{
			UserID:       app.CurrentUserID,
			Name:         args[0],
			Dosage:       dosage,
			Instructions: instructions,
			AsNeeded:     asNeeded,
		}
		if !asNeeded {
			plan, err := addFlags.build(time.Now(), app.Location)
			if err != nil {
				return err
			}
			createCmd.StartDate = plan.Start
			createCmd.Duration = plan.Duration
			createCmd.Recurrence = plan.Recurrence
			createCmd.Reminders = plan.Reminders
		}

		result, err := app.CreateMedicationHandler.Handle(cmd.Context(), createCmd)
		if err != nil {
			return fmt.Errorf("failed to add medication: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Added medication: %s\n", args[0])
		fmt.Fprintf(out, "  ID: %s\n", result.MedicationID)
		if asNeeded {
			fmt.Fprintln(out, "  Taken as needed; log doses with: dosely dose prn", result.MedicationID)
			return nil
		}
		fmt.Fprintf(out, "  Doses planned: %d\n", result.DosesPlanned)
		return nil
	},
}

func init() {
	addFlags.register(addCmd)
	addCmd.Flags().StringVarP(&dosage, "dosage", "d", "", "dose strength, e.g. \"500 mg\"")
	addCmd.Flags().StringVarP(&instructions, "instructions", "i", "", "free text such as \"with food\"")
	addCmd.Flags().BoolVar(&asNeeded, "as-needed", false, "no schedule; log each dose when taken")
}
