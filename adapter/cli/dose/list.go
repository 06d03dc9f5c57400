package dose

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/application/queries"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
)

var (
	listMedication string
	listDays       int
	listPast       int
	listStatus     string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "agenda"},
	Short:   "Show the dose agenda",
	Long: `List doses from the start of today for --days days.

Examples:
  dosely dose list                      # today
  dosely dose list --days 7             # the coming week
  dosely dose list --past 7 --status missed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}

		query := queries.ListDosesQuery{UserID: app.CurrentUserID}
		if listMedication != "" {
			if query.MedicationID, err = parseID("medication", listMedication); err != nil {
				return err
			}
		}
		for _, s := range cli.SplitList(listStatus) {
			status, err := domain.ParseDoseStatus(s)
			if err != nil {
				return err
			}
			query.Statuses = append(query.Statuses, status)
		}
		today := domain.DateOf(time.Now().In(app.Location))
		query.From = today.AddDays(-listPast).Start(app.Location)
		query.To = today.AddDays(listDays).Start(app.Location)

		doses, err := app.ListDosesHandler.Handle(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("failed to list doses: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(doses) == 0 {
			fmt.Fprintln(out, "No doses in this period.")
			return nil
		}
		printDoses(out, doses, app.Location)
		return nil
	},
}

func printDoses(out io.Writer, doses []queries.DoseDTO, loc *time.Location) {
	var day string
	for _, d := range doses {
		planned := d.PlannedAt.In(loc)
		if label := planned.Format("Mon 2006-01-02"); label != day {
			day = label
			fmt.Fprintln(out, day)
		}
		name := strings.TrimSpace(d.MedicationName + " " + d.Dosage)
		line := fmt.Sprintf("  %s  %-8s  %s  %s", planned.Format("15:04"), d.Status, name, d.ID)
		if d.TakenAt != nil && d.Status != domain.StatusUnscheduled.String() {
			line += "  taken " + d.TakenAt.In(loc).Format("15:04")
		}
		fmt.Fprintln(out, line)
	}
}

func init() {
	listCmd.Flags().StringVarP(&listMedication, "med", "m", "", "only this medication ID")
	listCmd.Flags().IntVarP(&listDays, "days", "d", 1, "days ahead, counting today")
	listCmd.Flags().IntVar(&listPast, "past", 0, "days back before today")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status: pending,taken,skipped,missed,unscheduled")
}
