package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/felixgeelhaar/dosely/internal/medications/infrastructure/calendar"
)

// ErrCalDAVDisabled is returned by publish when no server is configured.
var ErrCalDAVDisabled = errors.New("CalDAV is not configured; set CALDAV_URL")

var (
	exportDoses  bool
	exportDays   int
	exportOutput string
	publishDays  int
)

// Cmd is the calendar command group
var Cmd = &cobra.Command{
	Use:     "calendar",
	Aliases: []string{"cal"},
	Short:   "Export doses as iCalendar",
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an .ics file",
	Long: `Export the medication schedules as recurring events, or with --doses the
concrete planned doses of the next --days days.

Examples:
  dosely calendar export -o meds.ics
  dosely calendar export --doses --days 14 > doses.ics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		meds, err := app.MedicationRepo.FindByUserID(ctx, app.CurrentUserID, false)
		if err != nil {
			return fmt.Errorf("failed to load medications: %w", err)
		}

		cal := app.CalendarExporter.ExportSchedules(meds)
		if exportDoses {
			logs, err := upcomingLogs(ctx, app, exportDays)
			if err != nil {
				return err
			}
			if cal, err = app.CalendarExporter.ExportDoses(meds, logs); err != nil {
				return fmt.Errorf("failed to export doses: %w", err)
			}
		}

		var out io.Writer = cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		if err := calendar.Encode(out, cal); err != nil {
			return fmt.Errorf("failed to write calendar: %w", err)
		}
		if exportOutput != "" && exportOutput != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", exportOutput)
		}
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload upcoming doses to the CalDAV calendar",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}
		if app.CalendarPublisher == nil {
			return ErrCalDAVDisabled
		}
		ctx := cmd.Context()

		meds, err := app.MedicationRepo.FindByUserID(ctx, app.CurrentUserID, false)
		if err != nil {
			return fmt.Errorf("failed to load medications: %w", err)
		}
		logs, err := upcomingLogs(ctx, app, publishDays)
		if err != nil {
			return err
		}

		result, err := app.CalendarPublisher.Publish(ctx, meds, logs)
		if err != nil {
			return fmt.Errorf("failed to publish: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published %d doses (%d new, %d updated, %d failed)\n",
			result.Created+result.Updated, result.Created, result.Updated, result.Failed)
		return nil
	},
}

// upcomingLogs loads the user's doses from the start of today for days days.
func upcomingLogs(ctx context.Context, app *cli.App, days int) ([]*domain.DoseLog, error) {
	if days < 1 {
		return nil, fmt.Errorf("--days must be at least 1, got %d", days)
	}
	today := domain.DateOf(time.Now().In(app.Location))
	logs, err := app.DoseLogRepo.ListByUser(ctx, app.CurrentUserID,
		today.Start(app.Location), today.AddDays(days).Start(app.Location))
	if err != nil {
		return nil, fmt.Errorf("failed to load doses: %w", err)
	}
	return logs, nil
}

func init() {
	exportCmd.Flags().BoolVar(&exportDoses, "doses", false, "export planned doses instead of recurring schedules")
	exportCmd.Flags().IntVarP(&exportDays, "days", "d", 7, "days of doses to export")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	publishCmd.Flags().IntVarP(&publishDays, "days", "d", 7, "days of doses to publish")

	Cmd.AddCommand(exportCmd)
	Cmd.AddCommand(publishCmd)
}
