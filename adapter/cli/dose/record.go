package dose

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
)

var recordAt string

var takeCmd = &cobra.Command{
	Use:   "take [dose-id]",
	Short: "Mark a dose taken",
	Long: `Mark a planned dose taken. A dose already marked missed can still be
taken late.

Examples:
  dosely dose take 1b9d...
  dosely dose take 1b9d... --at 08:20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return record(cmd, args[0], commands.DoseActionTake)
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip [dose-id]",
	Short: "Mark a dose skipped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return record(cmd, args[0], commands.DoseActionSkip)
	},
}

func record(cmd *cobra.Command, arg string, action commands.DoseAction) error {
	app, err := cli.GetApp()
	if err != nil {
		return err
	}
	id, err := parseID("dose", arg)
	if err != nil {
		return err
	}
	at, err := cli.ParseAt(recordAt, time.Now(), app.Location)
	if err != nil {
		return err
	}

	result, err := app.RecordDoseHandler.Handle(cmd.Context(), commands.RecordDoseCommand{
		DoseID: id,
		UserID: app.CurrentUserID,
		Action: action,
		At:     at,
	})
	switch {
	case errors.Is(err, commands.ErrDoseChanged):
		return fmt.Errorf("dose %s changed while recording, list doses and try again", id)
	case errors.Is(err, domain.ErrDoseAlreadyTaken):
		return fmt.Errorf("dose %s was already taken", id)
	case err != nil:
		return fmt.Errorf("failed to record dose: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Dose %s: %s\n", result.DoseID, result.Status)
	if result.TakenAt != nil {
		fmt.Fprintf(out, "  Taken at: %s\n", result.TakenAt.In(app.Location).Format("2006-01-02 15:04"))
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{takeCmd, skipCmd} {
		c.Flags().StringVar(&recordAt, "at", "", "when, as HH:MM today, \"YYYY-MM-DD HH:MM\" or RFC 3339 (default now)")
	}
}
