package med

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/application/queries"
)

var showArchived bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List medications",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}

		meds, err := app.ListMedicationsHandler.Handle(cmd.Context(), queries.ListMedicationsQuery{
			UserID:          app.CurrentUserID,
			IncludeArchived: showArchived,
		})
		if err != nil {
			return fmt.Errorf("failed to list medications: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(meds) == 0 {
			fmt.Fprintln(out, "No medications. Add one with: dosely med add NAME")
			return nil
		}

		for _, m := range meds {
			name := strings.TrimSpace(m.Name + " " + m.Dosage)
			if m.IsArchived {
				name += " (archived)"
			}
			fmt.Fprintf(out, "%s  %s\n", m.ID, name)
			switch {
			case m.AsNeeded:
				fmt.Fprintln(out, "    as needed")
			case m.Schedule != "":
				fmt.Fprintf(out, "    %s from %s", m.Schedule, m.StartDate)
				if m.EndDate != "" {
					fmt.Fprintf(out, " to %s", m.EndDate)
				}
				fmt.Fprintln(out)
			}
			if len(m.Reminders) > 0 {
				fmt.Fprintf(out, "    at %s\n", strings.Join(m.Reminders, ", "))
			} else if !m.AsNeeded {
				fmt.Fprintln(out, "    reminders off")
			}
			if m.Instructions != "" {
				fmt.Fprintf(out, "    %s\n", m.Instructions)
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVarP(&showArchived, "archived", "a", false, "include archived medications")
}
