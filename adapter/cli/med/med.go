package med

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Cmd is the med command group
var Cmd = &cobra.Command{
	Use:     "med",
	Aliases: []string{"meds", "medication"},
	Short:   "Manage medications",
	Long:    `Add medications, change when you take them, and archive the ones you stopped.`,
}

func init() {
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(scheduleCmd)
	Cmd.AddCommand(archiveCmd)
}

func parseID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid medication ID %q: %w", arg, err)
	}
	return id, nil
}
