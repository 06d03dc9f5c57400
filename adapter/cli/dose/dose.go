package dose

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Cmd is the dose command group
var Cmd = &cobra.Command{
	Use:     "dose",
	Aliases: []string{"doses"},
	Short:   "Review and record doses",
	Long:    `Show the dose agenda, mark doses taken or skipped, and log as-needed doses.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(takeCmd)
	Cmd.AddCommand(skipCmd)
	Cmd.AddCommand(prnCmd)
	Cmd.AddCommand(adherenceCmd)
}

func parseID(kind, arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s ID %q: %w", kind, arg, err)
	}
	return id, nil
}
