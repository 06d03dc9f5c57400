package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
)

var eventsPattern string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Deliver queued events locally",
	Long: `Drain the outbox through an in-process bus and print each event. Use it in
local mode, where no worker forwards events to RabbitMQ. Delivered events
are marked published.

Examples:
  dosely jobs events
  dosely jobs events --pattern "medications.dose.*"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.GetApp()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		bus := eventbus.NewInProcessBus(cli.Logger())
		bus.Subscribe(eventsPattern, func(_ context.Context, routingKey string, payload []byte) error {
			return printEvent(out, routingKey, payload)
		})

		processor := outbox.NewProcessor(app.OutboxRepo, bus, outbox.DefaultProcessorConfig(), cli.Logger())
		total := 0
		for {
			n, err := processor.ProcessOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to drain outbox: %w", err)
			}
			if n == 0 {
				break
			}
			total += n
		}

		fmt.Fprintf(out, "Delivered %d events\n", total)
		return nil
	},
}

func printEvent(out io.Writer, routingKey string, payload []byte) error {
	var body struct {
		MedicationID string `json:"medication_id"`
		DoseID       string `json:"dose_id"`
	}
	_ = json.Unmarshal(payload, &body)

	line := "  " + routingKey
	if body.MedicationID != "" {
		line += "  medication " + body.MedicationID
	}
	if body.DoseID != "" {
		line += "  dose " + body.DoseID
	}
	_, err := fmt.Fprintln(out, line)
	return err
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsPattern, "pattern", "p", "#", "only print events whose routing key matches")
	Cmd.AddCommand(eventsCmd)
}
