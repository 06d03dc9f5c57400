package med

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	internalApp "github.com/felixgeelhaar/dosely/internal/app"
	"github.com/felixgeelhaar/dosely/internal/medications/application/queries"
	"github.com/felixgeelhaar/dosely/pkg/config"
)

// setupLocalModeTestApp wires the CLI to a fresh SQLite database.
func setupLocalModeTestApp(t *testing.T) *cli.App {
	t.Helper()

	cfg := &config.Config{
		AppEnv:                 "test",
		UserID:                 uuid.NewString(),
		Timezone:               "UTC",
		DatabaseDriver:         "sqlite",
		SQLitePath:             filepath.Join(t.TempDir(), "test.db"),
		HorizonMinFutureDays:   7,
		HorizonDays:            7,
		MissedGracePeriod:      2 * time.Hour,
		MaterializeConcurrency: 1,
		JobMaxAttempts:         1,
	}
	container, err := internalApp.NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)

	app := cli.NewApp(container)
	cli.SetApp(app)
	t.Cleanup(func() {
		cli.SetApp(nil)
		_ = container.Close()
	})
	return app
}

func run(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	require.NoError(t, cmd.RunE(cmd, args))
	return buf.String()
}

func resetFlags(t *testing.T) {
	t.Helper()
	addFlags = defaults()
	scheduleFlagSet = defaults()
	dosage, instructions, asNeeded, showArchived = "", "", false, false
}

func TestMedCommands_AddListScheduleArchive(t *testing.T) {
	app := setupLocalModeTestApp(t)
	resetFlags(t)
	ctx := context.Background()

	dosage = "500 mg"
	instructions = "with food"
	addFlags.times = "08:00,20:00"
	out := run(t, addCmd, "Metformin")
	assert.Contains(t, out, "Added medication: Metformin")
	assert.Contains(t, out, "Doses planned:")

	meds, err := app.ListMedicationsHandler.Handle(ctx, queries.ListMedicationsQuery{UserID: app.CurrentUserID})
	require.NoError(t, err)
	require.Len(t, meds, 1)
	id := meds[0].ID.String()
	assert.Equal(t, []string{"08:00", "20:00"}, meds[0].Reminders)

	out = run(t, listCmd)
	assert.Contains(t, out, "Metformin 500 mg")
	assert.Contains(t, out, "at 08:00, 20:00")
	assert.Contains(t, out, "with food")

	scheduleFlagSet.times = "09:00"
	out = run(t, scheduleCmd, id)
	assert.Contains(t, out, "Schedule updated")

	meds, err = app.ListMedicationsHandler.Handle(ctx, queries.ListMedicationsQuery{UserID: app.CurrentUserID})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, meds[0].Reminders)

	out = run(t, archiveCmd, id)
	assert.Contains(t, out, "Archived medication "+id)

	out = run(t, listCmd)
	assert.Contains(t, out, "No medications")

	showArchived = true
	out = run(t, listCmd)
	assert.Contains(t, out, "(archived)")
}

func TestMedCommands_AddAsNeeded(t *testing.T) {
	setupLocalModeTestApp(t)
	resetFlags(t)

	asNeeded = true
	out := run(t, addCmd, "Ibuprofen")
	assert.Contains(t, out, "Taken as needed")

	out = run(t, listCmd)
	assert.Contains(t, out, "as needed")
}

func TestMedCommands_InvalidID(t *testing.T) {
	setupLocalModeTestApp(t)
	resetFlags(t)

	archiveCmd.SetContext(context.Background())
	err := archiveCmd.RunE(archiveCmd, []string{"not-a-uuid"})
	assert.ErrorContains(t, err, "invalid medication ID")
}

func TestMedCommands_NoApp(t *testing.T) {
	cli.SetApp(nil)
	listCmd.SetContext(context.Background())
	err := listCmd.RunE(listCmd, nil)
	assert.ErrorIs(t, err, cli.ErrNoApp)
}
