package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	cliCalendar "github.com/felixgeelhaar/dosely/adapter/cli/calendar"
	"github.com/felixgeelhaar/dosely/adapter/cli/dose"
	"github.com/felixgeelhaar/dosely/adapter/cli/jobs"
	"github.com/felixgeelhaar/dosely/adapter/cli/med"
	"github.com/felixgeelhaar/dosely/internal/app"
	"github.com/felixgeelhaar/dosely/pkg/config"
	"github.com/felixgeelhaar/dosely/pkg/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logger
	logger := observability.LoggerFromEnv()
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	// Create context with cancellation on shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	// Without a container, commands that need the database return ErrNoApp.
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Warn("failed to initialize container", "error", err)
	} else {
		defer func() {
			if err := container.Close(); err != nil {
				logger.Warn("failed to close container", "error", err)
			}
		}()
		cli.SetApp(cli.NewApp(container))
	}

	// Register commands
	cli.AddCommand(med.Cmd)
	cli.AddCommand(dose.Cmd)
	cli.AddCommand(jobs.Cmd)
	cli.AddCommand(cliCalendar.Cmd)

	// cobra prints the error
	if err := cli.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
