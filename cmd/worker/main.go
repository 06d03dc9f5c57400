package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/dosely/internal/app"
	"github.com/felixgeelhaar/dosely/internal/medications/application/workers"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/dosely/pkg/config"
	"github.com/felixgeelhaar/dosely/pkg/observability"
)

func main() {
	// Setup logger
	logger := observability.LoggerFromEnv()
	slog.SetDefault(logger)

	logger.Info("starting dosely worker")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	health := container.HealthRegistry()

	// Create event publisher
	var processor *outbox.Processor
	if cfg.OutboxProcessorEnabled {
		publisher, err := container.NewEventPublisher()
		if err != nil {
			logger.Error("failed to create event publisher", "error", err)
			os.Exit(1)
		}
		if rabbit, ok := publisher.(*eventbus.RabbitMQPublisher); ok {
			defer rabbit.Close()
			health.Register("rabbitmq", false, observability.PingCheck(rabbit))
		}
		logger.Info("event publisher initialized")

		processor = container.NewOutboxProcessor(publisher)
		processor.Start(ctx)
		defer processor.Stop()

		go runEvery(ctx, cfg.OutboxCleanupInterval, func() {
			cutoff := time.Now().AddDate(0, 0, -cfg.OutboxRetentionDays)
			deleted, err := container.OutboxRepo.DeleteOld(ctx, cutoff)
			if err != nil {
				logger.Error("outbox cleanup failed", "error", err)
				return
			}
			if deleted > 0 {
				logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
			}
		})

		go runEvery(ctx, cfg.OutboxStatsInterval, func() {
			stats := processor.GetStats()
			logger.Info("outbox stats",
				"running", stats.IsRunning,
				"published", stats.PublishedCount,
				"failed", stats.FailedCount,
				"dead", stats.DeadCount,
				"last_processed_at", stats.LastProcessedAt,
				"last_error_at", stats.LastErrorAt,
				"last_error", stats.LastError,
			)
		})
	} else {
		logger.Info("outbox processor disabled")
	}

	// Schedule the dose jobs
	scheduler, err := container.NewScheduler(container.NewJobRunner())
	if err != nil {
		logger.Error("failed to schedule jobs", "error", err)
		os.Exit(1)
	}
	scheduler.Start(ctx)
	for _, job := range scheduler.Jobs() {
		logger.Info("job scheduled", "job", job.Name, "next", job.Next)
	}

	if cfg.WorkerHealthAddr != "" {
		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           healthMux(processor, scheduler, health, container.Metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down worker")

	// A running job finishes before Stop returns.
	scheduler.Stop()
	logger.Info("worker stopped")
}

func healthMux(processor *outbox.Processor, scheduler *workers.Scheduler, health *observability.HealthRegistry, metrics *observability.InMemoryMetrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"status":  "ok",
			"jobs":    scheduler.Jobs(),
			"metrics": metrics.Snapshot(),
		}
		if processor != nil {
			stats := processor.GetStats()
			response["outbox"] = map[string]any{
				"running":           stats.IsRunning,
				"published":         stats.PublishedCount,
				"failed":            stats.FailedCount,
				"dead":              stats.DeadCount,
				"last_processed_at": stats.LastProcessedAt,
				"last_error_at":     stats.LastErrorAt,
				"last_error":        stats.LastError,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})
	mux.Handle("/readyz", health.Handler())
	return mux
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
