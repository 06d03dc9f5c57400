package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/application/services"
	sharedApplication "github.com/felixgeelhaar/dosely/internal/shared/application"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/dosely/pkg/observability"
	"github.com/google/uuid"
)

// SweepMissedDosesCommand marks overdue pending doses as missed.
type SweepMissedDosesCommand struct {
	// Now defaults to the current time.
	Now time.Time
	// Grace overrides the handler's grace period when positive.
	Grace time.Duration
}

// SweepMissedDosesResult lists what the sweep changed.
type SweepMissedDosesResult struct {
	Cutoff  time.Time
	DoseIDs []uuid.UUID
	Lost    int
}

// SweepMissedDosesHandler handles the SweepMissedDosesCommand.
type SweepMissedDosesHandler struct {
	sweeper    *services.MissedDoseSweeper
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	grace      time.Duration
	metrics    observability.Metrics
	logger     *slog.Logger
}

// NewSweepMissedDosesHandler creates a new SweepMissedDosesHandler.
func NewSweepMissedDosesHandler(
	sweeper *services.MissedDoseSweeper,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	grace time.Duration,
	logger *slog.Logger,
) *SweepMissedDosesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepMissedDosesHandler{
		sweeper:    sweeper,
		outboxRepo: outboxRepo,
		uow:        uow,
		grace:      grace,
		metrics:    observability.NoopMetrics{},
		logger:     logger,
	}
}

// WithMetrics sets the metrics sink.
func (h *SweepMissedDosesHandler) WithMetrics(m observability.Metrics) *SweepMissedDosesHandler {
	h.metrics = m
	return h
}

// Handle runs the sweep and writes one missed event per transitioned dose,
// all in a single transaction.
func (h *SweepMissedDosesHandler) Handle(ctx context.Context, cmd SweepMissedDosesCommand) (result *SweepMissedDosesResult, err error) {
	timer := observability.StartTimer("sweep_missed_doses").WithLogger(h.logger).WithMetrics(h.metrics)
	defer func() { timer.StopWithError(err) }()

	now := cmd.Now
	if now.IsZero() {
		now = time.Now()
	}
	grace := h.grace
	if cmd.Grace > 0 {
		grace = cmd.Grace
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		swept, err := h.sweeper.Sweep(txCtx, now, grace)
		if err != nil {
			return err
		}

		result = &SweepMissedDosesResult{
			Cutoff:  swept.Cutoff,
			DoseIDs: make([]uuid.UUID, 0, len(swept.Missed)),
			Lost:    swept.Lost,
		}
		for _, dose := range swept.Missed {
			events := dose.DomainEvents()
			sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, dose.UserID()))
			if err := outbox.SaveEvents(txCtx, h.outboxRepo, events); err != nil {
				return err
			}
			result.DoseIDs = append(result.DoseIDs, dose.ID())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.metrics.Counter(observability.MetricDosesMissed, int64(len(result.DoseIDs)))
	return result, nil
}
