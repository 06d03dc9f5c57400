package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/application/services"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	sharedApplication "github.com/felixgeelhaar/dosely/internal/shared/application"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/dosely/pkg/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MaterializeLogsCommand tops up the dose horizon of every schedulable
// medication, or only one user's when UserID is set.
type MaterializeLogsCommand struct {
	UserID uuid.UUID
	// Now defaults to the current time.
	Now time.Time
}

// MaterializeLogsResult summarizes a materialization run.
type MaterializeLogsResult struct {
	Medications int
	Inserted    int
	Skipped     int
	Expired     int
	Failed      int
	Horizons    []*services.HorizonResult
}

// MaterializeLogsHandler handles the MaterializeLogsCommand. Each medication
// gets its own transaction, and medications are processed in parallel.
type MaterializeLogsHandler struct {
	medRepo      domain.MedicationRepository
	materializer *services.LogMaterializer
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	concurrency  int
	metrics      observability.Metrics
	logger       *slog.Logger
}

// NewMaterializeLogsHandler creates a new MaterializeLogsHandler.
func NewMaterializeLogsHandler(
	medRepo domain.MedicationRepository,
	materializer *services.LogMaterializer,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	concurrency int,
	logger *slog.Logger,
) *MaterializeLogsHandler {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MaterializeLogsHandler{
		medRepo:      medRepo,
		materializer: materializer,
		outboxRepo:   outboxRepo,
		uow:          uow,
		concurrency:  concurrency,
		metrics:      observability.NoopMetrics{},
		logger:       logger,
	}
}

// WithMetrics sets the metrics sink.
func (h *MaterializeLogsHandler) WithMetrics(m observability.Metrics) *MaterializeLogsHandler {
	h.metrics = m
	return h
}

// Handle runs one pass. A failing medication does not stop the others; the
// returned error joins every failure, and the result is returned alongside it.
func (h *MaterializeLogsHandler) Handle(ctx context.Context, cmd MaterializeLogsCommand) (result *MaterializeLogsResult, err error) {
	timer := observability.StartTimer("materialize_logs").WithLogger(h.logger).WithMetrics(h.metrics)
	defer func() { timer.StopWithError(err) }()

	now := cmd.Now
	if now.IsZero() {
		now = time.Now()
	}

	var meds []*domain.Medication
	if cmd.UserID != uuid.Nil {
		meds, err = h.medRepo.FindByUserID(ctx, cmd.UserID, false)
	} else {
		meds, err = h.medRepo.FindSchedulable(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}

	result = &MaterializeLogsResult{}
	var (
		mu   sync.Mutex
		errs []error
	)

	g := new(errgroup.Group)
	g.SetLimit(h.concurrency)
	for _, med := range meds {
		if !med.NeedsMaterialization() {
			continue
		}
		// Cancellation is honored between medications; a started pass finishes.
		if ctx.Err() != nil {
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
			break
		}

		g.Go(func() error {
			horizon, err := h.materializeOne(context.WithoutCancel(ctx), med, now)

			mu.Lock()
			defer mu.Unlock()
			result.Medications++
			if err != nil {
				result.Failed++
				errs = append(errs, fmt.Errorf("medication %s: %w", med.ID(), err))
				return nil
			}
			result.Horizons = append(result.Horizons, horizon)
			result.Inserted += len(horizon.Inserted)
			if horizon.Skipped {
				result.Skipped++
			}
			if horizon.Expired {
				result.Expired++
			}
			return nil
		})
	}
	_ = g.Wait()

	h.metrics.Counter(observability.MetricDosesMaterialized, int64(result.Inserted))
	if len(errs) > 0 {
		err := errors.Join(errs...)
		h.logger.WarnContext(ctx, "doses materialized with failures",
			"medications", result.Medications,
			"failed", result.Failed,
			"inserted", result.Inserted,
			"error", err,
		)
		return result, err
	}

	h.logger.InfoContext(ctx, "doses materialized",
		"medications", result.Medications,
		"inserted", result.Inserted,
		"expired", result.Expired,
	)
	return result, nil
}

func (h *MaterializeLogsHandler) materializeOne(ctx context.Context, med *domain.Medication, now time.Time) (*services.HorizonResult, error) {
	var horizon *services.HorizonResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		var err error
		horizon, err = h.materializer.EnsureHorizon(txCtx, med, now)
		if err != nil {
			return err
		}

		events := med.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, med.UserID()))
		return outbox.SaveEvents(txCtx, h.outboxRepo, events)
	})
	med.ClearDomainEvents()
	if err != nil {
		return nil, err
	}
	return horizon, nil
}
