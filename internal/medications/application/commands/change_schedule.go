package commands

import (
	"context"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/application/services"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	sharedApplication "github.com/felixgeelhaar/dosely/internal/shared/application"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// ChangeScheduleCommand replaces a medication's schedule and reminders.
type ChangeScheduleCommand struct {
	MedicationID uuid.UUID
	UserID       uuid.UUID
	StartDate    domain.Date
	Duration     domain.DurationPolicy
	Recurrence   domain.Recurrence
	Reminders    domain.ReminderConfig
}

// ChangeScheduleResult contains the result of a schedule change.
type ChangeScheduleResult struct {
	ScheduleID   uuid.UUID
	DosesPurged  int64
	DosesPlanned int
	// DosesKept counts upcoming doses already recorded before the edit.
	DosesKept int
}

// ChangeScheduleHandler handles the ChangeScheduleCommand.
type ChangeScheduleHandler struct {
	medRepo      domain.MedicationRepository
	materializer *services.LogMaterializer
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	now          func() time.Time
}

// NewChangeScheduleHandler creates a new ChangeScheduleHandler.
func NewChangeScheduleHandler(
	medRepo domain.MedicationRepository,
	materializer *services.LogMaterializer,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
) *ChangeScheduleHandler {
	return &ChangeScheduleHandler{
		medRepo:      medRepo,
		materializer: materializer,
		outboxRepo:   outboxRepo,
		uow:          uow,
		now:          time.Now,
	}
}

// Handle swaps the schedule, drops pending doses planned under the old rule
// and plans the new horizon starting today. Past doses and doses already
// taken ahead of time are kept.
func (h *ChangeScheduleHandler) Handle(ctx context.Context, cmd ChangeScheduleCommand) (*ChangeScheduleResult, error) {
	var result *ChangeScheduleResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		med, err := h.medRepo.FindByID(txCtx, cmd.MedicationID)
		if err != nil {
			return err
		}
		if med == nil {
			return ErrMedicationNotFound
		}
		if med.UserID() != cmd.UserID {
			return ErrNotOwner
		}

		schedule, err := domain.NewSchedule(cmd.StartDate, cmd.Duration, cmd.Recurrence)
		if err != nil {
			return err
		}
		if err := med.ChangeSchedule(schedule, cmd.Reminders); err != nil {
			return err
		}
		if err := h.medRepo.Save(txCtx, med); err != nil {
			return err
		}

		now := h.now()
		purged, err := h.materializer.PurgeFuture(txCtx, med.ID(), now)
		if err != nil {
			return err
		}
		horizon, err := h.materializer.Rematerialize(txCtx, med, now)
		if err != nil {
			return err
		}

		events := med.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, cmd.UserID))
		if err := outbox.SaveEvents(txCtx, h.outboxRepo, events); err != nil {
			return err
		}

		result = &ChangeScheduleResult{
			ScheduleID:   schedule.ID(),
			DosesPurged:  purged,
			DosesPlanned: len(horizon.Inserted),
			DosesKept:    horizon.Retained,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
