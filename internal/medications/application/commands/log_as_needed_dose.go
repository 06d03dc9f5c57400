package commands

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	sharedApplication "github.com/felixgeelhaar/dosely/internal/shared/application"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// ErrDoseAlreadyLogged is returned when an intake was already recorded at the same second.
var ErrDoseAlreadyLogged = errors.New("dose already logged at this time")

// LogAsNeededDoseCommand records an intake of an as-needed medication.
type LogAsNeededDoseCommand struct {
	MedicationID uuid.UUID
	UserID       uuid.UUID
	// TakenAt defaults to now.
	TakenAt time.Time
}

// LogAsNeededDoseHandler handles the LogAsNeededDoseCommand.
type LogAsNeededDoseHandler struct {
	medRepo    domain.MedicationRepository
	doseRepo   domain.DoseLogRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	now        func() time.Time
}

// NewLogAsNeededDoseHandler creates a new LogAsNeededDoseHandler.
func NewLogAsNeededDoseHandler(
	medRepo domain.MedicationRepository,
	doseRepo domain.DoseLogRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
) *LogAsNeededDoseHandler {
	return &LogAsNeededDoseHandler{
		medRepo:    medRepo,
		doseRepo:   doseRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		now:        time.Now,
	}
}

// Handle stores an unscheduled dose and returns its ID.
func (h *LogAsNeededDoseHandler) Handle(ctx context.Context, cmd LogAsNeededDoseCommand) (uuid.UUID, error) {
	var doseID uuid.UUID

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

		now := h.now()
		takenAt := cmd.TakenAt
		if takenAt.IsZero() {
			takenAt = now
		}
		if takenAt.After(now) {
			return domain.ErrDoseTakenInFuture
		}

		dose, err := domain.NewUnscheduledDose(med, takenAt)
		if err != nil {
			return err
		}
		inserted, err := h.doseRepo.InsertLog(txCtx, dose)
		if err != nil {
			return err
		}
		if !inserted {
			return ErrDoseAlreadyLogged
		}

		events := dose.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, cmd.UserID))
		if err := outbox.SaveEvents(txCtx, h.outboxRepo, events); err != nil {
			return err
		}

		doseID = dose.ID()
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	return doseID, nil
}
