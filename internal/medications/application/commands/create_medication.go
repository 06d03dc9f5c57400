package commands

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/application/services"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	sharedApplication "github.com/felixgeelhaar/dosely/internal/shared/application"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

var (
	ErrMedicationNotFound = errors.New("medication not found")
	ErrNotOwner           = errors.New("user does not own this medication")
)

// CreateMedicationCommand contains the data needed to register a medication.
// Schedule fields are ignored for as-needed medications.
type CreateMedicationCommand struct {
	UserID       uuid.UUID
	Name         string
	Dosage       string
	Instructions string
	AsNeeded     bool
	StartDate    domain.Date
	Duration     domain.DurationPolicy
	Recurrence   domain.Recurrence
	// Reminders is nil when reminders are disabled.
	Reminders domain.ReminderConfig
}

// CreateMedicationResult contains the result of creating a medication.
type CreateMedicationResult struct {
	MedicationID uuid.UUID
	ScheduleID   uuid.UUID
	DosesPlanned int
}

// CreateMedicationHandler handles the CreateMedicationCommand.
type CreateMedicationHandler struct {
	medRepo      domain.MedicationRepository
	materializer *services.LogMaterializer
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	now          func() time.Time
}

// NewCreateMedicationHandler creates a new CreateMedicationHandler.
func NewCreateMedicationHandler(
	medRepo domain.MedicationRepository,
	materializer *services.LogMaterializer,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
) *CreateMedicationHandler {
	return &CreateMedicationHandler{
		medRepo:      medRepo,
		materializer: materializer,
		outboxRepo:   outboxRepo,
		uow:          uow,
		now:          time.Now,
	}
}

// Handle saves the medication and plans its first horizon of doses in the
// same transaction.
func (h *CreateMedicationHandler) Handle(ctx context.Context, cmd CreateMedicationCommand) (*CreateMedicationResult, error) {
	var result *CreateMedicationResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		med, err := h.build(cmd)
		if err != nil {
			return err
		}
		if cmd.Instructions != "" {
			if err := med.SetInstructions(cmd.Instructions); err != nil {
				return err
			}
		}

		if err := h.medRepo.Save(txCtx, med); err != nil {
			return err
		}

		horizon, err := h.materializer.EnsureHorizon(txCtx, med, h.now())
		if err != nil {
			return err
		}

		events := med.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, cmd.UserID))
		if err := outbox.SaveEvents(txCtx, h.outboxRepo, events); err != nil {
			return err
		}

		result = &CreateMedicationResult{
			MedicationID: med.ID(),
			ScheduleID:   horizon.ScheduleID,
			DosesPlanned: len(horizon.Inserted),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (h *CreateMedicationHandler) build(cmd CreateMedicationCommand) (*domain.Medication, error) {
	if cmd.AsNeeded {
		return domain.NewAsNeededMedication(cmd.UserID, cmd.Name, cmd.Dosage)
	}
	schedule, err := domain.NewSchedule(cmd.StartDate, cmd.Duration, cmd.Recurrence)
	if err != nil {
		return nil, err
	}
	return domain.NewMedication(cmd.UserID, cmd.Name, cmd.Dosage, schedule, cmd.Reminders)
}
