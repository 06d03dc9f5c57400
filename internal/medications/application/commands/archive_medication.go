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

// ArchiveMedicationCommand contains the data needed to archive a medication.
type ArchiveMedicationCommand struct {
	MedicationID uuid.UUID
	UserID       uuid.UUID
}

// ArchiveMedicationHandler handles the ArchiveMedicationCommand.
type ArchiveMedicationHandler struct {
	medRepo      domain.MedicationRepository
	materializer *services.LogMaterializer
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	now          func() time.Time
}

// NewArchiveMedicationHandler creates a new ArchiveMedicationHandler.
func NewArchiveMedicationHandler(
	medRepo domain.MedicationRepository,
	materializer *services.LogMaterializer,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
) *ArchiveMedicationHandler {
	return &ArchiveMedicationHandler{
		medRepo:      medRepo,
		materializer: materializer,
		outboxRepo:   outboxRepo,
		uow:          uow,
		now:          time.Now,
	}
}

// Handle archives the medication and removes its upcoming pending doses.
// It returns the number of doses removed.
func (h *ArchiveMedicationHandler) Handle(ctx context.Context, cmd ArchiveMedicationCommand) (int64, error) {
	var purged int64

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

		med.Archive()
		if err := h.medRepo.Save(txCtx, med); err != nil {
			return err
		}

		purged, err = h.materializer.PurgeFuture(txCtx, med.ID(), h.now())
		if err != nil {
			return err
		}

		events := med.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, cmd.UserID))
		return outbox.SaveEvents(txCtx, h.outboxRepo, events)
	})
	if err != nil {
		return 0, err
	}

	return purged, nil
}
