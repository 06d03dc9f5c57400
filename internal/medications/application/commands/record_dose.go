package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	sharedApplication "github.com/felixgeelhaar/dosely/internal/shared/application"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

var (
	ErrDoseNotFound      = errors.New("dose not found")
	ErrDoseChanged       = errors.New("dose was changed concurrently")
	ErrUnknownDoseAction = errors.New("unknown dose action")
)

// DoseAction is what the user did with a planned dose.
type DoseAction int

const (
	DoseActionTake DoseAction = iota + 1
	DoseActionSkip
)

// RecordDoseCommand records a take or skip on a planned dose.
type RecordDoseCommand struct {
	DoseID uuid.UUID
	UserID uuid.UUID
	Action DoseAction
	// At is when the user acted. Zero means now.
	At time.Time
}

// RecordDoseResult contains the dose after the change.
type RecordDoseResult struct {
	DoseID  uuid.UUID
	Status  domain.DoseStatus
	TakenAt *time.Time
}

// RecordDoseHandler handles the RecordDoseCommand.
type RecordDoseHandler struct {
	doseRepo   domain.DoseLogRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	now        func() time.Time
}

// NewRecordDoseHandler creates a new RecordDoseHandler.
func NewRecordDoseHandler(doseRepo domain.DoseLogRepository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork) *RecordDoseHandler {
	return &RecordDoseHandler{
		doseRepo:   doseRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		now:        time.Now,
	}
}

// Handle applies the action. The update only lands if the stored status is
// the one that was read, so it cannot overwrite a concurrent sweep.
func (h *RecordDoseHandler) Handle(ctx context.Context, cmd RecordDoseCommand) (*RecordDoseResult, error) {
	var result *RecordDoseResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		dose, err := h.doseRepo.FindByID(txCtx, cmd.DoseID)
		if err != nil {
			return err
		}
		if dose == nil {
			return ErrDoseNotFound
		}
		if dose.UserID() != cmd.UserID {
			return ErrNotOwner
		}

		now := h.now()
		at := cmd.At
		if at.IsZero() {
			at = now
		}

		from := dose.Status()
		switch cmd.Action {
		case DoseActionTake:
			err = dose.MarkTaken(at, now)
		case DoseActionSkip:
			err = dose.MarkSkipped(at)
		default:
			err = fmt.Errorf("%w: %d", ErrUnknownDoseAction, cmd.Action)
		}
		if err != nil {
			return err
		}

		result = &RecordDoseResult{DoseID: dose.ID(), Status: dose.Status(), TakenAt: dose.TakenAt()}
		events := dose.DomainEvents()
		if len(events) == 0 {
			return nil
		}

		updated, err := h.doseRepo.UpdateStatus(txCtx, dose, from)
		if err != nil {
			return err
		}
		if !updated {
			return ErrDoseChanged
		}

		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, cmd.UserID))
		return outbox.SaveEvents(txCtx, h.outboxRepo, events)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
