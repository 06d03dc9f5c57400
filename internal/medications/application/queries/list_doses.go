package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/google/uuid"
)

// DoseDTO is a data transfer object for dose logs.
type DoseDTO struct {
	ID             uuid.UUID
	MedicationID   uuid.UUID
	MedicationName string
	Dosage         string
	PlannedAt      time.Time
	TakenAt        *time.Time
	Status         string
}

// ListDosesQuery lists doses planned in [From, To).
type ListDosesQuery struct {
	UserID uuid.UUID
	// MedicationID narrows the list to one medication when set.
	MedicationID uuid.UUID
	From         time.Time
	To           time.Time
	// Statuses filters by status; empty means all.
	Statuses []domain.DoseStatus
}

// ListDosesHandler handles the ListDosesQuery.
type ListDosesHandler struct {
	medRepo  domain.MedicationRepository
	doseRepo domain.DoseLogRepository
}

// NewListDosesHandler creates a new ListDosesHandler.
func NewListDosesHandler(medRepo domain.MedicationRepository, doseRepo domain.DoseLogRepository) *ListDosesHandler {
	return &ListDosesHandler{medRepo: medRepo, doseRepo: doseRepo}
}

// Handle returns the dose agenda ordered by planned time.
func (h *ListDosesHandler) Handle(ctx context.Context, query ListDosesQuery) ([]DoseDTO, error) {
	meds, err := h.medRepo.FindByUserID(ctx, query.UserID, true)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*domain.Medication, len(meds))
	for _, med := range meds {
		byID[med.ID()] = med
	}

	var logs []*domain.DoseLog
	if query.MedicationID != uuid.Nil {
		if _, ok := byID[query.MedicationID]; !ok {
			return nil, ErrMedicationNotFound
		}
		logs, err = h.doseRepo.ListByMedication(ctx, query.MedicationID, query.From, query.To)
	} else {
		logs, err = h.doseRepo.ListByUser(ctx, query.UserID, query.From, query.To)
	}
	if err != nil {
		return nil, err
	}

	dtos := make([]DoseDTO, 0, len(logs))
	for _, log := range logs {
		if !matchesStatus(log.Status(), query.Statuses) {
			continue
		}
		dto := DoseDTO{
			ID:           log.ID(),
			MedicationID: log.MedicationID(),
			PlannedAt:    log.PlannedAt(),
			TakenAt:      log.TakenAt(),
			Status:       log.Status().String(),
		}
		if med, ok := byID[log.MedicationID()]; ok {
			dto.MedicationName = med.Name()
			dto.Dosage = med.Dosage()
		}
		dtos = append(dtos, dto)
	}
	return dtos, nil
}

func matchesStatus(status domain.DoseStatus, filter []domain.DoseStatus) bool {
	if len(filter) == 0 {
		return true
	}
	for _, s := range filter {
		if s == status {
			return true
		}
	}
	return false
}
