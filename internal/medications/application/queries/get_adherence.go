package queries

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/google/uuid"
)

var (
	ErrMedicationNotFound = errors.New("medication not found")
	ErrInvalidPeriod      = errors.New("period must be at least one day")
)

// AdherenceDTO summarizes how a medication was taken over a period.
type AdherenceDTO struct {
	MedicationID uuid.UUID
	Name         string
	From         time.Time
	To           time.Time
	Taken        int
	Skipped      int
	Missed       int
	Pending      int
	Unscheduled  int
	// Rate is taken / (taken + skipped + missed) as a percentage. Pending
	// doses are not counted yet.
	Rate float64
}

// GetAdherenceQuery asks for adherence over the Days before Now.
type GetAdherenceQuery struct {
	MedicationID uuid.UUID
	UserID       uuid.UUID
	Days         int
	Now          time.Time
}

// GetAdherenceHandler handles the GetAdherenceQuery.
type GetAdherenceHandler struct {
	medRepo  domain.MedicationRepository
	doseRepo domain.DoseLogRepository
}

// NewGetAdherenceHandler creates a new GetAdherenceHandler.
func NewGetAdherenceHandler(medRepo domain.MedicationRepository, doseRepo domain.DoseLogRepository) *GetAdherenceHandler {
	return &GetAdherenceHandler{medRepo: medRepo, doseRepo: doseRepo}
}

// Handle executes the GetAdherenceQuery.
func (h *GetAdherenceHandler) Handle(ctx context.Context, query GetAdherenceQuery) (*AdherenceDTO, error) {
	if query.Days < 1 {
		return nil, ErrInvalidPeriod
	}
	now := query.Now
	if now.IsZero() {
		now = time.Now()
	}

	med, err := h.medRepo.FindByID(ctx, query.MedicationID)
	if err != nil {
		return nil, err
	}
	if med == nil || med.UserID() != query.UserID {
		return nil, ErrMedicationNotFound
	}

	from := now.AddDate(0, 0, -query.Days)
	logs, err := h.doseRepo.ListByMedication(ctx, med.ID(), from, now)
	if err != nil {
		return nil, err
	}

	dto := &AdherenceDTO{
		MedicationID: med.ID(),
		Name:         med.Name(),
		From:         from,
		To:           now,
	}
	for _, log := range logs {
		switch log.Status() {
		case domain.StatusTaken:
			dto.Taken++
		case domain.StatusSkipped:
			dto.Skipped++
		case domain.StatusMissed:
			dto.Missed++
		case domain.StatusPending:
			dto.Pending++
		case domain.StatusUnscheduled:
			dto.Unscheduled++
		}
	}
	if settled := dto.Taken + dto.Skipped + dto.Missed; settled > 0 {
		dto.Rate = float64(dto.Taken) / float64(settled) * 100
	}
	return dto, nil
}
