package queries

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/google/uuid"
)

// MedicationDTO is a data transfer object for medications.
type MedicationDTO struct {
	ID           uuid.UUID
	Name         string
	Dosage       string
	Instructions string
	AsNeeded     bool
	IsArchived   bool
	ScheduleID   uuid.UUID
	Schedule     string
	StartDate    string
	EndDate      string
	Reminders    []string
	CreatedAt    time.Time
}

// ListMedicationsQuery contains the parameters for listing medications.
type ListMedicationsQuery struct {
	UserID          uuid.UUID
	IncludeArchived bool
}

// ListMedicationsHandler handles the ListMedicationsQuery.
type ListMedicationsHandler struct {
	medRepo domain.MedicationRepository
}

// NewListMedicationsHandler creates a new ListMedicationsHandler.
func NewListMedicationsHandler(medRepo domain.MedicationRepository) *ListMedicationsHandler {
	return &ListMedicationsHandler{medRepo: medRepo}
}

// Handle returns the user's medications sorted by name.
func (h *ListMedicationsHandler) Handle(ctx context.Context, query ListMedicationsQuery) ([]MedicationDTO, error) {
	meds, err := h.medRepo.FindByUserID(ctx, query.UserID, query.IncludeArchived)
	if err != nil {
		return nil, err
	}

	dtos := make([]MedicationDTO, len(meds))
	for i, med := range meds {
		dtos[i] = ToMedicationDTO(med)
	}
	sort.SliceStable(dtos, func(i, j int) bool {
		return strings.ToLower(dtos[i].Name) < strings.ToLower(dtos[j].Name)
	})
	return dtos, nil
}

// ToMedicationDTO flattens a medication for display.
func ToMedicationDTO(med *domain.Medication) MedicationDTO {
	dto := MedicationDTO{
		ID:           med.ID(),
		Name:         med.Name(),
		Dosage:       med.Dosage(),
		Instructions: med.Instructions(),
		AsNeeded:     med.IsAsNeeded(),
		IsArchived:   med.IsArchived(),
		CreatedAt:    med.CreatedAt(),
	}

	if schedule := med.Schedule(); schedule != nil {
		dto.ScheduleID = schedule.ID()
		dto.Schedule = DescribeSchedule(schedule)
		dto.StartDate = schedule.StartDate().String()
		if end, ok := schedule.EndDate(); ok {
			dto.EndDate = end.String()
		}
	}
	if reminders := med.Reminders(); reminders != nil {
		for _, t := range reminders.Expand() {
			dto.Reminders = append(dto.Reminders, t.String())
		}
	}
	return dto
}

// DescribeSchedule renders a short human description such as
// "every 2 days for 10 days".
func DescribeSchedule(s *domain.Schedule) string {
	var desc string
	switch r := s.Recurrence().(type) {
	case domain.Daily:
		desc = "daily"
	case domain.SpecificWeekdays:
		desc = "on " + r.Days.String()
	case domain.IntervalDays:
		if r.Every == 1 {
			desc = "daily"
		} else {
			desc = fmt.Sprintf("every %d days", r.Every)
		}
	}

	if fixed, ok := s.Duration().(domain.FixedDays); ok {
		desc += fmt.Sprintf(" for %d days", fixed.Days)
	}
	return desc
}
