package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/dosely/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	medicationAggregate = "Medication"
	doseAggregate       = "DoseLog"
)

// Routing keys.
const (
	RoutingMedicationCreated         = "medications.medication.created"
	RoutingMedicationScheduleChanged = "medications.medication.schedule_changed"
	RoutingMedicationArchived        = "medications.medication.archived"
	RoutingDosesMaterialized         = "medications.doses.materialized"
	RoutingDoseTaken                 = "medications.dose.taken"
	RoutingDoseSkipped               = "medications.dose.skipped"
	RoutingDoseMissed                = "medications.dose.missed"
	RoutingAsNeededDoseLogged        = "medications.dose.as_needed"
)

// MedicationCreated is raised when a medication is registered.
type MedicationCreated struct {
	sharedDomain.BaseEvent
	MedicationID uuid.UUID `json:"medication_id"`
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	AsNeeded     bool      `json:"as_needed"`
}

func NewMedicationCreated(m *Medication) *MedicationCreated {
	return &MedicationCreated{
		BaseEvent:    sharedDomain.NewBaseEvent(m.ID(), medicationAggregate, RoutingMedicationCreated),
		MedicationID: m.ID(),
		UserID:       m.UserID(),
		Name:         m.Name(),
		AsNeeded:     m.IsAsNeeded(),
	}
}

// MedicationScheduleChanged is raised when a schedule is replaced.
type MedicationScheduleChanged struct {
	sharedDomain.BaseEvent
	MedicationID       uuid.UUID `json:"medication_id"`
	UserID             uuid.UUID `json:"user_id"`
	ScheduleID         uuid.UUID `json:"schedule_id"`
	PreviousScheduleID uuid.UUID `json:"previous_schedule_id"`
}

func NewMedicationScheduleChanged(m *Medication, previous uuid.UUID) *MedicationScheduleChanged {
	return &MedicationScheduleChanged{
		BaseEvent:          sharedDomain.NewBaseEvent(m.ID(), medicationAggregate, RoutingMedicationScheduleChanged),
		MedicationID:       m.ID(),
		UserID:             m.UserID(),
		ScheduleID:         m.Schedule().ID(),
		PreviousScheduleID: previous,
	}
}

// MedicationArchived is raised when a medication is archived.
type MedicationArchived struct {
	sharedDomain.BaseEvent
	MedicationID uuid.UUID `json:"medication_id"`
	UserID       uuid.UUID `json:"user_id"`
}

func NewMedicationArchived(m *Medication) *MedicationArchived {
	return &MedicationArchived{
		BaseEvent:    sharedDomain.NewBaseEvent(m.ID(), medicationAggregate, RoutingMedicationArchived),
		MedicationID: m.ID(),
		UserID:       m.UserID(),
	}
}

// DosesMaterialized summarizes one horizon top-up.
type DosesMaterialized struct {
	sharedDomain.BaseEvent
	MedicationID uuid.UUID `json:"medication_id"`
	UserID       uuid.UUID `json:"user_id"`
	ScheduleID   uuid.UUID `json:"schedule_id"`
	WindowStart  string    `json:"window_start"`
	WindowEnd    string    `json:"window_end"`
	Inserted     int       `json:"inserted"`
}

func NewDosesMaterialized(m *Medication, windowStart, windowEnd Date, inserted int) *DosesMaterialized {
	return &DosesMaterialized{
		BaseEvent:    sharedDomain.NewBaseEvent(m.ID(), medicationAggregate, RoutingDosesMaterialized),
		MedicationID: m.ID(),
		UserID:       m.UserID(),
		ScheduleID:   m.Schedule().ID(),
		WindowStart:  windowStart.String(),
		WindowEnd:    windowEnd.String(),
		Inserted:     inserted,
	}
}

// DoseEvent is the payload shared by dose status events.
type DoseEvent struct {
	sharedDomain.BaseEvent
	DoseID       uuid.UUID  `json:"dose_id"`
	MedicationID uuid.UUID  `json:"medication_id"`
	UserID       uuid.UUID  `json:"user_id"`
	PlannedAt    time.Time  `json:"planned_at"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
	Status       string     `json:"status"`
}

func newDoseEvent(l *DoseLog, routingKey string) *DoseEvent {
	return &DoseEvent{
		BaseEvent:    sharedDomain.NewBaseEvent(l.ID(), doseAggregate, routingKey),
		DoseID:       l.ID(),
		MedicationID: l.MedicationID(),
		UserID:       l.UserID(),
		PlannedAt:    l.PlannedAt(),
		TakenAt:      l.TakenAt(),
		Status:       l.Status().String(),
	}
}

func NewDoseTaken(l *DoseLog) *DoseEvent          { return newDoseEvent(l, RoutingDoseTaken) }
func NewDoseSkipped(l *DoseLog) *DoseEvent        { return newDoseEvent(l, RoutingDoseSkipped) }
func NewDoseMissed(l *DoseLog) *DoseEvent         { return newDoseEvent(l, RoutingDoseMissed) }
func NewAsNeededDoseLogged(l *DoseLog) *DoseEvent { return newDoseEvent(l, RoutingAsNeededDoseLogged) }
