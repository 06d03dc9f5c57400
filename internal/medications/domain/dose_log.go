package domain

import (
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/felixgeelhaar/dosely/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrDoseNotPending    = errors.New("dose is not pending")
	ErrDoseAlreadyTaken  = errors.New("dose was already taken")
	ErrDoseUnscheduled   = errors.New("as-needed doses cannot change status")
	ErrDoseUnknownStatus = errors.New("unknown dose status")
	ErrDoseTakenInFuture = errors.New("dose cannot be taken in the future")
)

// DoseStatus is the lifecycle state of a dose log.
type DoseStatus uint8

const (
	StatusPending DoseStatus = iota + 1
	StatusTaken
	StatusSkipped
	StatusMissed
	StatusUnscheduled
)

var statusNames = map[DoseStatus]string{
	StatusPending:     "pending",
	StatusTaken:       "taken",
	StatusSkipped:     "skipped",
	StatusMissed:      "missed",
	StatusUnscheduled: "unscheduled",
}

func (s DoseStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DoseStatus(%d)", uint8(s))
}

// ParseDoseStatus is the inverse of String.
func ParseDoseStatus(s string) (DoseStatus, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrDoseUnknownStatus, s)
}

// DoseLog is one planned (or, for as-needed medications, recorded) intake.
// (medicationID, plannedAt) is unique.
type DoseLog struct {
	sharedDomain.BaseAggregateRoot
	medicationID uuid.UUID
	scheduleID   uuid.UUID
	userID       uuid.UUID
	plannedAt    time.Time
	takenAt      *time.Time
	status       DoseStatus
}

// NewPendingDose creates a materialized dose for a scheduled medication.
func NewPendingDose(med *Medication, plannedAt time.Time) *DoseLog {
	var scheduleID uuid.UUID
	if med.Schedule() != nil {
		scheduleID = med.Schedule().ID()
	}
	return &DoseLog{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		medicationID:      med.ID(),
		scheduleID:        scheduleID,
		userID:            med.UserID(),
		plannedAt:         plannedAt.Truncate(time.Second),
		status:            StatusPending,
	}
}

// NewUnscheduledDose records an intake of an as-needed medication.
func NewUnscheduledDose(med *Medication, takenAt time.Time) (*DoseLog, error) {
	if !med.IsAsNeeded() {
		return nil, ErrMedicationScheduled
	}
	if med.IsArchived() {
		return nil, ErrMedicationArchived
	}
	at := takenAt.Truncate(time.Second)
	log := &DoseLog{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		medicationID:      med.ID(),
		userID:            med.UserID(),
		plannedAt:         at,
		takenAt:           &at,
		status:            StatusUnscheduled,
	}
	log.AddDomainEvent(NewAsNeededDoseLogged(log))
	return log, nil
}

// RehydrateDoseLog rebuilds a stored dose log. A missed dose never carries a
// taken time; one read from storage is dropped.
func RehydrateDoseLog(
	entity sharedDomain.BaseEntity,
	medicationID, scheduleID, userID uuid.UUID,
	plannedAt time.Time,
	takenAt *time.Time,
	status DoseStatus,
) *DoseLog {
	if status == StatusMissed {
		takenAt = nil
	}
	return &DoseLog{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity, 0),
		medicationID:      medicationID,
		scheduleID:        scheduleID,
		userID:            userID,
		plannedAt:         plannedAt,
		takenAt:           takenAt,
		status:            status,
	}
}

func (l *DoseLog) MedicationID() uuid.UUID { return l.medicationID }
func (l *DoseLog) ScheduleID() uuid.UUID   { return l.scheduleID }
func (l *DoseLog) UserID() uuid.UUID       { return l.userID }
func (l *DoseLog) PlannedAt() time.Time    { return l.plannedAt }
func (l *DoseLog) TakenAt() *time.Time     { return l.takenAt }
func (l *DoseLog) Status() DoseStatus      { return l.status }

// IsOverdue reports whether a pending dose's grace period has run out.
func (l *DoseLog) IsOverdue(now time.Time, grace time.Duration) bool {
	return l.status == StatusPending && !l.plannedAt.After(now.Add(-grace))
}

// MarkTaken records an intake at. Late intakes of missed or skipped doses are
// accepted.
func (l *DoseLog) MarkTaken(at, now time.Time) error {
	switch l.status {
	case StatusUnscheduled:
		return ErrDoseUnscheduled
	case StatusTaken:
		return ErrDoseAlreadyTaken
	}
	if at.After(now) {
		return ErrDoseTakenInFuture
	}
	t := at.Truncate(time.Second)
	l.takenAt = &t
	l.status = StatusTaken
	l.Touch()
	l.AddDomainEvent(NewDoseTaken(l))
	return nil
}

// MarkSkipped records a deliberate skip of a pending or missed dose.
func (l *DoseLog) MarkSkipped(at time.Time) error {
	switch l.status {
	case StatusUnscheduled:
		return ErrDoseUnscheduled
	case StatusTaken:
		return ErrDoseAlreadyTaken
	case StatusSkipped:
		return nil
	}
	t := at.Truncate(time.Second)
	l.takenAt = &t
	l.status = StatusSkipped
	l.Touch()
	l.AddDomainEvent(NewDoseSkipped(l))
	return nil
}

// MarkMissed moves a pending dose to missed. The taken time stays empty.
func (l *DoseLog) MarkMissed() error {
	if l.status != StatusPending {
		return ErrDoseNotPending
	}
	l.status = StatusMissed
	l.takenAt = nil
	l.Touch()
	l.AddDomainEvent(NewDoseMissed(l))
	return nil
}
