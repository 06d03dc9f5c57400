package domain

import (
	"errors"
	"strings"

	sharedDomain "github.com/felixgeelhaar/dosely/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrMedicationEmptyName  = errors.New("medication name cannot be empty")
	ErrMedicationArchived   = errors.New("medication is archived")
	ErrMedicationNoSchedule = errors.New("scheduled medication needs a schedule")
	ErrMedicationAsNeeded   = errors.New("as-needed medication has no schedule")
	ErrMedicationScheduled  = errors.New("medication follows a schedule")
)

// Medication owns one schedule and at most one reminder config. As-needed
// medications have neither and are never materialized.
type Medication struct {
	sharedDomain.BaseAggregateRoot
	userID       uuid.UUID
	name         string
	dosage       string
	instructions string
	asNeeded     bool
	schedule     *Schedule
	reminders    ReminderConfig
	archived     bool
}

// NewMedication creates a scheduled medication. reminders may be nil when the
// user disabled them; no doses are planned until it is set.
func NewMedication(userID uuid.UUID, name, dosage string, schedule *Schedule, reminders ReminderConfig) (*Medication, error) {
	if schedule == nil {
		return nil, ErrMedicationNoSchedule
	}
	return newMedication(userID, name, dosage, false, schedule, reminders)
}

// NewAsNeededMedication creates a medication taken only when needed.
func NewAsNeededMedication(userID uuid.UUID, name, dosage string) (*Medication, error) {
	return newMedication(userID, name, dosage, true, nil, nil)
}

func newMedication(userID uuid.UUID, name, dosage string, asNeeded bool, schedule *Schedule, reminders ReminderConfig) (*Medication, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMedicationEmptyName
	}
	m := &Medication{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		userID:            userID,
		name:              name,
		dosage:            strings.TrimSpace(dosage),
		asNeeded:          asNeeded,
		schedule:          schedule,
		reminders:         reminders,
	}
	m.AddDomainEvent(NewMedicationCreated(m))
	return m, nil
}

// RehydrateMedication rebuilds a stored medication.
func RehydrateMedication(
	base sharedDomain.BaseAggregateRoot,
	userID uuid.UUID,
	name, dosage, instructions string,
	asNeeded bool,
	schedule *Schedule,
	reminders ReminderConfig,
	archived bool,
) *Medication {
	return &Medication{
		BaseAggregateRoot: base,
		userID:            userID,
		name:              name,
		dosage:            dosage,
		instructions:      instructions,
		asNeeded:          asNeeded,
		schedule:          schedule,
		reminders:         reminders,
		archived:          archived,
	}
}

func (m *Medication) UserID() uuid.UUID         { return m.userID }
func (m *Medication) Name() string              { return m.name }
func (m *Medication) Dosage() string            { return m.dosage }
func (m *Medication) Instructions() string      { return m.instructions }
func (m *Medication) IsAsNeeded() bool          { return m.asNeeded }
func (m *Medication) Schedule() *Schedule       { return m.schedule }
func (m *Medication) Reminders() ReminderConfig { return m.reminders }
func (m *Medication) IsArchived() bool          { return m.archived }

// NeedsMaterialization reports whether dose logs are planned for m.
func (m *Medication) NeedsMaterialization() bool {
	return !m.archived && !m.asNeeded && m.schedule != nil && m.reminders != nil
}

// SetInstructions replaces the free-text instructions.
func (m *Medication) SetInstructions(text string) error {
	if m.archived {
		return ErrMedicationArchived
	}
	m.instructions = strings.TrimSpace(text)
	m.Touch()
	return nil
}

// ChangeSchedule swaps the schedule and reminder config. Callers must purge
// the medication's future pending doses before planning new ones.
func (m *Medication) ChangeSchedule(schedule *Schedule, reminders ReminderConfig) error {
	if m.archived {
		return ErrMedicationArchived
	}
	if m.asNeeded {
		return ErrMedicationAsNeeded
	}
	if schedule == nil {
		return ErrMedicationNoSchedule
	}
	previous := m.schedule.ID()
	m.schedule = schedule
	m.reminders = reminders
	m.Touch()
	m.AddDomainEvent(NewMedicationScheduleChanged(m, previous))
	return nil
}

// Archive stops planning. Archiving twice is a no-op.
func (m *Medication) Archive() {
	if m.archived {
		return
	}
	m.archived = true
	m.Touch()
	m.AddDomainEvent(NewMedicationArchived(m))
}
