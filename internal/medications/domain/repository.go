package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MedicationRepository persists medications with their schedule and reminders.
type MedicationRepository interface {
	// Save inserts or updates med.
	Save(ctx context.Context, med *Medication) error
	// FindByID returns nil when no medication has id.
	FindByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]*Medication, error)
	// FindSchedulable returns every non-archived scheduled medication.
	FindSchedulable(ctx context.Context) ([]*Medication, error)
	// Delete removes the medication and, by cascade, its dose logs.
	Delete(ctx context.Context, id uuid.UUID) error
}

// DoseLogRepository is the dose log store. Materialization and sweeping only
// go through this interface.
type DoseLogRepository interface {
	// CountFutureLogs counts logs planned at or after from.
	CountFutureLogs(ctx context.Context, medicationID uuid.UUID, from time.Time) (int, error)
	// LatestPlannedAt returns the last planned time at or after from, or nil.
	LatestPlannedAt(ctx context.Context, medicationID uuid.UUID, from time.Time) (*time.Time, error)
	// GetLogAt returns nil when no log exists for the pair.
	GetLogAt(ctx context.Context, medicationID uuid.UUID, plannedAt time.Time) (*DoseLog, error)
	// InsertLog stores log unless (medicationID, plannedAt) already exists,
	// in which case it reports false and no error.
	InsertLog(ctx context.Context, log *DoseLog) (bool, error)
	// GetPendingLogsBefore returns pending logs planned at or before cutoff.
	GetPendingLogsBefore(ctx context.Context, cutoff time.Time) ([]*DoseLog, error)
	// UpdateStatus writes log's status and taken time if the stored status is
	// still from. It reports false when another writer got there first.
	UpdateStatus(ctx context.Context, log *DoseLog, from DoseStatus) (bool, error)
	// DeleteFutureLogs removes pending logs planned at or after from.
	DeleteFutureLogs(ctx context.Context, medicationID uuid.UUID, from time.Time) (int64, error)

	FindByID(ctx context.Context, id uuid.UUID) (*DoseLog, error)
	ListByMedication(ctx context.Context, medicationID uuid.UUID, from, to time.Time) ([]*DoseLog, error)
	ListByUser(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*DoseLog, error)
}
