package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	sharedDomain "github.com/felixgeelhaar/dosely/internal/shared/domain"
	"github.com/google/uuid"
)

type doseRecord struct {
	id           uuid.UUID
	medicationID uuid.UUID
	scheduleID   uuid.UUID
	userID       uuid.UUID
	plannedAt    time.Time
	takenAt      *time.Time
	status       domain.DoseStatus
}

func (r doseRecord) log() *domain.DoseLog {
	entity := sharedDomain.RehydrateBaseEntity(r.id, r.plannedAt, r.plannedAt)
	return domain.RehydrateDoseLog(entity, r.medicationID, r.scheduleID, r.userID, r.plannedAt, r.takenAt, r.status)
}

// memoryDoseLogs stores snapshots so callers mutating a log do not change
// the stored row until UpdateStatus.
type memoryDoseLogs struct {
	mu   sync.Mutex
	rows map[uuid.UUID]doseRecord

	// hideCoverage makes LatestPlannedAt report nothing, as a runner with a
	// stale read would see.
	hideCoverage bool
	insertErr    error
	// onUpdate runs before UpdateStatus compares statuses.
	onUpdate func(id uuid.UUID)
}

func newMemoryDoseLogs() *memoryDoseLogs {
	return &memoryDoseLogs{rows: make(map[uuid.UUID]doseRecord)}
}

func (s *memoryDoseLogs) add(log *domain.DoseLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[log.ID()] = record(log)
}

func record(l *domain.DoseLog) doseRecord {
	return doseRecord{
		id:           l.ID(),
		medicationID: l.MedicationID(),
		scheduleID:   l.ScheduleID(),
		userID:       l.UserID(),
		plannedAt:    l.PlannedAt(),
		takenAt:      l.TakenAt(),
		status:       l.Status(),
	}
}

func (s *memoryDoseLogs) sorted(filter func(doseRecord) bool) []*domain.DoseLog {
	var out []doseRecord
	for _, r := range s.rows {
		if filter(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].plannedAt.Before(out[j].plannedAt) })
	logs := make([]*domain.DoseLog, len(out))
	for i, r := range out {
		logs[i] = r.log()
	}
	return logs
}

func (s *memoryDoseLogs) forMedication(medicationID uuid.UUID) []*domain.DoseLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(r doseRecord) bool { return r.medicationID == medicationID })
}

func (s *memoryDoseLogs) CountFutureLogs(_ context.Context, medicationID uuid.UUID, from time.Time) (int, error) {
	return len(s.ListFrom(medicationID, from)), nil
}

func (s *memoryDoseLogs) ListFrom(medicationID uuid.UUID, from time.Time) []*domain.DoseLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(r doseRecord) bool {
		return r.medicationID == medicationID && !r.plannedAt.Before(from)
	})
}

func (s *memoryDoseLogs) LatestPlannedAt(_ context.Context, medicationID uuid.UUID, from time.Time) (*time.Time, error) {
	if s.hideCoverage {
		return nil, nil
	}
	logs := s.ListFrom(medicationID, from)
	if len(logs) == 0 {
		return nil, nil
	}
	latest := logs[len(logs)-1].PlannedAt()
	return &latest, nil
}

func (s *memoryDoseLogs) GetLogAt(_ context.Context, medicationID uuid.UUID, plannedAt time.Time) (*domain.DoseLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.medicationID == medicationID && r.plannedAt.Equal(plannedAt) {
			return r.log(), nil
		}
	}
	return nil, nil
}

func (s *memoryDoseLogs) InsertLog(_ context.Context, log *domain.DoseLog) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	for _, r := range s.rows {
		if r.medicationID == log.MedicationID() && r.plannedAt.Equal(log.PlannedAt()) {
			return false, nil
		}
	}
	s.rows[log.ID()] = record(log)
	return true, nil
}

func (s *memoryDoseLogs) GetPendingLogsBefore(_ context.Context, cutoff time.Time) ([]*domain.DoseLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(r doseRecord) bool {
		return r.status == domain.StatusPending && !r.plannedAt.After(cutoff)
	}), nil
}

func (s *memoryDoseLogs) UpdateStatus(_ context.Context, log *domain.DoseLog, from domain.DoseStatus) (bool, error) {
	if s.onUpdate != nil {
		s.onUpdate(log.ID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[log.ID()]
	if !ok || r.status != from {
		return false, nil
	}
	s.rows[log.ID()] = record(log)
	return true, nil
}

func (s *memoryDoseLogs) DeleteFutureLogs(_ context.Context, medicationID uuid.UUID, from time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.rows {
		if r.medicationID == medicationID && r.status == domain.StatusPending && !r.plannedAt.Before(from) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *memoryDoseLogs) FindByID(_ context.Context, id uuid.UUID) (*domain.DoseLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return r.log(), nil
}

func (s *memoryDoseLogs) ListByMedication(_ context.Context, medicationID uuid.UUID, from, to time.Time) ([]*domain.DoseLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(r doseRecord) bool {
		return r.medicationID == medicationID && !r.plannedAt.Before(from) && r.plannedAt.Before(to)
	}), nil
}

func (s *memoryDoseLogs) ListByUser(_ context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.DoseLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(r doseRecord) bool {
		return r.userID == userID && !r.plannedAt.Before(from) && r.plannedAt.Before(to)
	}), nil
}
