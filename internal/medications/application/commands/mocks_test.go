package commands

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/application/services"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type txKey struct{}

// Monday 2024-01-01, noon UTC.
var fixedNow = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// mockMedicationRepo is a mock implementation of domain.MedicationRepository.
type mockMedicationRepo struct {
	mock.Mock
}

func (m *mockMedicationRepo) Save(ctx context.Context, med *domain.Medication) error {
	args := m.Called(ctx, med)
	return args.Error(0)
}

func (m *mockMedicationRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Medication, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Medication), args.Error(1)
}

func (m *mockMedicationRepo) FindByUserID(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]*domain.Medication, error) {
	args := m.Called(ctx, userID, includeArchived)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Medication), args.Error(1)
}

func (m *mockMedicationRepo) FindSchedulable(ctx context.Context) ([]*domain.Medication, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Medication), args.Error(1)
}

func (m *mockMedicationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// mockDoseLogRepo is a mock implementation of domain.DoseLogRepository.
type mockDoseLogRepo struct {
	mock.Mock
}

func (m *mockDoseLogRepo) CountFutureLogs(ctx context.Context, medicationID uuid.UUID, from time.Time) (int, error) {
	args := m.Called(ctx, medicationID, from)
	return args.Int(0), args.Error(1)
}

func (m *mockDoseLogRepo) LatestPlannedAt(ctx context.Context, medicationID uuid.UUID, from time.Time) (*time.Time, error) {
	args := m.Called(ctx, medicationID, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *mockDoseLogRepo) GetLogAt(ctx context.Context, medicationID uuid.UUID, plannedAt time.Time) (*domain.DoseLog, error) {
	args := m.Called(ctx, medicationID, plannedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DoseLog), args.Error(1)
}

func (m *mockDoseLogRepo) InsertLog(ctx context.Context, log *domain.DoseLog) (bool, error) {
	args := m.Called(ctx, log)
	return args.Bool(0), args.Error(1)
}

func (m *mockDoseLogRepo) GetPendingLogsBefore(ctx context.Context, cutoff time.Time) ([]*domain.DoseLog, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DoseLog), args.Error(1)
}

func (m *mockDoseLogRepo) UpdateStatus(ctx context.Context, log *domain.DoseLog, from domain.DoseStatus) (bool, error) {
	args := m.Called(ctx, log, from)
	return args.Bool(0), args.Error(1)
}

func (m *mockDoseLogRepo) DeleteFutureLogs(ctx context.Context, medicationID uuid.UUID, from time.Time) (int64, error) {
	args := m.Called(ctx, medicationID, from)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDoseLogRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.DoseLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DoseLog), args.Error(1)
}

func (m *mockDoseLogRepo) ListByMedication(ctx context.Context, medicationID uuid.UUID, from, to time.Time) ([]*domain.DoseLog, error) {
	args := m.Called(ctx, medicationID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DoseLog), args.Error(1)
}

func (m *mockDoseLogRepo) ListByUser(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.DoseLog, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DoseLog), args.Error(1)
}

// mockOutboxRepo is a mock implementation of outbox.Repository.
type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Save(ctx context.Context, msg *outbox.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockOutboxRepo) SaveBatch(ctx context.Context, msgs []*outbox.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockOutboxRepo) GetUnpublished(ctx context.Context, now time.Time, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *mockOutboxRepo) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error {
	args := m.Called(ctx, id, reason, nextRetryAt)
	return args.Error(0)
}

func (m *mockOutboxRepo) MarkDead(ctx context.Context, id int64, reason string, at time.Time) error {
	args := m.Called(ctx, id, reason, at)
	return args.Error(0)
}

func (m *mockOutboxRepo) DeleteOld(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// mockUnitOfWork is a mock implementation of UnitOfWork.
type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func batchOf(n int) any {
	return mock.MatchedBy(func(msgs []*outbox.Message) bool { return len(msgs) == n })
}

func newTestMaterializer(doses domain.DoseLogRepository) *services.LogMaterializer {
	return services.NewLogMaterializer(doses, services.HorizonConfig{
		MinFutureDays: 1,
		HorizonDays:   0,
		Location:      time.UTC,
	}, nil)
}

func clockTimes(t *testing.T, clock ...string) domain.ReminderConfig {
	t.Helper()
	times := make([]domain.TimeOfDay, len(clock))
	for i, c := range clock {
		v, err := domain.ParseTimeOfDay(c)
		require.NoError(t, err)
		times[i] = v
	}
	reminders, err := domain.NewDailyTimes(times...)
	require.NoError(t, err)
	return reminders
}

func createTestMedication(t *testing.T, userID uuid.UUID, clock ...string) *domain.Medication {
	t.Helper()
	schedule, err := domain.NewSchedule(domain.DateOf(fixedNow), domain.Continuous{}, domain.Daily{})
	require.NoError(t, err)
	med, err := domain.NewMedication(userID, "Metformin", "500mg", schedule, clockTimes(t, clock...))
	require.NoError(t, err)
	med.ClearDomainEvents()
	return med
}

func createPendingDose(t *testing.T, userID uuid.UUID, plannedAt time.Time) *domain.DoseLog {
	t.Helper()
	return domain.NewPendingDose(createTestMedication(t, userID, "08:00"), plannedAt)
}
