package queries

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)

type mockMedicationRepo struct {
	mock.Mock
}

func (m *mockMedicationRepo) Save(ctx context.Context, med *domain.Medication) error {
	return m.Called(ctx, med).Error(0)
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
	return args.Get(0).([]*domain.Medication), args.Error(1)
}

func (m *mockMedicationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// mockDoseLogRepo only implements the list calls; the rest are unused by queries.
type mockDoseLogRepo struct {
	mock.Mock
	domain.DoseLogRepository
}

func (m *mockDoseLogRepo) ListByMedication(ctx context.Context, medicationID uuid.UUID, from, to time.Time) ([]*domain.DoseLog, error) {
	args := m.Called(ctx, medicationID, from, to)
	return args.Get(0).([]*domain.DoseLog), args.Error(1)
}

func (m *mockDoseLogRepo) ListByUser(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.DoseLog, error) {
	args := m.Called(ctx, userID, from, to)
	return args.Get(0).([]*domain.DoseLog), args.Error(1)
}

func createTestMedication(t *testing.T, userID uuid.UUID, name string, duration domain.DurationPolicy, rec domain.Recurrence) *domain.Medication {
	t.Helper()
	schedule, err := domain.NewSchedule(domain.NewDate(2024, time.January, 1), duration, rec)
	require.NoError(t, err)
	morning, _ := domain.NewTimeOfDay(8, 0)
	evening, _ := domain.NewTimeOfDay(20, 0)
	reminders, err := domain.NewDailyTimes(evening, morning)
	require.NoError(t, err)
	med, err := domain.NewMedication(userID, name, "10mg", schedule, reminders)
	require.NoError(t, err)
	return med
}

func dose(t *testing.T, med *domain.Medication, hoursAgo int, status domain.DoseStatus) *domain.DoseLog {
	t.Helper()
	planned := fixedNow.Add(-time.Duration(hoursAgo) * time.Hour)
	log := domain.NewPendingDose(med, planned)
	switch status {
	case domain.StatusTaken:
		require.NoError(t, log.MarkTaken(planned, fixedNow))
	case domain.StatusSkipped:
		require.NoError(t, log.MarkSkipped(planned))
	case domain.StatusMissed:
		require.NoError(t, log.MarkMissed())
	}
	return log
}

func TestListMedicationsHandler_Handle(t *testing.T) {
	userID := uuid.New()
	repo := new(mockMedicationRepo)
	handler := NewListMedicationsHandler(repo)

	zinc := createTestMedication(t, userID, "zinc", domain.Continuous{}, domain.Daily{})
	atorva := createTestMedication(t, userID, "Atorvastatin", domain.FixedDays{Days: 10}, domain.IntervalDays{Every: 2})
	prn, err := domain.NewAsNeededMedication(userID, "Ibuprofen", "200mg")
	require.NoError(t, err)

	repo.On("FindByUserID", mock.Anything, userID, false).Return([]*domain.Medication{zinc, atorva, prn}, nil)

	result, err := handler.Handle(context.Background(), ListMedicationsQuery{UserID: userID})

	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "Atorvastatin", result[0].Name)
	assert.Equal(t, "every 2 days for 10 days", result[0].Schedule)
	assert.Equal(t, "2024-01-10", result[0].EndDate)
	assert.Equal(t, []string{"08:00", "20:00"}, result[0].Reminders)
	assert.True(t, result[1].AsNeeded)
	assert.Empty(t, result[1].Schedule)
	assert.Equal(t, "daily", result[2].Schedule)
	repo.AssertExpectations(t)
}

func TestDescribeSchedule(t *testing.T) {
	s, err := domain.NewSchedule(domain.NewDate(2024, time.January, 1), domain.Continuous{},
		domain.SpecificWeekdays{Days: domain.NewWeekdaySet(time.Monday, time.Thursday)})
	require.NoError(t, err)
	assert.Equal(t, "on mon,thu", DescribeSchedule(s))
}

func TestListDosesHandler_Handle(t *testing.T) {
	userID := uuid.New()
	from := fixedNow.Add(-24 * time.Hour)

	t.Run("lists the agenda with names and filter", func(t *testing.T) {
		medRepo := new(mockMedicationRepo)
		doseRepo := new(mockDoseLogRepo)
		handler := NewListDosesHandler(medRepo, doseRepo)

		med := createTestMedication(t, userID, "Metformin", domain.Continuous{}, domain.Daily{})
		logs := []*domain.DoseLog{
			dose(t, med, 16, domain.StatusTaken),
			dose(t, med, 4, domain.StatusMissed),
		}
		medRepo.On("FindByUserID", mock.Anything, userID, true).Return([]*domain.Medication{med}, nil)
		doseRepo.On("ListByUser", mock.Anything, userID, from, fixedNow).Return(logs, nil)

		result, err := handler.Handle(context.Background(), ListDosesQuery{
			UserID:   userID,
			From:     from,
			To:       fixedNow,
			Statuses: []domain.DoseStatus{domain.StatusMissed},
		})

		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, "Metformin", result[0].MedicationName)
		assert.Equal(t, "missed", result[0].Status)
		assert.Nil(t, result[0].TakenAt)
	})

	t.Run("rejects another user's medication", func(t *testing.T) {
		medRepo := new(mockMedicationRepo)
		handler := NewListDosesHandler(medRepo, new(mockDoseLogRepo))

		medRepo.On("FindByUserID", mock.Anything, userID, true).Return([]*domain.Medication{}, nil)

		_, err := handler.Handle(context.Background(), ListDosesQuery{UserID: userID, MedicationID: uuid.New()})
		assert.ErrorIs(t, err, ErrMedicationNotFound)
	})
}

func TestGetAdherenceHandler_Handle(t *testing.T) {
	userID := uuid.New()

	t.Run("computes the rate over settled doses", func(t *testing.T) {
		medRepo := new(mockMedicationRepo)
		doseRepo := new(mockDoseLogRepo)
		handler := NewGetAdherenceHandler(medRepo, doseRepo)

		med := createTestMedication(t, userID, "Metformin", domain.Continuous{}, domain.Daily{})
		logs := []*domain.DoseLog{
			dose(t, med, 60, domain.StatusTaken),
			dose(t, med, 48, domain.StatusTaken),
			dose(t, med, 36, domain.StatusTaken),
			dose(t, med, 24, domain.StatusSkipped),
			dose(t, med, 12, domain.StatusMissed),
			dose(t, med, 1, domain.StatusPending),
		}
		medRepo.On("FindByID", mock.Anything, med.ID()).Return(med, nil)
		doseRepo.On("ListByMedication", mock.Anything, med.ID(), fixedNow.AddDate(0, 0, -7), fixedNow).Return(logs, nil)

		result, err := handler.Handle(context.Background(), GetAdherenceQuery{
			MedicationID: med.ID(),
			UserID:       userID,
			Days:         7,
			Now:          fixedNow,
		})

		require.NoError(t, err)
		assert.Equal(t, 3, result.Taken)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 1, result.Missed)
		assert.Equal(t, 1, result.Pending)
		assert.InDelta(t, 60.0, result.Rate, 0.001)
	})

	t.Run("no settled doses", func(t *testing.T) {
		medRepo := new(mockMedicationRepo)
		doseRepo := new(mockDoseLogRepo)
		handler := NewGetAdherenceHandler(medRepo, doseRepo)

		med := createTestMedication(t, userID, "Metformin", domain.Continuous{}, domain.Daily{})
		medRepo.On("FindByID", mock.Anything, med.ID()).Return(med, nil)
		doseRepo.On("ListByMedication", mock.Anything, med.ID(), mock.Anything, mock.Anything).Return([]*domain.DoseLog{}, nil)

		result, err := handler.Handle(context.Background(), GetAdherenceQuery{MedicationID: med.ID(), UserID: userID, Days: 30, Now: fixedNow})

		require.NoError(t, err)
		assert.Zero(t, result.Rate)
	})

	t.Run("hides other users' medications", func(t *testing.T) {
		medRepo := new(mockMedicationRepo)
		handler := NewGetAdherenceHandler(medRepo, new(mockDoseLogRepo))

		med := createTestMedication(t, uuid.New(), "Metformin", domain.Continuous{}, domain.Daily{})
		medRepo.On("FindByID", mock.Anything, med.ID()).Return(med, nil)

		_, err := handler.Handle(context.Background(), GetAdherenceQuery{MedicationID: med.ID(), UserID: userID, Days: 7})
		assert.ErrorIs(t, err, ErrMedicationNotFound)
	})

	t.Run("invalid period", func(t *testing.T) {
		handler := NewGetAdherenceHandler(new(mockMedicationRepo), new(mockDoseLogRepo))
		_, err := handler.Handle(context.Background(), GetAdherenceQuery{Days: 0})
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})
}
