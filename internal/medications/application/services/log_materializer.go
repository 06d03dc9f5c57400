package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/google/uuid"
)

// HorizonConfig controls how far ahead doses are planned.
type HorizonConfig struct {
	// MinFutureDays is the coverage below which a top-up runs.
	MinFutureDays int
	// HorizonDays is the length of one top-up window.
	HorizonDays int
	// Location is the zone dose days and reminder times are read in.
	Location *time.Location
}

// DefaultHorizonConfig returns a weekly top-up window.
func DefaultHorizonConfig() HorizonConfig {
	return HorizonConfig{
		MinFutureDays: 7,
		HorizonDays:   7,
		Location:      time.Local,
	}
}

// HorizonResult describes one materialization pass for a medication.
type HorizonResult struct {
	MedicationID uuid.UUID
	ScheduleID   uuid.UUID
	// Coverage is the number of days from today that already have planned doses.
	Coverage int
	// Skipped is set when coverage met the threshold and nothing was scanned.
	Skipped bool
	// Expired is set when a fixed-length schedule has no days left.
	Expired bool
	// Retained counts upcoming rows that survived a purge, set by Rematerialize.
	Retained    int
	WindowStart domain.Date
	WindowEnd   domain.Date
	Inserted    []*domain.DoseLog
	Duplicates  int
}

// LogMaterializer keeps a rolling horizon of pending doses per medication.
// It holds no state between calls; the dose log store is the only record.
type LogMaterializer struct {
	logs   domain.DoseLogRepository
	config HorizonConfig
	logger *slog.Logger
}

// NewLogMaterializer creates a materializer.
func NewLogMaterializer(logs domain.DoseLogRepository, config HorizonConfig, logger *slog.Logger) *LogMaterializer {
	if config.Location == nil {
		config.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMaterializer{
		logs:   logs,
		config: config,
		logger: logger,
	}
}

// Config returns the horizon settings in use.
func (m *LogMaterializer) Config() HorizonConfig {
	return m.config
}

// EnsureHorizon tops up med's pending doses when coverage runs low. Doses
// planned before now are never created, and a slot that already has a log is
// left alone, so the pass can be retried or run concurrently.
func (m *LogMaterializer) EnsureHorizon(ctx context.Context, med *domain.Medication, now time.Time) (*HorizonResult, error) {
	result := &HorizonResult{MedicationID: med.ID()}
	if !med.NeedsMaterialization() {
		result.Skipped = true
		return result, nil
	}

	result.ScheduleID = med.Schedule().ID()

	loc := m.config.Location
	now = now.In(loc)
	today := domain.DateOf(now)

	coverage, err := m.coverage(ctx, med.ID(), now, today, loc)
	if err != nil {
		return nil, err
	}
	result.Coverage = coverage
	if coverage >= m.config.MinFutureDays {
		result.Skipped = true
		return result, nil
	}

	if err := m.fill(ctx, med, now, today.AddDays(coverage), result); err != nil {
		return nil, err
	}
	return result, nil
}

// Rematerialize plans med's horizon from today regardless of coverage. It
// follows PurgeFuture after a schedule edit: rows that survived the purge
// (doses already taken or skipped ahead of time) keep their slots, and every
// other upcoming slot of the new rule is planned.
func (m *LogMaterializer) Rematerialize(ctx context.Context, med *domain.Medication, now time.Time) (*HorizonResult, error) {
	result := &HorizonResult{MedicationID: med.ID()}
	if !med.NeedsMaterialization() {
		result.Skipped = true
		return result, nil
	}
	result.ScheduleID = med.Schedule().ID()

	loc := m.config.Location
	now = now.In(loc)

	retained, err := m.logs.CountFutureLogs(ctx, med.ID(), now)
	if err != nil {
		return nil, fmt.Errorf("count retained doses: %w", err)
	}
	result.Retained = retained

	if err := m.fill(ctx, med, now, domain.DateOf(now), result); err != nil {
		return nil, err
	}
	return result, nil
}

// fill plans every due slot from windowStart through the horizon, clamped
// to the schedule's bounds. Slots before now are skipped.
func (m *LogMaterializer) fill(ctx context.Context, med *domain.Medication, now time.Time, windowStart domain.Date, result *HorizonResult) error {
	schedule := med.Schedule()
	loc := m.config.Location

	if windowStart.Before(schedule.StartDate()) {
		windowStart = schedule.StartDate()
	}
	windowEnd := windowStart.AddDays(m.config.HorizonDays)
	if end, ok := schedule.EndDate(); ok && end.Before(windowEnd) {
		windowEnd = end
	}
	result.WindowStart = windowStart
	result.WindowEnd = windowEnd

	if windowEnd.Before(windowStart) {
		result.Expired = true
		m.logger.DebugContext(ctx, "schedule expired",
			"medication_id", med.ID(),
			"window_start", windowStart.String(),
		)
		return nil
	}

	times := med.Reminders().Expand()
	for date := windowStart; !date.After(windowEnd); date = date.AddDays(1) {
		if !schedule.IsDue(date) {
			continue
		}
		for _, tod := range times {
			plannedAt := date.At(tod, loc)
			if plannedAt.Before(now) {
				continue
			}
			if err := m.plan(ctx, med, plannedAt, result); err != nil {
				return err
			}
		}
	}

	if len(result.Inserted) > 0 {
		med.AddDomainEvent(domain.NewDosesMaterialized(med, windowStart, windowEnd, len(result.Inserted)))
	}

	m.logger.DebugContext(ctx, "horizon ensured",
		"medication_id", med.ID(),
		"coverage", result.Coverage,
		"retained", result.Retained,
		"window_start", windowStart.String(),
		"window_end", windowEnd.String(),
		"inserted", len(result.Inserted),
		"duplicates", result.Duplicates,
	)
	return nil
}

// coverage is the number of days from today up to the last dose planned at
// or after now, or zero when nothing upcoming is planned. Earlier rows from
// today do not count.
func (m *LogMaterializer) coverage(ctx context.Context, medicationID uuid.UUID, now time.Time, today domain.Date, loc *time.Location) (int, error) {
	latest, err := m.logs.LatestPlannedAt(ctx, medicationID, now)
	if err != nil {
		return 0, fmt.Errorf("read coverage: %w", err)
	}
	if latest == nil {
		return 0, nil
	}
	return domain.DateOf(latest.In(loc)).DaysSince(today) + 1, nil
}

func (m *LogMaterializer) plan(ctx context.Context, med *domain.Medication, plannedAt time.Time, result *HorizonResult) error {
	existing, err := m.logs.GetLogAt(ctx, med.ID(), plannedAt)
	if err != nil {
		return fmt.Errorf("check dose at %s: %w", plannedAt.Format(time.RFC3339), err)
	}
	if existing != nil {
		result.Duplicates++
		return nil
	}

	log := domain.NewPendingDose(med, plannedAt)
	inserted, err := m.logs.InsertLog(ctx, log)
	if err != nil {
		return fmt.Errorf("insert dose at %s: %w", plannedAt.Format(time.RFC3339), err)
	}
	if !inserted {
		result.Duplicates++
		return nil
	}
	result.Inserted = append(result.Inserted, log)
	return nil
}

// PurgeFuture drops med's pending doses planned at or after now. Past doses
// are history and stay untouched.
func (m *LogMaterializer) PurgeFuture(ctx context.Context, medicationID uuid.UUID, now time.Time) (int64, error) {
	n, err := m.logs.DeleteFutureLogs(ctx, medicationID, now)
	if err != nil {
		return 0, fmt.Errorf("purge future doses: %w", err)
	}
	if n > 0 {
		m.logger.DebugContext(ctx, "future doses purged", "medication_id", medicationID, "count", n)
	}
	return n, nil
}
