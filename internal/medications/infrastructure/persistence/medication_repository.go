// Package persistence stores medications and dose logs on any registered
// database backend. Statements are written once with "?" placeholders and
// rebound per driver.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	sharedDomain "github.com/felixgeelhaar/dosely/internal/shared/domain"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// Stored kinds for the closed schedule and reminder variants.
const (
	recurrenceDaily    = "daily"
	recurrenceWeekdays = "weekdays"
	recurrenceInterval = "interval"

	remindersTimes  = "times"
	remindersHourly = "hourly"
)

// MedicationRepository implements domain.MedicationRepository.
type MedicationRepository struct {
	conn database.Connection
}

// NewMedicationRepository creates a medication repository on conn.
func NewMedicationRepository(conn database.Connection) *MedicationRepository {
	return &MedicationRepository{conn: conn}
}

var _ domain.MedicationRepository = (*MedicationRepository)(nil)

const medicationColumns = `id, user_id, name, dosage, instructions, as_needed, archived,
	schedule_id, start_date, duration_days, recurrence_kind, recurrence_weekdays, recurrence_interval,
	reminder_kind, reminder_times, reminder_interval_minutes, reminder_window_start, reminder_window_end,
	version, created_at, updated_at`

func (r *MedicationRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *MedicationRepository) q(query string) string {
	return r.conn.Driver().Rebind(query)
}

// medicationRow is the flattened storage form of a medication.
type medicationRow struct {
	scheduleID, startDate, recurrenceKind, reminderKind sql.NullString

	durationDays, recurrenceInterval, reminderInterval int64
	recurrenceWeekdays, reminderTimes                  string
	windowStart, windowEnd                             string
}

func flattenMedication(med *domain.Medication) medicationRow {
	var row medicationRow
	if s := med.Schedule(); s != nil {
		row.scheduleID = sql.NullString{String: s.ID().String(), Valid: true}
		row.startDate = sql.NullString{String: s.StartDate().String(), Valid: true}
		if fixed, ok := s.Duration().(domain.FixedDays); ok {
			row.durationDays = int64(fixed.Days)
		}
		switch rec := s.Recurrence().(type) {
		case domain.Daily:
			row.recurrenceKind = sql.NullString{String: recurrenceDaily, Valid: true}
		case domain.SpecificWeekdays:
			row.recurrenceKind = sql.NullString{String: recurrenceWeekdays, Valid: true}
			row.recurrenceWeekdays = rec.Days.String()
		case domain.IntervalDays:
			row.recurrenceKind = sql.NullString{String: recurrenceInterval, Valid: true}
			row.recurrenceInterval = int64(rec.Every)
		}
	}

	switch rem := med.Reminders().(type) {
	case domain.DailyTimes:
		row.reminderKind = sql.NullString{String: remindersTimes, Valid: true}
		times := rem.Expand()
		parts := make([]string, len(times))
		for i, t := range times {
			parts[i] = t.String()
		}
		row.reminderTimes = strings.Join(parts, ",")
	case domain.HourlyWindow:
		row.reminderKind = sql.NullString{String: remindersHourly, Valid: true}
		row.reminderInterval = int64(rem.Interval() / time.Minute)
		row.windowStart = rem.Start().String()
		row.windowEnd = rem.End().String()
	}
	return row
}

// Save upserts med and bumps its version.
func (r *MedicationRepository) Save(ctx context.Context, med *domain.Medication) error {
	row := flattenMedication(med)
	version := med.Version() + 1

	_, err := r.exec(ctx).Exec(ctx, r.q(`
		INSERT INTO medications (`+medicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			dosage = excluded.dosage,
			instructions = excluded.instructions,
			as_needed = excluded.as_needed,
			archived = excluded.archived,
			schedule_id = excluded.schedule_id,
			start_date = excluded.start_date,
			duration_days = excluded.duration_days,
			recurrence_kind = excluded.recurrence_kind,
			recurrence_weekdays = excluded.recurrence_weekdays,
			recurrence_interval = excluded.recurrence_interval,
			reminder_kind = excluded.reminder_kind,
			reminder_times = excluded.reminder_times,
			reminder_interval_minutes = excluded.reminder_interval_minutes,
			reminder_window_start = excluded.reminder_window_start,
			reminder_window_end = excluded.reminder_window_end,
			version = excluded.version,
			updated_at = excluded.updated_at`),
		med.ID().String(), med.UserID().String(), med.Name(), med.Dosage(), med.Instructions(),
		boolToInt(med.IsAsNeeded()), boolToInt(med.IsArchived()),
		row.scheduleID, row.startDate, row.durationDays, row.recurrenceKind, row.recurrenceWeekdays, row.recurrenceInterval,
		row.reminderKind, row.reminderTimes, row.reminderInterval, row.windowStart, row.windowEnd,
		version, med.CreatedAt().Unix(), med.UpdatedAt().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save medication %s: %w", med.ID(), err)
	}
	med.IncrementVersion()
	return nil
}

func (r *MedicationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Medication, error) {
	med, err := scanMedication(r.exec(ctx).QueryRow(ctx, r.q(`
		SELECT `+medicationColumns+` FROM medications WHERE id = ?`), id.String()))
	if database.IsNoRows(err) {
		return nil, nil
	}
	return med, err
}

func (r *MedicationRepository) FindByUserID(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]*domain.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE user_id = ?`
	if !includeArchived {
		query += ` AND archived = 0`
	}
	return r.list(ctx, query+` ORDER BY created_at, id`, userID.String())
}

func (r *MedicationRepository) FindSchedulable(ctx context.Context) ([]*domain.Medication, error) {
	return r.list(ctx, `
		SELECT `+medicationColumns+`
		FROM medications
		WHERE archived = 0
		  AND as_needed = 0
		  AND schedule_id IS NOT NULL
		  AND reminder_kind IS NOT NULL
		ORDER BY created_at, id`)
}

func (r *MedicationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := r.exec(ctx)
	if _, err := exec.Exec(ctx, r.q(`DELETE FROM dose_logs WHERE medication_id = ?`), id.String()); err != nil {
		return err
	}
	_, err := exec.Exec(ctx, r.q(`DELETE FROM medications WHERE id = ?`), id.String())
	return err
}

func (r *MedicationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Medication, error) {
	rows, err := r.exec(ctx).Query(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []*domain.Medication
	for rows.Next() {
		med, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, med)
	}
	return meds, rows.Err()
}

func scanMedication(row database.Row) (*domain.Medication, error) {
	var (
		id, userID, name, dosage, instructions string
		asNeeded, archived                     int64
		stored                                 medicationRow
		version, createdAt, updatedAt          int64
	)
	err := row.Scan(&id, &userID, &name, &dosage, &instructions, &asNeeded, &archived,
		&stored.scheduleID, &stored.startDate, &stored.durationDays, &stored.recurrenceKind,
		&stored.recurrenceWeekdays, &stored.recurrenceInterval,
		&stored.reminderKind, &stored.reminderTimes, &stored.reminderInterval,
		&stored.windowStart, &stored.windowEnd,
		&version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	medID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("medication id %q: %w", id, err)
	}
	owner, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("medication %s user id: %w", id, err)
	}
	schedule, err := stored.schedule()
	if err != nil {
		return nil, fmt.Errorf("medication %s schedule: %w", id, err)
	}
	reminders, err := stored.reminders()
	if err != nil {
		return nil, fmt.Errorf("medication %s reminders: %w", id, err)
	}

	entity := sharedDomain.RehydrateBaseEntity(medID, time.Unix(createdAt, 0).UTC(), time.Unix(updatedAt, 0).UTC())
	return domain.RehydrateMedication(
		sharedDomain.RehydrateBaseAggregateRoot(entity, int(version)),
		owner, name, dosage, instructions,
		asNeeded != 0, schedule, reminders, archived != 0,
	), nil
}

func (row medicationRow) schedule() (*domain.Schedule, error) {
	if !row.scheduleID.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(row.scheduleID.String)
	if err != nil {
		return nil, err
	}
	if !row.startDate.Valid {
		return nil, domain.ErrScheduleMissingStart
	}
	start, err := domain.ParseDate(row.startDate.String)
	if err != nil {
		return nil, err
	}

	var duration domain.DurationPolicy = domain.Continuous{}
	if row.durationDays > 0 {
		duration = domain.FixedDays{Days: int(row.durationDays)}
	}

	var recurrence domain.Recurrence
	switch row.recurrenceKind.String {
	case recurrenceDaily:
		recurrence = domain.Daily{}
	case recurrenceWeekdays:
		days, err := parseWeekdays(row.recurrenceWeekdays)
		if err != nil {
			return nil, err
		}
		recurrence = domain.SpecificWeekdays{Days: days}
	case recurrenceInterval:
		recurrence = domain.IntervalDays{Every: int(row.recurrenceInterval)}
	default:
		return nil, fmt.Errorf("%w: recurrence %q", domain.ErrScheduleUnknownKind, row.recurrenceKind.String)
	}
	return domain.RehydrateSchedule(id, start, duration, recurrence)
}

func (row medicationRow) reminders() (domain.ReminderConfig, error) {
	if !row.reminderKind.Valid {
		return nil, nil
	}
	switch row.reminderKind.String {
	case remindersTimes:
		var times []domain.TimeOfDay
		for _, part := range strings.Split(row.reminderTimes, ",") {
			if part == "" {
				continue
			}
			t, err := domain.ParseTimeOfDay(part)
			if err != nil {
				return nil, err
			}
			times = append(times, t)
		}
		return domain.NewDailyTimes(times...)
	case remindersHourly:
		start, err := domain.ParseTimeOfDay(row.windowStart)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseTimeOfDay(row.windowEnd)
		if err != nil {
			return nil, err
		}
		return domain.NewHourlyWindow(time.Duration(row.reminderInterval)*time.Minute, start, end)
	}
	return nil, fmt.Errorf("unknown reminder kind %q", row.reminderKind.String)
}

func parseWeekdays(s string) (domain.WeekdaySet, error) {
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		d, ok := domain.ParseWeekday(part)
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", part)
		}
		days = append(days, d)
	}
	return domain.NewWeekdaySet(days...), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
