package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	sharedDomain "github.com/felixgeelhaar/dosely/internal/shared/domain"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// DoseLogRepository implements domain.DoseLogRepository. Times are stored as
// unix seconds, so every comparison is exact to the second.
type DoseLogRepository struct {
	conn database.Connection
}

// NewDoseLogRepository creates a dose log repository on conn.
func NewDoseLogRepository(conn database.Connection) *DoseLogRepository {
	return &DoseLogRepository{conn: conn}
}

var _ domain.DoseLogRepository = (*DoseLogRepository)(nil)

const doseLogColumns = `id, medication_id, schedule_id, user_id, planned_at, taken_at, status, created_at, updated_at`

func (r *DoseLogRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *DoseLogRepository) q(query string) string {
	return r.conn.Driver().Rebind(query)
}

func (r *DoseLogRepository) CountFutureLogs(ctx context.Context, medicationID uuid.UUID, from time.Time) (int, error) {
	var n int64
	err := r.exec(ctx).QueryRow(ctx, r.q(`
		SELECT COUNT(*) FROM dose_logs WHERE medication_id = ? AND planned_at >= ?`),
		medicationID.String(), from.Unix(),
	).Scan(&n)
	return int(n), err
}

func (r *DoseLogRepository) LatestPlannedAt(ctx context.Context, medicationID uuid.UUID, from time.Time) (*time.Time, error) {
	var latest sql.NullInt64
	err := r.exec(ctx).QueryRow(ctx, r.q(`
		SELECT MAX(planned_at) FROM dose_logs WHERE medication_id = ? AND planned_at >= ?`),
		medicationID.String(), from.Unix(),
	).Scan(&latest)
	if err != nil {
		return nil, err
	}
	return unixPtr(latest), nil
}

func (r *DoseLogRepository) GetLogAt(ctx context.Context, medicationID uuid.UUID, plannedAt time.Time) (*domain.DoseLog, error) {
	return r.one(ctx, `SELECT `+doseLogColumns+` FROM dose_logs WHERE medication_id = ? AND planned_at = ?`,
		medicationID.String(), plannedAt.Unix())
}

func (r *DoseLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.DoseLog, error) {
	return r.one(ctx, `SELECT `+doseLogColumns+` FROM dose_logs WHERE id = ?`, id.String())
}

// InsertLog relies on the (medication_id, planned_at) unique key, so
// concurrent materializers cannot create duplicates.
func (r *DoseLogRepository) InsertLog(ctx context.Context, log *domain.DoseLog) (bool, error) {
	var scheduleID any
	if log.ScheduleID() != uuid.Nil {
		scheduleID = log.ScheduleID().String()
	}
	res, err := r.exec(ctx).Exec(ctx, r.q(`
		INSERT INTO dose_logs (`+doseLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (medication_id, planned_at) DO NOTHING`),
		log.ID().String(), log.MedicationID().String(), scheduleID, log.UserID().String(),
		log.PlannedAt().Unix(), unixOrNil(log.TakenAt()), log.Status().String(),
		log.CreatedAt().Unix(), log.UpdatedAt().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert dose log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *DoseLogRepository) GetPendingLogsBefore(ctx context.Context, cutoff time.Time) ([]*domain.DoseLog, error) {
	return r.list(ctx, `
		SELECT `+doseLogColumns+`
		FROM dose_logs
		WHERE status = ? AND planned_at <= ?
		ORDER BY planned_at, id`,
		domain.StatusPending.String(), cutoff.Unix())
}

// UpdateStatus is a compare-and-set on the stored status.
func (r *DoseLogRepository) UpdateStatus(ctx context.Context, log *domain.DoseLog, from domain.DoseStatus) (bool, error) {
	res, err := r.exec(ctx).Exec(ctx, r.q(`
		UPDATE dose_logs
		SET status = ?, taken_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		log.Status().String(), unixOrNil(log.TakenAt()), log.UpdatedAt().Unix(),
		log.ID().String(), from.String(),
	)
	if err != nil {
		return false, fmt.Errorf("update dose log %s: %w", log.ID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *DoseLogRepository) DeleteFutureLogs(ctx context.Context, medicationID uuid.UUID, from time.Time) (int64, error) {
	res, err := r.exec(ctx).Exec(ctx, r.q(`
		DELETE FROM dose_logs WHERE medication_id = ? AND status = ? AND planned_at >= ?`),
		medicationID.String(), domain.StatusPending.String(), from.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *DoseLogRepository) ListByMedication(ctx context.Context, medicationID uuid.UUID, from, to time.Time) ([]*domain.DoseLog, error) {
	return r.list(ctx, `
		SELECT `+doseLogColumns+`
		FROM dose_logs
		WHERE medication_id = ? AND planned_at >= ? AND planned_at < ?
		ORDER BY planned_at, id`,
		medicationID.String(), from.Unix(), to.Unix())
}

func (r *DoseLogRepository) ListByUser(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.DoseLog, error) {
	return r.list(ctx, `
		SELECT `+doseLogColumns+`
		FROM dose_logs
		WHERE user_id = ? AND planned_at >= ? AND planned_at < ?
		ORDER BY planned_at, id`,
		userID.String(), from.Unix(), to.Unix())
}

func (r *DoseLogRepository) one(ctx context.Context, query string, args ...any) (*domain.DoseLog, error) {
	log, err := scanDoseLog(r.exec(ctx).QueryRow(ctx, r.q(query), args...))
	if database.IsNoRows(err) {
		return nil, nil
	}
	return log, err
}

func (r *DoseLogRepository) list(ctx context.Context, query string, args ...any) ([]*domain.DoseLog, error) {
	rows, err := r.exec(ctx).Query(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.DoseLog
	for rows.Next() {
		log, err := scanDoseLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanDoseLog(row database.Row) (*domain.DoseLog, error) {
	var (
		id, medicationID, userID, status string
		scheduleID                       sql.NullString
		plannedAt, createdAt, updatedAt  int64
		takenAt                          sql.NullInt64
	)
	if err := row.Scan(&id, &medicationID, &scheduleID, &userID, &plannedAt, &takenAt, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	logID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("dose log id %q: %w", id, err)
	}
	medID, err := uuid.Parse(medicationID)
	if err != nil {
		return nil, fmt.Errorf("dose log %s medication id: %w", id, err)
	}
	owner, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("dose log %s user id: %w", id, err)
	}
	var schedID uuid.UUID
	if scheduleID.Valid {
		if schedID, err = uuid.Parse(scheduleID.String); err != nil {
			return nil, fmt.Errorf("dose log %s schedule id: %w", id, err)
		}
	}
	st, err := domain.ParseDoseStatus(status)
	if err != nil {
		return nil, err
	}

	entity := sharedDomain.RehydrateBaseEntity(logID, time.Unix(createdAt, 0).UTC(), time.Unix(updatedAt, 0).UTC())
	return domain.RehydrateDoseLog(entity, medID, schedID, owner, time.Unix(plannedAt, 0).UTC(), unixPtr(takenAt), st), nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
