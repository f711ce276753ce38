// internal/store/schedules.go
package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/models"

	"github.com/lib/pq"
)

// ScheduleStore reads medication schedules and their intake logs.
type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

// ActiveSchedulesOn returns schedules whose date range contains day.
func (s *ScheduleStore) ActiveSchedulesOn(ctx context.Context, day time.Time) ([]models.MedicationSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, prescription_id, start_date, end_date, times_per_day, dose_times, notes, created_at
		FROM medication_schedules
		WHERE start_date <= $1 AND end_date >= $1
		ORDER BY id`, day.Format(models.DateLayout))
	if err != nil {
		return nil, apperrors.NewStoreReadError("active schedules", err)
	}
	defer rows.Close()

	var out []models.MedicationSchedule
	for rows.Next() {
		var sch models.MedicationSchedule
		if err := rows.Scan(
			&sch.ID, &sch.PatientID, &sch.PrescriptionID, &sch.StartDate, &sch.EndDate,
			&sch.TimesPerDay, pq.Array(&sch.DoseTimes), &sch.Notes, &sch.CreatedAt,
		); err != nil {
			return nil, apperrors.NewStoreReadError("scan schedule", err)
		}
		out = append(out, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreReadError("iterate schedules", err)
	}
	return out, nil
}

// HasTakenNear reports whether a Taken log for the schedule lies within window of doseAt.
func (s *ScheduleStore) HasTakenNear(ctx context.Context, scheduleID string, doseAt time.Time, window time.Duration) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM medication_logs
			WHERE schedule_id = $1 AND status = $2 AND taken_at BETWEEN $3 AND $4
		)`, scheduleID, models.MedicationTaken.String(), doseAt.Add(-window), doseAt.Add(window)).Scan(&exists)
	if err != nil {
		return false, apperrors.NewStoreReadError("medication log lookup", err)
	}
	return exists, nil
}

// RecordLog stores an intake log entry.
func (s *ScheduleStore) RecordLog(ctx context.Context, log *models.MedicationLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medication_logs (id, schedule_id, taken_at, status, notes)
		VALUES ($1, $2, $3, $4, $5)`,
		log.ID, log.ScheduleID, log.TakenAt, log.Status.String(), log.Notes)
	if err != nil {
		return apperrors.NewStoreWriteError("insert medication log", err)
	}
	return nil
}
