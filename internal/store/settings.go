// internal/store/settings.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/models"

	"github.com/google/uuid"
)

// SettingsStore persists the single notification settings row.
type SettingsStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db, now: time.Now}
}

const selectSettings = `
	SELECT id, enabled, pre_reminder_minutes, missed_reminder_enabled, missed_reminder_delay_minutes,
		daily_summary_enabled, daily_summary_time, sound_enabled, sound_preset,
		quiet_hours_start, quiet_hours_end, created_at, updated_at
	FROM notification_settings
	ORDER BY created_at
	LIMIT 1`

// Get returns the settings, creating the default row on first access.
func (s *SettingsStore) Get(ctx context.Context) (*models.NotificationSettings, error) {
	var (
		out        models.NotificationSettings
		preset     string
		quietStart sql.NullString
		quietEnd   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, selectSettings).Scan(
		&out.ID, &out.Enabled, &out.PreReminderMinutes, &out.MissedReminderEnabled,
		&out.MissedReminderDelayMinutes, &out.DailySummaryEnabled, &out.DailySummaryTime,
		&out.SoundEnabled, &preset, &quietStart, &quietEnd, &out.CreatedAt, &out.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return s.createDefaults(ctx)
	}
	if err != nil {
		return nil, apperrors.NewStoreReadError("notification settings", err)
	}

	if out.SoundPreset, err = models.ParseSoundPreset(preset); err != nil {
		return nil, apperrors.NewStoreReadError("notification settings", err)
	}
	out.QuietHoursStart = nullableString(quietStart)
	out.QuietHoursEnd = nullableString(quietEnd)
	return &out, nil
}

func (s *SettingsStore) createDefaults(ctx context.Context) (*models.NotificationSettings, error) {
	def := models.DefaultNotificationSettings()
	def.ID = uuid.New().String()
	def.CreatedAt = s.now().UTC()
	def.UpdatedAt = def.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_settings (
			id, enabled, pre_reminder_minutes, missed_reminder_enabled, missed_reminder_delay_minutes,
			daily_summary_enabled, daily_summary_time, sound_enabled, sound_preset,
			quiet_hours_start, quiet_hours_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		def.ID, def.Enabled, def.PreReminderMinutes, def.MissedReminderEnabled,
		def.MissedReminderDelayMinutes, def.DailySummaryEnabled, def.DailySummaryTime,
		def.SoundEnabled, def.SoundPreset.String(), def.QuietHoursStart, def.QuietHoursEnd,
		def.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.NewStoreWriteError("create default notification settings", err)
	}
	return &def, nil
}

// Save updates the settings row in place.
func (s *SettingsStore) Save(ctx context.Context, in *models.NotificationSettings) error {
	in.UpdatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_settings SET
			enabled = $2, pre_reminder_minutes = $3, missed_reminder_enabled = $4,
			missed_reminder_delay_minutes = $5, daily_summary_enabled = $6, daily_summary_time = $7,
			sound_enabled = $8, sound_preset = $9, quiet_hours_start = $10, quiet_hours_end = $11,
			updated_at = $12
		WHERE id = $1`,
		in.ID, in.Enabled, in.PreReminderMinutes, in.MissedReminderEnabled,
		in.MissedReminderDelayMinutes, in.DailySummaryEnabled, in.DailySummaryTime,
		in.SoundEnabled, in.SoundPreset.String(), in.QuietHoursStart, in.QuietHoursEnd,
		in.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewStoreWriteError("update notification settings", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewRecordNotFoundError("notification settings", in.ID)
	}
	return nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
