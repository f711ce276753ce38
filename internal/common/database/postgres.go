// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clinic-worker/internal/common/config"

	_ "github.com/lib/pq"
)

type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// schema holds the tables the scheduler and sync paths read and write.
// Patients and prescriptions are owned by the clinic application; only the
// columns consumed here are declared.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notification_settings (
		id TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL,
		pre_reminder_minutes INTEGER NOT NULL,
		missed_reminder_enabled BOOLEAN NOT NULL,
		missed_reminder_delay_minutes INTEGER NOT NULL,
		daily_summary_enabled BOOLEAN NOT NULL,
		daily_summary_time TEXT NOT NULL,
		sound_enabled BOOLEAN NOT NULL,
		sound_preset TEXT NOT NULL,
		quiet_hours_start TEXT,
		quiet_hours_end TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS medication_schedules (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		prescription_id TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		times_per_day INTEGER NOT NULL,
		dose_times TEXT[] NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS medication_logs (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL REFERENCES medication_schedules(id),
		taken_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_medication_logs_schedule_taken ON medication_logs (schedule_id, taken_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		notification_type TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		priority TEXT NOT NULL,
		schedule_id TEXT,
		patient_id TEXT,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		is_dismissed BOOLEAN NOT NULL DEFAULT FALSE,
		action_url TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		read_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_dedup ON notifications (notification_type, schedule_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS survey_responses (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		template_id TEXT NOT NULL,
		patient_id TEXT,
		respondent_name TEXT,
		answers JSONB NOT NULL,
		submitted_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the tables used by this service if they do not exist.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
