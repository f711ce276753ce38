// internal/store/notifications.go
package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/models"
)

// NotificationStore persists notifications. The same rows serve as the dispatcher's dedup ledger.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// RecentExists reports whether a notification of type t for key was created after since.
// Rows without a schedule match the global key.
func (s *NotificationStore) RecentExists(ctx context.Context, key string, t models.NotificationType, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE COALESCE(schedule_id, $1) = $2 AND notification_type = $3 AND created_at > $4`,
		models.GlobalNotificationKey, key, t.String(), since).Scan(&count)
	if err != nil {
		return false, apperrors.NewStoreReadError("notification dedup lookup", err)
	}
	return count > 0, nil
}

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, notification_type, title, body, priority, schedule_id, patient_id,
			is_read, is_dismissed, action_url, created_at, read_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.Type.String(), n.Title, n.Body, n.Priority.String(), n.ScheduleID, n.PatientID,
		n.IsRead, n.IsDismissed, n.ActionURL, n.CreatedAt, n.ReadAt)
	if err != nil {
		return apperrors.NewStoreWriteError("insert notification", err)
	}
	return nil
}

// ListUnread returns undismissed unread notifications, newest first.
func (s *NotificationStore) ListUnread(ctx context.Context, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, notification_type, title, body, priority, schedule_id, patient_id,
			is_read, is_dismissed, action_url, created_at, read_at
		FROM notifications
		WHERE is_read = FALSE AND is_dismissed = FALSE
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apperrors.NewStoreReadError("list notifications", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var (
			n                 models.Notification
			typ, prio         string
			scheduleID, patID sql.NullString
			actionURL         sql.NullString
			readAt            sql.NullTime
		)
		if err := rows.Scan(&n.ID, &typ, &n.Title, &n.Body, &prio, &scheduleID, &patID,
			&n.IsRead, &n.IsDismissed, &actionURL, &n.CreatedAt, &readAt); err != nil {
			return nil, apperrors.NewStoreReadError("scan notification", err)
		}
		if n.Type, err = models.ParseNotificationType(typ); err != nil {
			return nil, apperrors.NewStoreReadError("scan notification", err)
		}
		if n.Priority, err = models.ParseNotificationPriority(prio); err != nil {
			return nil, apperrors.NewStoreReadError("scan notification", err)
		}
		n.ScheduleID = nullableString(scheduleID)
		n.PatientID = nullableString(patID)
		n.ActionURL = nullableString(actionURL)
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreReadError("iterate notifications", err)
	}
	return out, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, "mark notification read", id,
		`UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE id = $1`, at)
}

func (s *NotificationStore) Dismiss(ctx context.Context, id string) error {
	return s.update(ctx, "dismiss notification", id,
		`UPDATE notifications SET is_dismissed = TRUE WHERE id = $1`)
}

func (s *NotificationStore) update(ctx context.Context, op, id, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return apperrors.NewStoreWriteError(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewRecordNotFoundError("notification", id)
	}
	return nil
}
