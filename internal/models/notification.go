// internal/models/notification.go
package models

import (
	"fmt"
	"time"
)

// GlobalNotificationKey is the dedup key used for notifications that are not
// tied to a medication schedule (the daily summary). It is never a schedule id.
const GlobalNotificationKey = "global"

type NotificationType int

const (
	NotificationTypeMedicationReminder NotificationType = iota
	NotificationTypeMissedMedication
	NotificationTypeDailySummary
)

func (t NotificationType) String() string {
	switch t {
	case NotificationTypeMedicationReminder:
		return "medication_reminder"
	case NotificationTypeMissedMedication:
		return "missed_medication"
	case NotificationTypeDailySummary:
		return "daily_summary"
	default:
		return fmt.Sprintf("notification_type(%d)", int(t))
	}
}

// ParseNotificationType maps the stored representation back to the enum.
func ParseNotificationType(s string) (NotificationType, error) {
	switch s {
	case "medication_reminder":
		return NotificationTypeMedicationReminder, nil
	case "missed_medication":
		return NotificationTypeMissedMedication, nil
	case "daily_summary":
		return NotificationTypeDailySummary, nil
	}
	return 0, fmt.Errorf("unknown notification type %q", s)
}

type NotificationPriority int

const (
	PriorityLow NotificationPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p NotificationPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

func ParseNotificationPriority(s string) (NotificationPriority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return 0, fmt.Errorf("unknown notification priority %q", s)
}

// Notification is both an inbox item and the dedup ledger entry for the scheduler.
type Notification struct {
	ID          string               `json:"id"`
	Type        NotificationType     `json:"-"`
	Title       string               `json:"title"`
	Body        string               `json:"body"`
	Priority    NotificationPriority `json:"-"`
	ScheduleID  *string              `json:"scheduleId,omitempty"`
	PatientID   *string              `json:"patientId,omitempty"`
	IsRead      bool                 `json:"isRead"`
	IsDismissed bool                 `json:"isDismissed"`
	ActionURL   *string              `json:"actionUrl,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	ReadAt      *time.Time           `json:"readAt,omitempty"`
}

// DedupKey returns the key the ledger matches on: the schedule id, or the
// global sentinel when the notification has no schedule.
func (n *Notification) DedupKey() string {
	if n.ScheduleID == nil || *n.ScheduleID == "" {
		return GlobalNotificationKey
	}
	return *n.ScheduleID
}

// NotificationView is the JSON shape served by the ops API.
type NotificationView struct {
	*Notification
	Type     string `json:"type"`
	Priority string `json:"priority"`
}

func (n *Notification) View() NotificationView {
	return NotificationView{Notification: n, Type: n.Type.String(), Priority: n.Priority.String()}
}
