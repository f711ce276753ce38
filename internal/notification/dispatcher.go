// Package notification decides when medication notifications fire and records them.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/common/metrics"
	"clinic-worker/internal/delivery"
	"clinic-worker/internal/models"

	"github.com/google/uuid"
)

const (
	reminderDedupWindow = 5 * time.Minute
	missedDedupWindow   = 30 * time.Minute
	summaryDedupWindow  = 60 * time.Minute

	fallbackPatientName = "patient"
)

type SettingsReader interface {
	Get(ctx context.Context) (*models.NotificationSettings, error)
}

type ScheduleReader interface {
	ActiveSchedulesOn(ctx context.Context, day time.Time) ([]models.MedicationSchedule, error)
	HasTakenNear(ctx context.Context, scheduleID string, doseAt time.Time, window time.Duration) (bool, error)
}

// Ledger answers dedup queries and stores fired notifications.
type Ledger interface {
	RecentExists(ctx context.Context, key string, t models.NotificationType, since time.Time) (bool, error)
	Create(ctx context.Context, n *models.Notification) error
}

type PatientDirectory interface {
	NameOf(ctx context.Context, patientID string) (string, error)
}

type Dispatcher struct {
	settings  SettingsReader
	schedules ScheduleReader
	ledger    Ledger
	patients  PatientDirectory
	display   delivery.Displayer
	logger    logger.Logger
	newID     func() string
}

func NewDispatcher(
	settings SettingsReader,
	schedules ScheduleReader,
	ledger Ledger,
	patients PatientDirectory,
	display delivery.Displayer,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		settings:  settings,
		schedules: schedules,
		ledger:    ledger,
		patients:  patients,
		display:   display,
		logger:    log.WithFields(map[string]interface{}{"component": "notification-dispatcher"}),
		newID:     func() string { return uuid.New().String() },
	}
}

// slot is one dose of one schedule at a concrete instant.
type slot struct {
	schedule models.MedicationSchedule
	doseAt   time.Time
}

// dueSlots returns the schedule doses whose dose time equals doseAt, taking
// schedules active on doseAt's own date.
func (d *Dispatcher) dueSlots(ctx context.Context, doseAt time.Time) ([]slot, error) {
	schedules, err := d.schedules.ActiveSchedulesOn(ctx, doseAt)
	if err != nil {
		return nil, err
	}

	want := minuteOfDay(doseAt)
	var out []slot
	for _, sch := range schedules {
		for _, dt := range sch.DoseTimes {
			m, err := parseClock(dt)
			if err != nil {
				d.logger.Warn("Skipping malformed dose time", map[string]interface{}{
					"scheduleId": sch.ID,
					"doseTime":   dt,
				})
				continue
			}
			if m == want {
				out = append(out, slot{schedule: sch, doseAt: doseAt})
			}
		}
	}
	return out, nil
}

// CheckDueReminders fires a reminder for every dose that is PreReminderMinutes away.
func (d *Dispatcher) CheckDueReminders(ctx context.Context, now time.Time) error {
	s, err := d.settings.Get(ctx)
	if err != nil {
		return err
	}
	if !s.Enabled {
		return nil
	}
	if IsQuiet(s, now) {
		metrics.NotificationsSuppressed.WithLabelValues(models.NotificationTypeMedicationReminder.String(), "quiet_hours").Inc()
		return nil
	}

	now = truncateMinute(now)
	slots, err := d.dueSlots(ctx, now.Add(time.Duration(s.PreReminderMinutes)*time.Minute))
	if err != nil {
		return err
	}

	var errs []error
	for _, sl := range slots {
		dup, err := d.ledger.RecentExists(ctx, sl.schedule.ID, models.NotificationTypeMedicationReminder, now.Add(-reminderDedupWindow))
		if err != nil {
			errs = append(errs, fmt.Errorf("reminder dedup for schedule %s: %w", sl.schedule.ID, err))
			continue
		}
		if dup {
			metrics.NotificationsSuppressed.WithLabelValues(models.NotificationTypeMedicationReminder.String(), "duplicate").Inc()
			continue
		}

		name := d.patientName(ctx, sl.schedule.PatientID)
		n := d.newNotification(models.NotificationTypeMedicationReminder, models.PriorityNormal, sl.schedule, now,
			"Medication reminder",
			fmt.Sprintf("%s has a dose due at %s (in %d min).\nPrescription: %s",
				name, sl.doseAt.Format(models.ClockLayout), s.PreReminderMinutes, sl.schedule.PrescriptionID))
		if err := d.fire(ctx, n, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckMissedDoses fires an alert for every dose MissedReminderDelayMinutes old with no Taken log near it.
func (d *Dispatcher) CheckMissedDoses(ctx context.Context, now time.Time) error {
	s, err := d.settings.Get(ctx)
	if err != nil {
		return err
	}
	if !s.Enabled || !s.MissedReminderEnabled {
		return nil
	}
	if IsQuiet(s, now) {
		metrics.NotificationsSuppressed.WithLabelValues(models.NotificationTypeMissedMedication.String(), "quiet_hours").Inc()
		return nil
	}

	now = truncateMinute(now)
	slots, err := d.dueSlots(ctx, now.Add(-time.Duration(s.MissedReminderDelayMinutes)*time.Minute))
	if err != nil {
		return err
	}

	var errs []error
	for _, sl := range slots {
		taken, err := d.schedules.HasTakenNear(ctx, sl.schedule.ID, sl.doseAt, models.DoseMatchWindow)
		if err != nil {
			errs = append(errs, fmt.Errorf("taken lookup for schedule %s: %w", sl.schedule.ID, err))
			continue
		}
		if taken {
			metrics.NotificationsSuppressed.WithLabelValues(models.NotificationTypeMissedMedication.String(), "taken").Inc()
			continue
		}

		dup, err := d.ledger.RecentExists(ctx, sl.schedule.ID, models.NotificationTypeMissedMedication, now.Add(-missedDedupWindow))
		if err != nil {
			errs = append(errs, fmt.Errorf("missed dedup for schedule %s: %w", sl.schedule.ID, err))
			continue
		}
		if dup {
			metrics.NotificationsSuppressed.WithLabelValues(models.NotificationTypeMissedMedication.String(), "duplicate").Inc()
			continue
		}

		name := d.patientName(ctx, sl.schedule.PatientID)
		n := d.newNotification(models.NotificationTypeMissedMedication, models.PriorityHigh, sl.schedule, now,
			"Missed medication",
			fmt.Sprintf("%s has not logged the %s dose.", name, sl.doseAt.Format(models.ClockLayout)))
		if err := d.fire(ctx, n, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckDailySummary fires the once-a-day digest at DailySummaryTime. Quiet hours do not apply.
func (d *Dispatcher) CheckDailySummary(ctx context.Context, now time.Time) error {
	s, err := d.settings.Get(ctx)
	if err != nil {
		return err
	}
	if !s.Enabled || !s.DailySummaryEnabled {
		return nil
	}
	at, err := parseClock(s.DailySummaryTime)
	if err != nil {
		return apperrors.NewSettingsInvalidError(err.Error())
	}
	now = truncateMinute(now)
	if minuteOfDay(now) != at {
		return nil
	}

	dup, err := d.ledger.RecentExists(ctx, models.GlobalNotificationKey, models.NotificationTypeDailySummary, now.Add(-summaryDedupWindow))
	if err != nil {
		return err
	}
	if dup {
		metrics.NotificationsSuppressed.WithLabelValues(models.NotificationTypeDailySummary.String(), "duplicate").Inc()
		return nil
	}

	total, taken, err := d.countToday(ctx, now)
	if err != nil {
		return err
	}

	n := &models.Notification{
		ID:        d.newID(),
		Type:      models.NotificationTypeDailySummary,
		Priority:  models.PriorityLow,
		Title:     "Daily medication summary",
		Body:      fmt.Sprintf("Today: %d doses scheduled, %d taken, %d not taken.", total, taken, total-taken),
		CreatedAt: now,
	}
	return d.fire(ctx, n, s)
}

// countToday counts dose slots on now's date and the ones matched by a Taken log.
// A malformed dose time still counts toward total but can never be taken.
func (d *Dispatcher) countToday(ctx context.Context, now time.Time) (total, taken int, err error) {
	schedules, err := d.schedules.ActiveSchedulesOn(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	for _, sch := range schedules {
		total += len(sch.DoseTimes)
		for _, dt := range sch.DoseTimes {
			m, err := parseClock(dt)
			if err != nil {
				continue
			}
			ok, err := d.schedules.HasTakenNear(ctx, sch.ID, doseInstant(now, m), models.DoseMatchWindow)
			if err != nil {
				return 0, 0, err
			}
			if ok {
				taken++
			}
		}
	}
	return total, taken, nil
}

func (d *Dispatcher) newNotification(
	t models.NotificationType,
	p models.NotificationPriority,
	sch models.MedicationSchedule,
	now time.Time,
	title, body string,
) *models.Notification {
	scheduleID := sch.ID
	patientID := sch.PatientID
	actionURL := fmt.Sprintf("/patients/%s/medications", sch.PatientID)
	return &models.Notification{
		ID:         d.newID(),
		Type:       t,
		Title:      title,
		Body:       body,
		Priority:   p,
		ScheduleID: &scheduleID,
		PatientID:  &patientID,
		ActionURL:  &actionURL,
		CreatedAt:  now,
	}
}

func (d *Dispatcher) patientName(ctx context.Context, patientID string) string {
	name, err := d.patients.NameOf(ctx, patientID)
	if err != nil || name == "" {
		return fallbackPatientName
	}
	return name
}

// fire displays n and then persists it. Display failures are logged only;
// the persisted row is the dedup ledger entry either way.
func (d *Dispatcher) fire(ctx context.Context, n *models.Notification, s *models.NotificationSettings) error {
	msg := delivery.Message{
		NotificationID: n.ID,
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Body,
		Priority:       n.Priority,
	}
	if s.SoundEnabled {
		msg.Sound = s.SoundPreset.String()
	}

	if err := d.display.Show(ctx, msg); err != nil {
		d.logger.WithError(err).Warn("Notification display failed", map[string]interface{}{
			"notificationId": n.ID,
			"type":           n.Type.String(),
		})
	}

	if err := d.ledger.Create(ctx, n); err != nil {
		return fmt.Errorf("persist %s notification %s: %w", n.Type, n.ID, err)
	}
	metrics.NotificationsFired.WithLabelValues(n.Type.String()).Inc()
	return nil
}
