// Package notificationtest provides in-memory collaborators for exercising the dispatcher.
package notificationtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"clinic-worker/internal/delivery"
	"clinic-worker/internal/models"
)

type Settings struct {
	Value *models.NotificationSettings
	Err   error
}

func NewSettings(mutate func(*models.NotificationSettings)) *Settings {
	s := models.DefaultNotificationSettings()
	s.ID = "settings-1"
	if mutate != nil {
		mutate(&s)
	}
	return &Settings{Value: &s}
}

func (s *Settings) Get(context.Context) (*models.NotificationSettings, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	cp := *s.Value
	return &cp, nil
}

type Schedules struct {
	mu        sync.Mutex
	Schedules []models.MedicationSchedule
	Taken     map[string][]time.Time
	LoadErr   error
	TakenErr  map[string]error
}

func NewSchedules(schedules ...models.MedicationSchedule) *Schedules {
	return &Schedules{Schedules: schedules, Taken: map[string][]time.Time{}, TakenErr: map[string]error{}}
}

// LogTaken records a Taken log for scheduleID at t.
func (s *Schedules) LogTaken(scheduleID string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Taken[scheduleID] = append(s.Taken[scheduleID], t)
}

func (s *Schedules) ActiveSchedulesOn(_ context.Context, day time.Time) ([]models.MedicationSchedule, error) {
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	var out []models.MedicationSchedule
	for _, sch := range s.Schedules {
		if sch.ActiveOn(day) {
			out = append(out, sch)
		}
	}
	return out, nil
}

func (s *Schedules) HasTakenNear(_ context.Context, scheduleID string, doseAt time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.TakenErr[scheduleID]; err != nil {
		return false, err
	}
	for _, t := range s.Taken[scheduleID] {
		if !t.Before(doseAt.Add(-window)) && !t.After(doseAt.Add(window)) {
			return true, nil
		}
	}
	return false, nil
}

// Ledger stores notifications in memory and answers dedup queries like the SQL store.
type Ledger struct {
	mu        sync.Mutex
	Items     []models.Notification
	CreateErr error
	DedupErr  map[string]error
}

func NewLedger() *Ledger {
	return &Ledger{DedupErr: map[string]error{}}
}

func (l *Ledger) RecentExists(_ context.Context, key string, t models.NotificationType, since time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.DedupErr[key]; err != nil {
		return false, err
	}
	for _, n := range l.Items {
		if n.DedupKey() == key && n.Type == t && n.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (l *Ledger) Create(_ context.Context, n *models.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.CreateErr != nil {
		return l.CreateErr
	}
	l.Items = append(l.Items, *n)
	return nil
}

// OfType returns the stored notifications of type t.
func (l *Ledger) OfType(t models.NotificationType) []models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Notification
	for _, n := range l.Items {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type Patients map[string]string

func (p Patients) NameOf(_ context.Context, id string) (string, error) {
	name, ok := p[id]
	if !ok {
		return "", errors.New("patient not found")
	}
	return name, nil
}

// Display records shown messages and optionally fails.
type Display struct {
	mu    sync.Mutex
	Shown []delivery.Message
	Err   error
}

func (d *Display) Name() string { return "memory" }

func (d *Display) Show(_ context.Context, msg delivery.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Shown = append(d.Shown, msg)
	return nil
}

// Schedule builds a schedule active on every day of [from, to].
func Schedule(id, patientID string, from, to time.Time, doseTimes ...string) models.MedicationSchedule {
	return models.MedicationSchedule{
		ID:             id,
		PatientID:      patientID,
		PrescriptionID: "rx-" + id,
		StartDate:      from,
		EndDate:        to,
		TimesPerDay:    len(doseTimes),
		DoseTimes:      doseTimes,
	}
}
