package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/models"
	"clinic-worker/internal/notification/notificationtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func at(day, h, m int) time.Time {
	return time.Date(2026, 3, day, h, m, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

type fixture struct {
	settings  *notificationtest.Settings
	schedules *notificationtest.Schedules
	ledger    *notificationtest.Ledger
	display   *notificationtest.Display
	d         *Dispatcher
}

func newFixture(t *testing.T, mutate func(*models.NotificationSettings), schedules ...models.MedicationSchedule) *fixture {
	t.Helper()
	f := &fixture{
		settings:  notificationtest.NewSettings(mutate),
		schedules: notificationtest.NewSchedules(schedules...),
		ledger:    notificationtest.NewLedger(),
		display:   &notificationtest.Display{},
	}
	f.d = NewDispatcher(f.settings, f.schedules, f.ledger,
		notificationtest.Patients{"pat-1": "Ana"}, f.display, logger.NewTestLogger(t))
	return f
}

func marchSchedule(id string, doseTimes ...string) models.MedicationSchedule {
	return notificationtest.Schedule(id, "pat-1", at(1, 0, 0), at(31, 0, 0), doseTimes...)
}

// ==========================
// Quiet hours
// ==========================

func TestIsQuiet(t *testing.T) {
	overnight := &models.NotificationSettings{QuietHoursStart: strPtr("22:00"), QuietHoursEnd: strPtr("06:00")}
	daytime := &models.NotificationSettings{QuietHoursStart: strPtr("12:00"), QuietHoursEnd: strPtr("14:00")}

	tests := []struct {
		name     string
		settings *models.NotificationSettings
		now      time.Time
		want     bool
	}{
		{"overnight late evening", overnight, at(10, 23, 0), true},
		{"overnight early morning", overnight, at(10, 3, 0), true},
		{"overnight start inclusive", overnight, at(10, 22, 0), true},
		{"overnight end inclusive", overnight, at(10, 6, 0), true},
		{"overnight noon", overnight, at(10, 12, 0), false},
		{"overnight just after end", overnight, at(10, 6, 1), false},
		{"overnight just before start", overnight, at(10, 21, 59), false},
		{"daytime inside", daytime, at(10, 13, 0), true},
		{"daytime outside", daytime, at(10, 15, 0), false},
		{"unset end", &models.NotificationSettings{QuietHoursStart: strPtr("22:00")}, at(10, 23, 0), false},
		{"unset both", &models.NotificationSettings{}, at(10, 23, 0), false},
		{"malformed", &models.NotificationSettings{QuietHoursStart: strPtr("late"), QuietHoursEnd: strPtr("06:00")}, at(10, 23, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuiet(tt.settings, tt.now))
		})
	}
}

// ==========================
// Due reminders
// ==========================

func TestCheckDueReminders_FiresAtDoseMinusPre(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		wantFired bool
	}{
		{"one minute early", at(10, 8, 24), false},
		{"exact minute", at(10, 8, 25), true},
		{"exact minute with seconds", at(10, 8, 25).Add(42 * time.Second), true},
		{"one minute late", at(10, 8, 26), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, marchSchedule("sch-1", "08:30"))

			require.NoError(t, f.d.CheckDueReminders(context.Background(), tt.now))

			got := f.ledger.OfType(models.NotificationTypeMedicationReminder)
			if !tt.wantFired {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, "sch-1", *got[0].ScheduleID)
			assert.Equal(t, models.PriorityNormal, got[0].Priority)
			assert.Contains(t, got[0].Body, "Ana")
			assert.Contains(t, got[0].Body, "08:30")
			assert.Contains(t, got[0].Body, "Prescription: rx-sch-1")
			require.Len(t, f.display.Shown, 1)
			assert.Equal(t, "default", f.display.Shown[0].Sound)
		})
	}
}

func TestCheckDueReminders_DedupIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, marchSchedule("sch-1", "08:30"))
	now := at(10, 8, 25)

	require.NoError(t, f.d.CheckDueReminders(context.Background(), now))
	require.NoError(t, f.d.CheckDueReminders(context.Background(), now))

	assert.Len(t, f.ledger.OfType(models.NotificationTypeMedicationReminder), 1)
	assert.Len(t, f.display.Shown, 1)
}

func TestCheckDueReminders_Suppressed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.NotificationSettings)
		now    time.Time
	}{
		{"disabled", func(s *models.NotificationSettings) { s.Enabled = false }, at(10, 8, 25)},
		{"quiet hours", func(s *models.NotificationSettings) {
			s.QuietHoursStart = strPtr("08:00")
			s.QuietHoursEnd = strPtr("09:00")
		}, at(10, 8, 25)},
		{"schedule not active", nil, at(1, 0, 0).AddDate(0, 1, 5).Add(8*time.Hour + 25*time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate, marchSchedule("sch-1", "08:30"))
			require.NoError(t, f.d.CheckDueReminders(context.Background(), tt.now))
			assert.Empty(t, f.ledger.Items)
		})
	}
}

func TestCheckDueReminders_CrossesMidnight(t *testing.T) {
	// active only on the 11th
	sch := notificationtest.Schedule("sch-1", "pat-1", at(11, 0, 0), at(11, 0, 0), "00:02")
	f := newFixture(t, nil, sch)

	require.NoError(t, f.d.CheckDueReminders(context.Background(), at(10, 23, 57)))

	got := f.ledger.OfType(models.NotificationTypeMedicationReminder)
	require.Len(t, got, 1)
	assert.Equal(t, at(10, 23, 57), got[0].CreatedAt)
}

func TestCheckDueReminders_SlotErrorDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, nil, marchSchedule("sch-1", "08:30"), marchSchedule("sch-2", "08:30"))
	f.ledger.DedupErr["sch-1"] = errors.New("ledger unavailable")

	err := f.d.CheckDueReminders(context.Background(), at(10, 8, 25))
	require.Error(t, err)

	got := f.ledger.OfType(models.NotificationTypeMedicationReminder)
	require.Len(t, got, 1)
	assert.Equal(t, "sch-2", *got[0].ScheduleID)
}

func TestCheckDueReminders_SettingsErrorAborts(t *testing.T) {
	f := newFixture(t, nil, marchSchedule("sch-1", "08:30"))
	f.settings.Err = errors.New("settings unavailable")

	assert.Error(t, f.d.CheckDueReminders(context.Background(), at(10, 8, 25)))
	assert.Empty(t, f.ledger.Items)
}

func TestFire_PersistsWhenDisplayFails(t *testing.T) {
	f := newFixture(t, func(s *models.NotificationSettings) { s.SoundEnabled = false }, marchSchedule("sch-1", "08:30"))
	f.display.Err = errors.New("no desktop session")

	require.NoError(t, f.d.CheckDueReminders(context.Background(), at(10, 8, 25)))
	assert.Len(t, f.ledger.OfType(models.NotificationTypeMedicationReminder), 1)

	// a persisted but undisplayed notification still counts as sent
	require.NoError(t, f.d.CheckDueReminders(context.Background(), at(10, 8, 25)))
	assert.Len(t, f.ledger.OfType(models.NotificationTypeMedicationReminder), 1)
}

func TestFire_PatientNameFallback(t *testing.T) {
	sch := notificationtest.Schedule("sch-1", "pat-unknown", at(1, 0, 0), at(31, 0, 0), "08:30")
	f := newFixture(t, nil, sch)

	require.NoError(t, f.d.CheckDueReminders(context.Background(), at(10, 8, 25)))
	got := f.ledger.OfType(models.NotificationTypeMedicationReminder)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Body, "patient")
}

// ==========================
// Missed doses
// ==========================

func TestCheckMissedDoses(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		takenAt   *time.Time
		wantFired bool
	}{
		{"fires at dose plus delay", at(10, 9, 0), nil, true},
		{"not before", at(10, 8, 59), nil, false},
		{"not after", at(10, 9, 1), nil, false},
		{"taken within window", at(10, 9, 0), timePtr(at(10, 8, 50)), false},
		{"taken at window edge", at(10, 9, 0), timePtr(at(10, 9, 0)), false},
		{"taken outside window", at(10, 9, 0), timePtr(at(10, 7, 30)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, marchSchedule("sch-1", "08:30"))
			if tt.takenAt != nil {
				f.schedules.LogTaken("sch-1", *tt.takenAt)
			}

			require.NoError(t, f.d.CheckMissedDoses(context.Background(), tt.now))

			got := f.ledger.OfType(models.NotificationTypeMissedMedication)
			if !tt.wantFired {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, models.PriorityHigh, got[0].Priority)
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCheckMissedDoses_CrossesMidnight(t *testing.T) {
	// schedule ends on the 10th; the 23:50 dose is checked at 00:20 on the 11th
	sch := notificationtest.Schedule("sch-1", "pat-1", at(1, 0, 0), at(10, 0, 0), "23:50")

	t.Run("not taken", func(t *testing.T) {
		f := newFixture(t, nil, sch)
		require.NoError(t, f.d.CheckMissedDoses(context.Background(), at(11, 0, 20)))

		got := f.ledger.OfType(models.NotificationTypeMissedMedication)
		require.Len(t, got, 1)
		assert.Equal(t, "sch-1", *got[0].ScheduleID)
		assert.Contains(t, got[0].Body, "23:50")
	})

	t.Run("taken before midnight", func(t *testing.T) {
		f := newFixture(t, nil, sch)
		f.schedules.LogTaken("sch-1", at(10, 23, 55))
		require.NoError(t, f.d.CheckMissedDoses(context.Background(), at(11, 0, 20)))
		assert.Empty(t, f.ledger.OfType(models.NotificationTypeMissedMedication))
	})
}

func TestCheckMissedDoses_DisabledAndQuiet(t *testing.T) {
	for name, mutate := range map[string]func(*models.NotificationSettings){
		"missed disabled": func(s *models.NotificationSettings) { s.MissedReminderEnabled = false },
		"quiet": func(s *models.NotificationSettings) {
			s.QuietHoursStart, s.QuietHoursEnd = strPtr("08:45"), strPtr("09:15")
		},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, mutate, marchSchedule("sch-1", "08:30"))
			require.NoError(t, f.d.CheckMissedDoses(context.Background(), at(10, 9, 0)))
			assert.Empty(t, f.ledger.Items)
		})
	}
}

func TestCheckMissedDoses_Dedup(t *testing.T) {
	f := newFixture(t, nil, marchSchedule("sch-1", "08:30"))

	require.NoError(t, f.d.CheckMissedDoses(context.Background(), at(10, 9, 0)))
	require.NoError(t, f.d.CheckMissedDoses(context.Background(), at(10, 9, 0)))
	assert.Len(t, f.ledger.OfType(models.NotificationTypeMissedMedication), 1)
}

// ==========================
// Daily summary
// ==========================

func summaryOn(s *models.NotificationSettings) {
	s.DailySummaryEnabled = true
	s.DailySummaryTime = "20:00"
	s.QuietHoursStart = strPtr("19:00")
	s.QuietHoursEnd = strPtr("07:00")
}

func TestCheckDailySummary_CountsAndIgnoresQuietHours(t *testing.T) {
	f := newFixture(t, summaryOn, marchSchedule("sch-1", "08:00", "14:00"), marchSchedule("sch-2", "09:00"))
	f.schedules.LogTaken("sch-1", at(10, 8, 5))
	f.schedules.LogTaken("sch-2", at(10, 9, 20))

	require.NoError(t, f.d.CheckDailySummary(context.Background(), at(10, 20, 0)))

	got := f.ledger.OfType(models.NotificationTypeDailySummary)
	require.Len(t, got, 1)
	assert.Equal(t, models.PriorityLow, got[0].Priority)
	assert.Nil(t, got[0].ScheduleID)
	assert.Equal(t, "Today: 3 doses scheduled, 2 taken, 1 not taken.", got[0].Body)
}

func TestCheckDailySummary_CountsMalformedDoseTimes(t *testing.T) {
	f := newFixture(t, summaryOn, marchSchedule("sch-1", "08:00", "25:99"))
	f.schedules.LogTaken("sch-1", at(10, 8, 0))

	require.NoError(t, f.d.CheckDailySummary(context.Background(), at(10, 20, 0)))

	got := f.ledger.OfType(models.NotificationTypeDailySummary)
	require.Len(t, got, 1)
	assert.Equal(t, "Today: 2 doses scheduled, 1 taken, 1 not taken.", got[0].Body)
}

func TestCheckDailySummary_HourlyCap(t *testing.T) {
	f := newFixture(t, summaryOn, marchSchedule("sch-1", "08:00"))

	require.NoError(t, f.d.CheckDailySummary(context.Background(), at(10, 20, 0)))
	require.NoError(t, f.d.CheckDailySummary(context.Background(), at(10, 20, 0).Add(30*time.Second)))

	assert.Len(t, f.ledger.OfType(models.NotificationTypeDailySummary), 1)
}

func TestCheckDailySummary_Skips(t *testing.T) {
	t.Run("wrong time", func(t *testing.T) {
		f := newFixture(t, summaryOn)
		require.NoError(t, f.d.CheckDailySummary(context.Background(), at(10, 21, 0)))
		assert.Empty(t, f.ledger.Items)
	})
	t.Run("summary disabled", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.d.CheckDailySummary(context.Background(), at(10, 9, 0)))
		assert.Empty(t, f.ledger.Items)
	})
	t.Run("aggregation error aborts", func(t *testing.T) {
		f := newFixture(t, summaryOn, marchSchedule("sch-1", "08:00"))
		f.schedules.TakenErr["sch-1"] = errors.New("log table locked")
		assert.Error(t, f.d.CheckDailySummary(context.Background(), at(10, 20, 0)))
		assert.Empty(t, f.ledger.Items)
	})
}
