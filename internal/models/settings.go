// internal/models/settings.go
package models

import (
	"fmt"
	"time"
)

type SoundPreset int

const (
	SoundDefault SoundPreset = iota
	SoundGentle
	SoundUrgent
)

func (s SoundPreset) String() string {
	switch s {
	case SoundDefault:
		return "default"
	case SoundGentle:
		return "gentle"
	case SoundUrgent:
		return "urgent"
	default:
		return fmt.Sprintf("sound_preset(%d)", int(s))
	}
}

func ParseSoundPreset(s string) (SoundPreset, error) {
	switch s {
	case "", "default":
		return SoundDefault, nil
	case "gentle":
		return SoundGentle, nil
	case "urgent":
		return SoundUrgent, nil
	}
	return 0, fmt.Errorf("unknown sound preset %q", s)
}

func (s SoundPreset) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SoundPreset) UnmarshalText(b []byte) error {
	p, err := ParseSoundPreset(string(b))
	if err != nil {
		return err
	}
	*s = p
	return nil
}

// NotificationSettings is the single global notification configuration.
type NotificationSettings struct {
	ID                         string      `json:"id"`
	Enabled                    bool        `json:"enabled"`
	PreReminderMinutes         int         `json:"preReminderMinutes"`
	MissedReminderEnabled      bool        `json:"missedReminderEnabled"`
	MissedReminderDelayMinutes int         `json:"missedReminderDelayMinutes"`
	DailySummaryEnabled        bool        `json:"dailySummaryEnabled"`
	DailySummaryTime           string      `json:"dailySummaryTime"`
	SoundEnabled               bool        `json:"soundEnabled"`
	SoundPreset                SoundPreset `json:"soundPreset"`
	QuietHoursStart            *string     `json:"quietHoursStart,omitempty"`
	QuietHoursEnd              *string     `json:"quietHoursEnd,omitempty"`
	CreatedAt                  time.Time   `json:"createdAt"`
	UpdatedAt                  time.Time   `json:"updatedAt"`
}

// DefaultNotificationSettings returns the settings created on first access.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:                    true,
		PreReminderMinutes:         5,
		MissedReminderEnabled:      true,
		MissedReminderDelayMinutes: 30,
		DailySummaryEnabled:        false,
		DailySummaryTime:           "09:00",
		SoundEnabled:               true,
		SoundPreset:                SoundDefault,
	}
}
