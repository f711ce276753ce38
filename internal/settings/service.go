// Package settings serves the notification settings with a Redis read-through cache.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/common/validation"
	"clinic-worker/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKey = "clinic:settings:notifications"

type Store interface {
	Get(ctx context.Context) (*models.NotificationSettings, error)
	Save(ctx context.Context, s *models.NotificationSettings) error
}

var updateSchema = validation.MustCompile(`{
  "type": "object",
  "additionalProperties": false,
  "minProperties": 1,
  "properties": {
    "enabled": {"type": "boolean"},
    "preReminderMinutes": {"type": "integer", "minimum": 0, "maximum": 1440},
    "missedReminderEnabled": {"type": "boolean"},
    "missedReminderDelayMinutes": {"type": "integer", "minimum": 0, "maximum": 1440},
    "dailySummaryEnabled": {"type": "boolean"},
    "dailySummaryTime": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):00$"},
    "soundEnabled": {"type": "boolean"},
    "soundPreset": {"enum": ["default", "gentle", "urgent"]},
    "quietHoursStart": {"type": ["string", "null"], "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
    "quietHoursEnd": {"type": ["string", "null"], "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"}
  }
}`)

type Service struct {
	store  Store
	cache  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

// NewService wraps store. A nil cache disables caching.
func NewService(store Store, cache redis.Cmdable, ttl time.Duration, log logger.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "settings"}),
	}
}

// Get returns the current settings, from cache when possible. Cache failures fall through to the store.
func (s *Service) Get(ctx context.Context) (*models.NotificationSettings, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			var cached models.NotificationSettings
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return &cached, nil
			}
		case !errors.Is(err, redis.Nil):
			s.logger.WithError(err).Warn("Settings cache read failed", nil)
		}
	}

	current, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, current)
	return current, nil
}

// Update applies a partial JSON document to the settings. Keys that are
// present replace the stored value; null clears a quiet-hours bound.
func (s *Service) Update(ctx context.Context, patch []byte) (*models.NotificationSettings, error) {
	res, err := updateSchema.ValidateBytes(patch)
	if err != nil {
		return nil, apperrors.NewSettingsInvalidError(err.Error())
	}
	if !res.Valid {
		return nil, apperrors.NewSettingsInvalidError(res.Summary())
	}

	current, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := applyPatch(current, patch); err != nil {
		return nil, apperrors.NewSettingsInvalidError(err.Error())
	}
	if err := s.store.Save(ctx, current); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, cacheKey).Err(); err != nil {
			s.logger.WithError(err).Warn("Settings cache invalidation failed", nil)
		}
	}
	s.logger.Info("Notification settings updated", map[string]interface{}{"settingsId": current.ID})
	return current, nil
}

func (s *Service) fill(ctx context.Context, v *models.NotificationSettings) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, raw, s.ttl).Err(); err != nil {
		s.logger.WithError(err).Warn("Settings cache write failed", nil)
	}
}

func applyPatch(dst *models.NotificationSettings, patch []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return err
	}

	targets := map[string]interface{}{
		"enabled":                    &dst.Enabled,
		"preReminderMinutes":         &dst.PreReminderMinutes,
		"missedReminderEnabled":      &dst.MissedReminderEnabled,
		"missedReminderDelayMinutes": &dst.MissedReminderDelayMinutes,
		"dailySummaryEnabled":        &dst.DailySummaryEnabled,
		"dailySummaryTime":           &dst.DailySummaryTime,
		"soundEnabled":               &dst.SoundEnabled,
		"soundPreset":                &dst.SoundPreset,
		"quietHoursStart":            &dst.QuietHoursStart,
		"quietHoursEnd":              &dst.QuietHoursEnd,
	}
	for k, raw := range fields {
		target, ok := targets[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return err
		}
	}
	return nil
}
