// Package delivery shows fired notifications to the clinic staff.
package delivery

import (
	"context"
	"errors"
	"fmt"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/common/metrics"
	"clinic-worker/internal/models"
)

// Message is what a channel displays. Sound is empty when sound is disabled.
type Message struct {
	NotificationID string
	Type           models.NotificationType
	Title          string
	Body           string
	Priority       models.NotificationPriority
	Sound          string
}

// Displayer shows a message on one channel. Display is best-effort.
type Displayer interface {
	Name() string
	Show(ctx context.Context, msg Message) error
}

// LogDisplayer writes notifications to the structured log.
type LogDisplayer struct {
	logger logger.Logger
}

func NewLogDisplayer(log logger.Logger) *LogDisplayer {
	return &LogDisplayer{logger: log.WithFields(map[string]interface{}{"channel": "log"})}
}

func (d *LogDisplayer) Name() string { return "log" }

func (d *LogDisplayer) Show(_ context.Context, msg Message) error {
	d.logger.Info(msg.Title, map[string]interface{}{
		"notificationId": msg.NotificationID,
		"type":           msg.Type.String(),
		"priority":       msg.Priority.String(),
		"body":           msg.Body,
		"sound":          msg.Sound,
	})
	return nil
}

// Multi fans a message out to every channel and reports the channels that failed.
type Multi struct {
	displayers []Displayer
}

func NewMulti(displayers ...Displayer) *Multi {
	return &Multi{displayers: displayers}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Show(ctx context.Context, msg Message) error {
	var errs []error
	for _, d := range m.displayers {
		if err := d.Show(ctx, msg); err != nil {
			metrics.NotificationDisplayFailures.WithLabelValues(d.Name()).Inc()
			errs = append(errs, apperrors.NewDisplayFailedError(d.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d channels failed: %w", len(errs), len(m.displayers), errors.Join(errs...))
	}
	return nil
}
