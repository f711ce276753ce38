// Package ops exposes the worker's operational HTTP API: health, metrics,
// sync queue control, session hand-off, settings and the notification inbox.
package ops

import (
	"context"
	"net/http"
	"time"

	"clinic-worker/internal/auth"
	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type SyncQueue interface {
	SubmitAsync(item models.PendingSyncItem)
	RetryPending(ctx context.Context) (int, error)
	Pending() []models.PendingSyncItem
	SetEnabled(enabled bool)
	Enabled() bool
	IsConfigured() bool
}

type Sessions interface {
	Save(ctx context.Context, token string) (*auth.Session, error)
	Current(ctx context.Context) (*auth.Session, error)
	Clear(ctx context.Context) error
}

type SettingsService interface {
	Get(ctx context.Context) (*models.NotificationSettings, error)
	Update(ctx context.Context, patch []byte) (*models.NotificationSettings, error)
}

type Inbox interface {
	ListUnread(ctx context.Context, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	Dismiss(ctx context.Context, id string) error
}

type SurveyStore interface {
	SaveResponse(ctx context.Context, resp *models.SurveyResponse) error
}

// Check is a named readiness probe.
type Check func(ctx context.Context) error

// Deps wires the router. Sessions may be nil when no Redis is configured;
// the /auth routes are then not mounted.
type Deps struct {
	Queue    SyncQueue
	Sessions Sessions
	Settings SettingsService
	Inbox    Inbox
	Surveys  SurveyStore
	Checks   map[string]Check
	Logger   logger.Logger
	Now      func() time.Time
}

// NewRouter creates the chi router with middleware and all routes.
func NewRouter(deps Deps) *chi.Mux {
	h := newHandler(deps)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/sync", func(r chi.Router) {
		r.Post("/retry", h.RetrySync)
		r.Get("/pending", h.PendingSync)
		r.Post("/enabled", h.SetSyncEnabled)
	})

	if deps.Sessions != nil {
		r.Route("/auth/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/", h.SaveSession)
			r.Delete("/", h.ClearSession)
		})
	}

	r.Route("/settings/notifications", func(r chi.Router) {
		r.Get("/", h.GetSettings)
		r.Put("/", h.UpdateSettings)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.ListNotifications)
		r.Post("/{id}/read", h.MarkRead)
		r.Post("/{id}/dismiss", h.Dismiss)
	})

	r.Post("/survey-responses", h.SubmitSurvey)

	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("Request served", map[string]interface{}{
				"method":    r.Method,
				"path":      r.URL.Path,
				"status":    ww.Status(),
				"duration":  time.Since(start).String(),
				"requestId": middleware.GetReqID(r.Context()),
			})
		})
	}
}

// NewServer returns an http.Server for addr serving router.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
