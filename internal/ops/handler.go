package ops

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/common/validation"
	"clinic-worker/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 500
	maxBodyBytes      = 1 << 20
)

var surveySchema = validation.MustCompile(`{
  "type": "object",
  "required": ["template_id", "answers"],
  "properties": {
    "id": {"type": "string"},
    "session_id": {"type": ["string", "null"]},
    "template_id": {"type": "string", "minLength": 1},
    "patient_id": {"type": ["string", "null"]},
    "respondent_name": {"type": ["string", "null"]},
    "answers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question_id", "answer"],
        "properties": {"question_id": {"type": "string", "minLength": 1}}
      }
    },
    "submitted_at": {"type": "string", "format": "date-time"}
  }
}`)

type handler struct {
	deps   Deps
	errs   *apperrors.ErrorHandler
	logger logger.Logger
	now    func() time.Time
}

func newHandler(deps Deps) *handler {
	log := deps.Logger.WithFields(map[string]interface{}{"component": "ops"})
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &handler{deps: deps, errs: apperrors.NewErrorHandler(log), logger: log, now: now}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewInvalidRequestError("unreadable body: " + err.Error())
	}
	return body, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.NewInvalidRequestError("invalid JSON: " + err.Error())
	}
	return nil
}

// ==========================
// Health
// ==========================

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.deps.Checks))
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			h.logger.WithError(err).Warn("Readiness check failed", map[string]interface{}{"check": name})
			continue
		}
		results[name] = "ok"
	}
	writeJSON(w, status, map[string]interface{}{"checks": results})
}

// ==========================
// Sync queue
// ==========================

func (h *handler) RetrySync(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Queue.IsConfigured() {
		h.errs.HandleHTTPError(w, r, apperrors.NewSyncNotConfiguredError())
		return
	}
	sent, err := h.deps.Queue.RetryPending(r.Context())
	if err != nil {
		h.errs.HandleHTTPError(w, r, apperrors.NewInternalError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sent":    sent,
		"pending": len(h.deps.Queue.Pending()),
	})
}

func (h *handler) PendingSync(w http.ResponseWriter, r *http.Request) {
	items := h.deps.Queue.Pending()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":    h.deps.Queue.Enabled(),
		"configured": h.deps.Queue.IsConfigured(),
		"count":      len(items),
		"items":      items,
	})
}

func (h *handler) SetSyncEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	if req.Enabled == nil {
		h.errs.HandleHTTPError(w, r, apperrors.NewInvalidRequestError("enabled is required"))
		return
	}
	h.deps.Queue.SetEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": h.deps.Queue.Enabled()})
}

// ==========================
// Session
// ==========================

func (h *handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Sessions.Current(r.Context())
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"subject":       sess.Subject,
		"expiresAt":     sess.ExpiresAt,
	})
}

// SaveSession stores the access token and starts a retry pass for anything
// queued while signed out.
func (h *handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	if req.Token == "" {
		h.errs.HandleHTTPError(w, r, apperrors.NewInvalidRequestError("token is required"))
		return
	}

	sess, err := h.deps.Sessions.Save(r.Context(), req.Token)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}

	if h.deps.Queue.IsConfigured() {
		ctx := context.WithoutCancel(r.Context())
		go func() {
			sent, err := h.deps.Queue.RetryPending(ctx)
			if err != nil {
				h.logger.WithError(err).Warn("Post sign-in retry pass interrupted", nil)
				return
			}
			h.logger.Info("Post sign-in retry pass finished", map[string]interface{}{"sent": sent})
		}()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"subject":       sess.Subject,
		"expiresAt":     sess.ExpiresAt,
	})
}

func (h *handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sessions.Clear(r.Context()); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ==========================
// Settings
// ==========================

func (h *handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Settings.Get(r.Context())
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	patch, err := readBody(w, r)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	s, err := h.deps.Settings.Update(r.Context(), patch)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ==========================
// Inbox
// ==========================

func (h *handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultInboxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxInboxLimit {
			h.errs.HandleHTTPError(w, r, apperrors.NewInvalidRequestError("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	list, err := h.deps.Inbox.ListUnread(r.Context(), limit)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	views := make([]models.NotificationView, 0, len(list))
	for i := range list {
		views = append(views, list[i].View())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": views})
}

func (h *handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Inbox.MarkRead(r.Context(), chi.URLParam(r, "id"), h.now()); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Inbox.Dismiss(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ==========================
// Surveys
// ==========================

// SubmitSurvey saves a response locally and hands it to the sync queue.
// The response is accepted even when mirroring fails.
func (h *handler) SubmitSurvey(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	res, err := surveySchema.ValidateBytes(body)
	if err != nil {
		h.errs.HandleHTTPError(w, r, apperrors.NewInvalidRequestError(err.Error()))
		return
	}
	if !res.Valid {
		h.errs.HandleHTTPError(w, r, apperrors.NewInvalidRequestError(res.Summary()))
		return
	}

	var resp models.SurveyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		h.errs.HandleHTTPError(w, r, apperrors.NewInvalidRequestError("invalid JSON: "+err.Error()))
		return
	}
	now := h.now()
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	if resp.SubmittedAt.IsZero() {
		resp.SubmittedAt = now
	}

	if err := h.deps.Surveys.SaveResponse(r.Context(), &resp); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}

	item, err := models.NewSurveySyncItem(&resp, now)
	if err != nil {
		h.logger.WithError(err).Error("Survey response not queued for sync", map[string]interface{}{"responseId": resp.ID})
	} else {
		h.deps.Queue.SubmitAsync(item)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": resp.ID})
}
