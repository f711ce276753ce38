// internal/syncqueue/supabase.go
package syncqueue

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	apphttp "clinic-worker/internal/common/http"
	"clinic-worker/internal/models"
)

// SupabaseRemote inserts records through the Supabase REST API.
type SupabaseRemote struct {
	client  *apphttp.Client
	baseURL string
	anonKey string
	table   string
}

func NewSupabaseRemote(baseURL, anonKey, table string, timeout time.Duration) *SupabaseRemote {
	return &SupabaseRemote{
		client:  apphttp.NewClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		table:   table,
	}
}

func (r *SupabaseRemote) Name() string { return "supabase" }

func (r *SupabaseRemote) Submit(ctx context.Context, item models.PendingSyncItem) error {
	row, err := buildMirrorRow(item)
	if err != nil {
		return apperrors.NewRemoteRejectedError(0, err.Error())
	}

	resp, err := r.client.PostJSON(ctx, fmt.Sprintf("%s/rest/v1/%s", r.baseURL, r.table), map[string]string{
		"apikey":        r.anonKey,
		"Authorization": "Bearer " + r.anonKey,
		"Prefer":        "return=minimal",
	}, row)
	if err != nil {
		return apperrors.NewRemoteUnavailableError(err)
	}
	if resp.OK() {
		return nil
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.NewRemoteUnavailableError(fmt.Errorf("status %d: %s", resp.StatusCode, resp.Body))
	}
	return apperrors.NewRemoteRejectedError(resp.StatusCode, string(resp.Body))
}
