// internal/syncqueue/remote.go
package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clinic-worker/internal/models"
)

// Remote delivers one record to the cloud mirror.
type Remote interface {
	Name() string
	Submit(ctx context.Context, item models.PendingSyncItem) error
}

// mirrorRow is the record shape stored by every mirror backend.
type mirrorRow struct {
	ID             string                `json:"id"`
	SessionID      *string               `json:"session_id"`
	TemplateID     string                `json:"template_id"`
	PatientID      *string               `json:"patient_id"`
	RespondentName *string               `json:"respondent_name"`
	Answers        []models.SurveyAnswer `json:"answers"`
	Synced         bool                  `json:"synced"`
	CreatedAt      string                `json:"created_at"`
}

func buildMirrorRow(item models.PendingSyncItem) (*mirrorRow, error) {
	if item.ItemType != models.SyncItemSurveyResponse {
		return nil, fmt.Errorf("unsupported sync item type %s", item.ItemType)
	}

	var resp models.SurveyResponse
	if err := json.Unmarshal(item.Payload, &resp); err != nil {
		return nil, fmt.Errorf("decode survey response %s: %w", item.ID, err)
	}
	return &mirrorRow{
		ID:             resp.ID,
		SessionID:      resp.SessionID,
		TemplateID:     resp.TemplateID,
		PatientID:      resp.PatientID,
		RespondentName: resp.RespondentName,
		Answers:        resp.Answers,
		Synced:         true,
		CreatedAt:      resp.SubmittedAt.UTC().Format(time.RFC3339),
	}, nil
}
