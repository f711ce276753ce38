// internal/models/survey.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type SurveyAnswer struct {
	QuestionID string      `json:"question_id"`
	Answer     interface{} `json:"answer"`
}

// SurveyResponse is a locally captured response, mirrored to the remote on submit.
type SurveyResponse struct {
	ID             string         `json:"id"`
	SessionID      *string        `json:"session_id,omitempty"`
	TemplateID     string         `json:"template_id"`
	PatientID      *string        `json:"patient_id,omitempty"`
	RespondentName *string        `json:"respondent_name,omitempty"`
	Answers        []SurveyAnswer `json:"answers"`
	SubmittedAt    time.Time      `json:"submitted_at"`
}

type SyncItemType int

const (
	SyncItemSurveyResponse SyncItemType = iota
)

func (t SyncItemType) String() string {
	switch t {
	case SyncItemSurveyResponse:
		return "survey_response"
	default:
		return fmt.Sprintf("sync_item_type(%d)", int(t))
	}
}

// PendingSyncItem is one record waiting to be mirrored. At most one item per ID is queued.
type PendingSyncItem struct {
	ID         string          `json:"id"`
	ItemType   SyncItemType    `json:"-"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	RetryCount int             `json:"retryCount"`
}

// NewSurveySyncItem wraps a survey response for the sync queue.
func NewSurveySyncItem(resp *SurveyResponse, now time.Time) (PendingSyncItem, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return PendingSyncItem{}, fmt.Errorf("encode survey response %s: %w", resp.ID, err)
	}
	return PendingSyncItem{
		ID:         resp.ID,
		ItemType:   SyncItemSurveyResponse,
		Payload:    payload,
		EnqueuedAt: now,
	}, nil
}
