// internal/store/surveys.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/models"
)

type SurveyStore struct {
	db *sql.DB
}

func NewSurveyStore(db *sql.DB) *SurveyStore {
	return &SurveyStore{db: db}
}

// SaveResponse stores a captured survey response locally.
func (s *SurveyStore) SaveResponse(ctx context.Context, resp *models.SurveyResponse) error {
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return apperrors.NewStoreWriteError("encode survey answers", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO survey_responses (id, session_id, template_id, patient_id, respondent_name, answers, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		resp.ID, resp.SessionID, resp.TemplateID, resp.PatientID, resp.RespondentName, answers, resp.SubmittedAt)
	if err != nil {
		return apperrors.NewStoreWriteError("insert survey response", err)
	}
	return nil
}
