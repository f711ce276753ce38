// internal/store/patients.go
package store

import (
	"context"
	"database/sql"
	"errors"

	apperrors "clinic-worker/internal/common/errors"
)

type PatientStore struct {
	db *sql.DB
}

func NewPatientStore(db *sql.DB) *PatientStore {
	return &PatientStore{db: db}
}

// NameOf returns the display name of a patient.
func (s *PatientStore) NameOf(ctx context.Context, patientID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM patients WHERE id = $1`, patientID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NewRecordNotFoundError("patient", patientID)
	}
	if err != nil {
		return "", apperrors.NewStoreReadError("patient name", err)
	}
	return name, nil
}
