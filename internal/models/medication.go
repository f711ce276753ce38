// internal/models/medication.go
package models

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// ClockLayout is the wall-clock format used for dose times, quiet hours and the summary time.
const ClockLayout = "15:04"

type MedicationSchedule struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patientId"`
	PrescriptionID string    `json:"prescriptionId"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	TimesPerDay    int       `json:"timesPerDay"`
	DoseTimes      []string  `json:"doseTimes"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ActiveOn reports whether day falls inside [StartDate, EndDate] at date granularity.
func (s *MedicationSchedule) ActiveOn(day time.Time) bool {
	d := day.Format(DateLayout)
	return s.StartDate.Format(DateLayout) <= d && d <= s.EndDate.Format(DateLayout)
}

type MedicationStatus int

const (
	MedicationTaken MedicationStatus = iota
	MedicationMissed
	MedicationSkipped
)

func (s MedicationStatus) String() string {
	switch s {
	case MedicationTaken:
		return "taken"
	case MedicationMissed:
		return "missed"
	case MedicationSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("medication_status(%d)", int(s))
	}
}

func ParseMedicationStatus(s string) (MedicationStatus, error) {
	switch s {
	case "taken":
		return MedicationTaken, nil
	case "missed":
		return MedicationMissed, nil
	case "skipped":
		return MedicationSkipped, nil
	}
	return 0, fmt.Errorf("unknown medication status %q", s)
}

type MedicationLog struct {
	ID         string           `json:"id"`
	ScheduleID string           `json:"scheduleId"`
	TakenAt    time.Time        `json:"takenAt"`
	Status     MedicationStatus `json:"-"`
	Notes      string           `json:"notes,omitempty"`
}

// DoseMatchWindow is how far a Taken log may sit from the dose time and still count for it.
const DoseMatchWindow = 30 * time.Minute
