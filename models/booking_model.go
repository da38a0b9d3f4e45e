package models

import (
	"time"

	"github.com/google/uuid"
)

type Booking struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	PatientID uuid.UUID `gorm:"type:uuid;not null;index" json:"patient_id"`
	DoctorID  uuid.UUID `gorm:"type:uuid;not null;index" json:"doctor_id"`
	Date      string    `gorm:"size:10;not null" json:"date"`
	Time      string    `gorm:"size:32;not null" json:"time"`
	Status    string    `gorm:"size:20;not null;default:'booked'" json:"status"`
	Fee       float64   `gorm:"type:numeric(10,2);not null" json:"fee"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParticipantID lets a booking stand in for the patient it belongs to.
func (b Booking) ParticipantID() uuid.UUID {
	return b.PatientID
}
