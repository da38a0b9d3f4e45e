package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry is a patient waiting in a doctor's walk-in queue.
type QueueEntry struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	DoctorID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"doctor_id"`
	PatientID   uuid.UUID  `gorm:"type:uuid;not null" json:"patient_id"`
	TokenNumber int        `gorm:"not null" json:"token_number"`
	ServedAt    *time.Time `json:"served_at"`

	CreatedAt time.Time `json:"created_at"`
}
