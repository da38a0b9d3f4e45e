package models

import (
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	FullName          string    `gorm:"size:255;not null" json:"full_name"`
	Email             string    `gorm:"size:255;not null;unique" json:"email"`
	Phone             *string   `gorm:"size:32" json:"phone"`
	ProfilePictureURL *string   `gorm:"size:255" json:"profile_picture_url"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
