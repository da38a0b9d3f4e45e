package models

import (
	"time"

	"github.com/google/uuid"
)

type Doctor struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	FullName          string    `gorm:"size:255;not null" json:"full_name"`
	Email             string    `gorm:"size:255;not null;unique" json:"email"`
	Phone             *string   `gorm:"size:32" json:"phone"`
	Specialty         *string   `gorm:"size:100" json:"specialty"`
	ProfilePictureURL *string   `gorm:"size:255" json:"profile_picture_url"`
	IsAvailable       bool      `gorm:"default:true" json:"is_available"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
