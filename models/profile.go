package models

import "github.com/google/uuid"

// Profile is the display card shown for a chat contact.
type Profile struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Avatar  *string   `json:"avatar"`
	Contact string    `json:"contact"`
}
