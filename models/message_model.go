package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is the only persisted chat record. Everything but IsRead is
// immutable once written.
type Message struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	SenderID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_messages_pair,priority:1" json:"sender_id"`
	SenderKind   ParticipantKind `gorm:"size:16;not null" json:"sender_kind"`
	ReceiverID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_messages_pair,priority:2;index:idx_messages_unread,priority:1" json:"receiver_id"`
	ReceiverKind ParticipantKind `gorm:"size:16;not null" json:"receiver_kind"`

	Text     string  `gorm:"type:text" json:"message"`
	ImageURL *string `gorm:"size:512" json:"image_url,omitempty"`
	AudioURL *string `gorm:"size:512" json:"audio_url,omitempty"`

	BookingID *uuid.UUID `gorm:"type:uuid" json:"booking_id,omitempty"`

	IsRead    bool      `gorm:"not null;default:false;index:idx_messages_unread,priority:2" json:"is_read"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// HasContent reports whether at least one of text, image or audio is present.
func (m *Message) HasContent() bool {
	return m.Text != "" || nonEmpty(m.ImageURL) || nonEmpty(m.AudioURL)
}

// Counterpart returns the other party of the message relative to id.
func (m *Message) Counterpart(id uuid.UUID) uuid.UUID {
	if m.SenderID == id {
		return m.ReceiverID
	}
	return m.SenderID
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}
