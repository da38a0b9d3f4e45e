package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ParticipantKind tags an id with the table it belongs to. Doctors and
// patients share one id space, so a bare id is ambiguous.
type ParticipantKind string

const (
	PatientKind ParticipantKind = "patient"
	DoctorKind  ParticipantKind = "doctor"
)

func (k ParticipantKind) Valid() bool {
	return k == PatientKind || k == DoctorKind
}

// Opposite returns the kind on the other side of a clinician–patient chat.
func (k ParticipantKind) Opposite() ParticipantKind {
	if k == DoctorKind {
		return PatientKind
	}
	return DoctorKind
}

// Participant is the tagged {kind, id} pair identifying one side of a chat.
type Participant struct {
	Kind ParticipantKind `json:"kind"`
	ID   uuid.UUID       `json:"id"`
}

func (p Participant) String() string {
	return fmt.Sprintf("%s:%s", p.Kind, p.ID)
}
