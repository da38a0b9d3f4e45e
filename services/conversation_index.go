package services

import (
	"context"
	"fmt"

	"github.com/anjiri1684/medichat/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// BookingDirectory supplies the patients a doctor has a booking or queue
// relationship with. Implementations may return bare ids or whole records.
type BookingDirectory interface {
	PatientRefs(ctx context.Context, doctorID uuid.UUID) ([]any, error)
}

// IdentityDirectory resolves ids to known principals and display profiles.
type IdentityDirectory interface {
	DoctorExists(ctx context.Context, doctorID uuid.UUID) (bool, error)
	PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error)
	Profiles(ctx context.Context, ids []uuid.UUID) ([]models.Profile, error)
}

// ConversationIndex derives a doctor's contact list from message history and
// booking/queue history. Nothing is materialized; every call recomputes.
type ConversationIndex struct {
	store    *MessageStore
	bookings BookingDirectory
	identity IdentityDirectory
	log      *zap.SugaredLogger
}

func NewConversationIndex(store *MessageStore, bookings BookingDirectory, identity IdentityDirectory, log *zap.SugaredLogger) *ConversationIndex {
	return &ConversationIndex{store: store, bookings: bookings, identity: identity, log: log}
}

// ListParticipants returns the distinct ids that messaged with, booked, or
// queued for doctorID. The doctor itself is never included.
func (x *ConversationIndex) ListParticipants(ctx context.Context, doctorID uuid.UUID) ([]uuid.UUID, error) {
	ok, err := x.identity.DoctorExists(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("conversation index: resolve doctor %s: %w", doctorID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: doctor %s", ErrNotFound, doctorID)
	}

	ids, err := x.store.Counterparts(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	refs, err := x.bookings.PatientRefs(ctx, doctorID)
	if err != nil {
		// Message history alone is still a valid, if partial, answer.
		x.log.Warnw("booking history unavailable", "doctor_id", doctorID, "error", err)
	}
	for _, ref := range refs {
		if id, ok := ParticipantRefID(ref); ok {
			ids = append(ids, id)
		} else {
			x.log.Debugw("skipping unrecognised participant ref", "doctor_id", doctorID, "ref", ref)
		}
	}

	ids = lo.Uniq(ids)
	ids = lo.Without(ids, doctorID, uuid.Nil)
	return ids, nil
}

var refKeys = []string{"patient_id", "patientId", "user_id", "userId", "_id", "id"}

// ParticipantRefID normalizes whatever the booking side hands back into an
// id: a uuid, its string form, a record exposing ParticipantID, or a decoded
// JSON object carrying one of the usual id keys.
func ParticipantRefID(ref any) (uuid.UUID, bool) {
	switch v := ref.(type) {
	case nil:
		return uuid.Nil, false
	case uuid.UUID:
		return v, v != uuid.Nil
	case *uuid.UUID:
		if v == nil {
			return uuid.Nil, false
		}
		return ParticipantRefID(*v)
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil && id != uuid.Nil
	case []byte:
		id, err := uuid.ParseBytes(v)
		return id, err == nil && id != uuid.Nil
	case interface{ ParticipantID() uuid.UUID }:
		return ParticipantRefID(v.ParticipantID())
	case map[string]any:
		for _, k := range refKeys {
			if inner, ok := v[k]; ok {
				if id, ok := ParticipantRefID(inner); ok {
					return id, true
				}
			}
		}
		return uuid.Nil, false
	case fmt.Stringer:
		return ParticipantRefID(v.String())
	}
	return uuid.Nil, false
}
