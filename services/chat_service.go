package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anjiri1684/medichat/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Router pushes committed messages to live sessions.
type Router interface {
	OnMessageCommitted(msg *models.Message)
	Online(userID uuid.UUID) bool
}

// EventPublisher forwards committed messages to downstream consumers such as
// the notification service.
type EventPublisher interface {
	PublishMessageCommitted(ctx context.Context, msg *models.Message, receiverOnline bool) error
}

const (
	commitStripes  = 64
	publishTimeout = 5 * time.Second
)

type SendRequest struct {
	ReceiverID uuid.UUID
	Text       string
	ImageURL   *string
	AudioURL   *string
	BookingID  *uuid.UUID
}

// ChatService sequences the store, read tracker and router for the
// request-level chat operations.
type ChatService struct {
	store    *MessageStore
	reads    *ReadStateTracker
	index    *ConversationIndex
	admin    *ChatAdministration
	identity IdentityDirectory
	router   Router
	events   EventPublisher
	log      *zap.SugaredLogger

	// Sends touching the same participant hold the same stripe across
	// append and publish, so each live channel sees commit order.
	stripes [commitStripes]sync.Mutex
}

type ChatServiceDeps struct {
	Store    *MessageStore
	Reads    *ReadStateTracker
	Index    *ConversationIndex
	Admin    *ChatAdministration
	Identity IdentityDirectory
	Router   Router
	Events   EventPublisher
	Log      *zap.SugaredLogger
}

func NewChatService(d ChatServiceDeps) *ChatService {
	return &ChatService{
		store:    d.Store,
		reads:    d.Reads,
		index:    d.Index,
		admin:    d.Admin,
		identity: d.Identity,
		router:   d.Router,
		events:   d.Events,
		log:      d.Log,
	}
}

func stripeOf(id uuid.UUID) int {
	return int(id[len(id)-1]) % commitStripes
}

func (s *ChatService) lockChannels(a, b uuid.UUID) func() {
	i, j := stripeOf(a), stripeOf(b)
	if i > j {
		i, j = j, i
	}
	s.stripes[i].Lock()
	if j != i {
		s.stripes[j].Lock()
	}
	return func() {
		if j != i {
			s.stripes[j].Unlock()
		}
		s.stripes[i].Unlock()
	}
}

// Send persists a message from sender and then fans it out. The receiver
// must be a known participant of the opposite kind; neither kind comes from
// the client payload.
func (s *ChatService) Send(ctx context.Context, sender models.Participant, req SendRequest) (*models.Message, error) {
	if !sender.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown sender kind %q", ErrInvalidMessage, sender.Kind)
	}

	receiverKind := sender.Kind.Opposite()
	if err := s.resolveReceiver(ctx, receiverKind, req.ReceiverID); err != nil {
		return nil, err
	}

	draft := models.Message{
		SenderID:     sender.ID,
		SenderKind:   sender.Kind,
		ReceiverID:   req.ReceiverID,
		ReceiverKind: receiverKind,
		Text:         req.Text,
		ImageURL:     req.ImageURL,
		AudioURL:     req.AudioURL,
		BookingID:    req.BookingID,
	}

	unlock := s.lockChannels(draft.SenderID, draft.ReceiverID)
	msg, err := s.store.Append(ctx, draft)
	if err != nil {
		unlock()
		return nil, err
	}
	s.router.OnMessageCommitted(msg)
	unlock()

	s.publish(msg)
	return msg, nil
}

func (s *ChatService) resolveReceiver(ctx context.Context, kind models.ParticipantKind, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: sender and receiver are required", ErrInvalidMessage)
	}
	var (
		ok  bool
		err error
	)
	if kind == models.DoctorKind {
		ok, err = s.identity.DoctorExists(ctx, id)
	} else {
		ok, err = s.identity.PatientExists(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("resolve receiver %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: receiver %s is not a known %s", ErrInvalidMessage, id, kind)
	}
	return nil
}

func (s *ChatService) publish(msg *models.Message) {
	if s.events == nil {
		return
	}
	online := s.router.Online(msg.ReceiverID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.events.PublishMessageCommitted(ctx, msg, online); err != nil {
			s.log.Warnw("publish message committed", "message_id", msg.ID, "error", err)
		}
	}()
}

// sides works out which end of the doctor/patient pair the caller is.
func sides(caller models.Participant, doctorID, patientID uuid.UUID) (owner, counterpart uuid.UUID, err error) {
	switch {
	case caller.Kind == models.DoctorKind && caller.ID == doctorID:
		return doctorID, patientID, nil
	case caller.Kind == models.PatientKind && caller.ID == patientID:
		return patientID, doctorID, nil
	}
	return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %s is not part of this conversation", ErrForbidden, caller)
}

// Fetch marks the caller's incoming messages read and then returns the whole
// conversation, so the result already reflects the read transition.
func (s *ChatService) Fetch(ctx context.Context, caller models.Participant, doctorID, patientID uuid.UUID) ([]models.Message, error) {
	owner, counterpart, err := sides(caller, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	if _, err := s.reads.MarkRead(ctx, owner, counterpart); err != nil {
		return nil, err
	}
	return s.store.FetchRange(ctx, doctorID, patientID)
}

func (s *ChatService) MarkRead(ctx context.Context, caller models.Participant, doctorID, patientID uuid.UUID) (int64, error) {
	owner, counterpart, err := sides(caller, doctorID, patientID)
	if err != nil {
		return 0, err
	}
	return s.reads.MarkRead(ctx, owner, counterpart)
}

func (s *ChatService) UnreadCount(ctx context.Context, caller models.Participant, doctorID, patientID uuid.UUID) (int64, error) {
	owner, counterpart, err := sides(caller, doctorID, patientID)
	if err != nil {
		return 0, err
	}
	return s.reads.UnreadCount(ctx, owner, counterpart)
}

func (s *ChatService) UnreadTotal(ctx context.Context, caller models.Participant) (int64, error) {
	return s.reads.UnreadTotal(ctx, caller.ID)
}

// Clear lets either participant wipe the conversation.
func (s *ChatService) Clear(ctx context.Context, caller models.Participant, doctorID, patientID uuid.UUID) error {
	if _, _, err := sides(caller, doctorID, patientID); err != nil {
		return err
	}
	return s.admin.Clear(ctx, doctorID, patientID)
}

// Contacts resolves a doctor's participant ids to display profiles. Ids the
// identity directory does not know are left out.
func (s *ChatService) Contacts(ctx context.Context, doctorID uuid.UUID) ([]models.Profile, error) {
	ids, err := s.index.ListParticipants(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}
	profiles, err := s.identity.Profiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("contacts: resolve profiles: %w", err)
	}
	return profiles, nil
}

// Online reports whether userID has a live session on this instance.
func (s *ChatService) Online(userID uuid.UUID) bool {
	return s.router.Online(userID)
}
