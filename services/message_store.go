package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anjiri1684/medichat/metrics"
	"github.com/anjiri1684/medichat/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const pairCondition = "(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)"

// MessageStore is the append-only message log. It is the only writer of
// message rows apart from the read flag.
type MessageStore struct {
	db      *gorm.DB
	metrics *metrics.Metrics

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewMessageStore(db *gorm.DB, m *metrics.Metrics) *MessageStore {
	return &MessageStore{db: db, metrics: m, now: time.Now}
}

// stamp hands out strictly increasing creation times so that created_at alone
// orders the log. Microsecond resolution matches postgres timestamps.
func (s *MessageStore) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// Append validates msg, assigns its id and creation time and writes it as a
// single record. The returned message is what was stored.
func (s *MessageStore) Append(ctx context.Context, msg models.Message) (*models.Message, error) {
	if msg.SenderID == uuid.Nil || msg.ReceiverID == uuid.Nil {
		return nil, fmt.Errorf("%w: sender and receiver are required", ErrInvalidMessage)
	}
	if !msg.SenderKind.Valid() || !msg.ReceiverKind.Valid() {
		return nil, fmt.Errorf("%w: unknown participant kind", ErrInvalidMessage)
	}
	if !msg.HasContent() {
		return nil, fmt.Errorf("%w: message text, image or audio is required", ErrInvalidMessage)
	}

	msg.ID = uuid.New()
	msg.IsRead = false
	msg.CreatedAt = s.stamp()

	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, storageError("append", err)
	}
	s.metrics.MessagesAppended.Inc()
	return &msg, nil
}

// FetchRange returns every message exchanged between a and b, in either
// direction, oldest first.
func (s *MessageStore) FetchRange(ctx context.Context, a, b uuid.UUID) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.WithContext(ctx).
		Where(pairCondition, a, b, b, a).
		Order("created_at asc").
		Order("id asc").
		Find(&messages).Error
	if err != nil {
		return nil, storageError("fetch range", err)
	}
	return messages, nil
}

// DeleteConversation removes the whole conversation between a and b. Deleting
// an empty conversation is not an error.
func (s *MessageStore) DeleteConversation(ctx context.Context, a, b uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).
		Where(pairCondition, a, b, b, a).
		Delete(&models.Message{})
	if res.Error != nil {
		return 0, storageError("delete conversation", res.Error)
	}
	return res.RowsAffected, nil
}

// Counterparts lists every id that has sent a message to, or received one
// from, id.
func (s *MessageStore) Counterparts(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var senders, receivers []uuid.UUID
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Message{}).
		Where("receiver_id = ?", id).
		Distinct().
		Pluck("sender_id", &senders).Error; err != nil {
		return nil, storageError("counterparts", err)
	}
	if err := db.Model(&models.Message{}).
		Where("sender_id = ?", id).
		Distinct().
		Pluck("receiver_id", &receivers).Error; err != nil {
		return nil, storageError("counterparts", err)
	}
	return append(senders, receivers...), nil
}
