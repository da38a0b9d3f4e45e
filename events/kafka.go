package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anjiri1684/medichat/models"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	MessageCommittedType = "message.committed"
	UnreadReminderType   = "unread.reminder"
)

type MessageCommitted struct {
	Type           string          `json:"type"`
	Message        *models.Message `json:"message"`
	ReceiverOnline bool            `json:"receiver_online"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

type UnreadReminder struct {
	Type         string                 `json:"type"`
	ReceiverID   uuid.UUID              `json:"receiver_id"`
	ReceiverKind models.ParticipantKind `json:"receiver_kind"`
	Unread       int64                  `json:"unread"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes chat events to a single topic, keyed by receiver so
// each receiver's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &KafkaPublisher{writer: w, now: time.Now}
}

func (p *KafkaPublisher) PublishMessageCommitted(ctx context.Context, msg *models.Message, receiverOnline bool) error {
	return p.write(ctx, msg.ReceiverID, MessageCommitted{
		Type:           MessageCommittedType,
		Message:        msg,
		ReceiverOnline: receiverOnline,
		OccurredAt:     p.now().UTC(),
	})
}

func (p *KafkaPublisher) PublishUnreadReminder(ctx context.Context, receiverID uuid.UUID, kind models.ParticipantKind, unread int64) error {
	return p.write(ctx, receiverID, UnreadReminder{
		Type:         UnreadReminderType,
		ReceiverID:   receiverID,
		ReceiverKind: kind,
		Unread:       unread,
		OccurredAt:   p.now().UTC(),
	})
}

func (p *KafkaPublisher) write(ctx context.Context, key uuid.UUID, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key.String()),
		Value: b,
		Time:  p.now(),
	})
	if err != nil {
		return fmt.Errorf("events: write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
