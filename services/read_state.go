package services

import (
	"context"
	"time"

	"github.com/anjiri1684/medichat/metrics"
	"github.com/anjiri1684/medichat/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReadStateTracker owns the only mutation a message ever sees: the one-way
// transition of is_read from false to true.
type ReadStateTracker struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

func NewReadStateTracker(db *gorm.DB, m *metrics.Metrics) *ReadStateTracker {
	return &ReadStateTracker{db: db, metrics: m}
}

// MarkRead flags every unread message sent by counterpart to owner as read
// and returns how many rows changed. It is a single conditional update, so a
// message appended after the statement starts stays unread.
func (r *ReadStateTracker) MarkRead(ctx context.Context, owner, counterpart uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", owner, counterpart, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, storageError("mark read", res.Error)
	}
	if res.RowsAffected > 0 {
		r.metrics.MessagesMarkedRead.Add(float64(res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// UnreadCount counts messages from counterpart that owner has not read yet.
func (r *ReadStateTracker) UnreadCount(ctx context.Context, owner, counterpart uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", owner, counterpart, false).
		Count(&count).Error
	if err != nil {
		return 0, storageError("unread count", err)
	}
	return count, nil
}

// UnreadTotal counts every unread message addressed to owner.
func (r *ReadStateTracker) UnreadTotal(ctx context.Context, owner uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("receiver_id = ? AND is_read = ?", owner, false).
		Count(&count).Error
	if err != nil {
		return 0, storageError("unread total", err)
	}
	return count, nil
}

type UnreadSummary struct {
	ReceiverID   uuid.UUID
	ReceiverKind models.ParticipantKind
	Count        int64
}

// UnreadSince groups messages created in [from, to) that are still unread by
// receiver.
func (r *ReadStateTracker) UnreadSince(ctx context.Context, from, to time.Time) ([]UnreadSummary, error) {
	var out []UnreadSummary
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("receiver_id, receiver_kind, COUNT(*) AS count").
		Where("is_read = ? AND created_at >= ? AND created_at < ?", false, from.UTC(), to.UTC()).
		Group("receiver_id, receiver_kind").
		Scan(&out).Error
	if err != nil {
		return nil, storageError("unread since", err)
	}
	return out, nil
}
