package services

import (
	"context"

	"github.com/anjiri1684/medichat/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChatAdministration struct {
	store   *MessageStore
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

func NewChatAdministration(store *MessageStore, m *metrics.Metrics, log *zap.SugaredLogger) *ChatAdministration {
	return &ChatAdministration{store: store, metrics: m, log: log}
}

// Clear deletes the conversation between a doctor and a patient. Clearing a
// conversation that has no messages succeeds.
func (a *ChatAdministration) Clear(ctx context.Context, doctorID, userID uuid.UUID) error {
	removed, err := a.store.DeleteConversation(ctx, doctorID, userID)
	if err != nil {
		return err
	}
	a.metrics.ConversationsCleared.Inc()
	a.log.Infow("conversation cleared", "doctor_id", doctorID, "user_id", userID, "removed", removed)
	return nil
}
