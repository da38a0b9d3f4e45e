package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/medichat/models"
	"github.com/anjiri1684/medichat/services"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const reminderTimeout = 30 * time.Second

// ReminderPublisher hands unread reminders to the notification pipeline.
type ReminderPublisher interface {
	PublishUnreadReminder(ctx context.Context, receiverID uuid.UUID, kind models.ParticipantKind, unread int64) error
}

// UnreadReminder nudges receivers whose messages have sat unread for a while.
// Each run looks at messages created in [now-after-interval, now-after), so a
// message is considered by exactly one run as long as runs keep to schedule.
type UnreadReminder struct {
	reads     *services.ReadStateTracker
	publisher ReminderPublisher
	after     time.Duration
	interval  time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
}

func NewUnreadReminder(reads *services.ReadStateTracker, publisher ReminderPublisher, after, interval time.Duration, log *zap.SugaredLogger) *UnreadReminder {
	return &UnreadReminder{
		reads:     reads,
		publisher: publisher,
		after:     after,
		interval:  interval,
		now:       time.Now,
		log:       log,
	}
}

// ScheduleInterval returns the gap between consecutive activations of a
// standard cron spec.
func ScheduleInterval(spec string) (time.Duration, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	ref := time.Date(2000, 1, 3, 0, 0, 0, 0, time.UTC)
	first := schedule.Next(ref)
	return schedule.Next(first).Sub(first), nil
}

func (j *UnreadReminder) Run() {
	j.log.Debug("Running job: UnreadReminder...")

	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()

	to := j.now().Add(-j.after)
	from := to.Add(-j.interval)

	pending, err := j.reads.UnreadSince(ctx, from, to)
	if err != nil {
		j.log.Errorw("Error checking for unread messages", "error", err)
		return
	}

	sent := 0
	for _, p := range pending {
		if err := j.publisher.PublishUnreadReminder(ctx, p.ReceiverID, p.ReceiverKind, p.Count); err != nil {
			j.log.Warnw("unread reminder not published", "receiver_id", p.ReceiverID, "error", err)
			continue
		}
		sent++
	}
	if sent > 0 {
		j.log.Infow("unread reminders published", "count", sent, "from", from, "to", to)
	}
}
