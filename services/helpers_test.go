package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/medichat/metrics"
	"github.com/anjiri1684/medichat/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Message{}))
	return db
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func doctor(id uuid.UUID) models.Participant {
	return models.Participant{Kind: models.DoctorKind, ID: id}
}

func patient(id uuid.UUID) models.Participant {
	return models.Participant{Kind: models.PatientKind, ID: id}
}

func textFrom(from models.Participant, to uuid.UUID, text string) models.Message {
	return models.Message{
		SenderID:     from.ID,
		SenderKind:   from.Kind,
		ReceiverID:   to,
		ReceiverKind: from.Kind.Opposite(),
		Text:         text,
	}
}

func texts(messages []models.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Text)
	}
	return out
}

type fakeIdentity struct {
	doctors  map[uuid.UUID]bool
	patients map[uuid.UUID]bool
	profiles map[uuid.UUID]models.Profile
	err      error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{doctors: map[uuid.UUID]bool{}, patients: map[uuid.UUID]bool{}, profiles: map[uuid.UUID]models.Profile{}}
}

func (f *fakeIdentity) DoctorExists(_ context.Context, id uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.doctors[id], nil
}

func (f *fakeIdentity) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.patients[id], nil
}

func (f *fakeIdentity) Profiles(_ context.Context, ids []uuid.UUID) ([]models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Profile{}
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeBookings struct {
	refs []any
	err  error
}

func (f *fakeBookings) PatientRefs(context.Context, uuid.UUID) ([]any, error) {
	return f.refs, f.err
}

type recordingRouter struct {
	mu        sync.Mutex
	committed []*models.Message
	online    map[uuid.UUID]bool
}

func (r *recordingRouter) OnMessageCommitted(msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msg)
}

func (r *recordingRouter) Online(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[id]
}

func (r *recordingRouter) messages() []*models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Message(nil), r.committed...)
}

type publishedEvent struct {
	msg    *models.Message
	online bool
}

type recordingPublisher struct {
	ch chan publishedEvent
}

func (p *recordingPublisher) PublishMessageCommitted(_ context.Context, msg *models.Message, online bool) error {
	p.ch <- publishedEvent{msg, online}
	return nil
}

type failingPublisher struct{}

func (failingPublisher) PublishMessageCommitted(context.Context, *models.Message, bool) error {
	return errors.New("broker unavailable")
}

type chatFixture struct {
	db       *gorm.DB
	metrics  *metrics.Metrics
	store    *MessageStore
	reads    *ReadStateTracker
	identity *fakeIdentity
	bookings *fakeBookings
	router   *recordingRouter
	chat     *ChatService
}

func newChatFixture(t *testing.T, events EventPublisher) *chatFixture {
	t.Helper()
	db := openTestDB(t)
	m := newTestMetrics()
	log := zap.NewNop().Sugar()

	f := &chatFixture{
		db:       db,
		metrics:  m,
		store:    NewMessageStore(db, m),
		reads:    NewReadStateTracker(db, m),
		identity: newFakeIdentity(),
		bookings: &fakeBookings{},
		router:   &recordingRouter{online: map[uuid.UUID]bool{}},
	}
	f.chat = NewChatService(ChatServiceDeps{
		Store:    f.store,
		Reads:    f.reads,
		Index:    NewConversationIndex(f.store, f.bookings, f.identity, log),
		Admin:    NewChatAdministration(f.store, m, log),
		Identity: f.identity,
		Router:   f.router,
		Events:   events,
		Log:      log,
	})
	return f
}

func (f *chatFixture) newDoctor() models.Participant {
	p := doctor(uuid.New())
	f.identity.doctors[p.ID] = true
	return p
}

func (f *chatFixture) newPatient() models.Participant {
	p := patient(uuid.New())
	f.identity.patients[p.ID] = true
	return p
}

// frozenClock returns the same instant on every call.
func frozenClock() func() time.Time {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}
