package websocket

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
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu      sync.Mutex
	events  []Event
	written chan Event
	failAt  int
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{written: make(chan Event, 100), failAt: -1}
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt >= 0 && len(f.events) == f.failAt {
		return errors.New("broken pipe")
	}
	ev := v.(Event)
	f.events = append(f.events, ev)
	f.written <- ev
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-f.written:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (f *fakeConn) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case ev := <-f.written:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func startHub(t *testing.T, echo bool) (*Hub, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(HubOptions{EchoToSender: echo, Metrics: m, Log: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, m
}

func connect(h *Hub, userID uuid.UUID, buffer int) (*Client, *fakeConn) {
	conn := newFakeConn()
	c := NewClient(userID, conn, buffer)
	h.Join(c)
	go c.WritePump()
	return c, conn
}

func message(from, to uuid.UUID, text string) *models.Message {
	return &models.Message{
		ID:           uuid.New(),
		SenderID:     from,
		SenderKind:   models.PatientKind,
		ReceiverID:   to,
		ReceiverKind: models.DoctorKind,
		Text:         text,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestHub_DeliversInCommitOrder(t *testing.T) {
	h, _ := startHub(t, false)
	doctor, patient := uuid.New(), uuid.New()
	_, conn := connect(h, doctor, 16)

	for _, text := range []string{"a", "b", "c"} {
		h.OnMessageCommitted(message(patient, doctor, text))
	}

	for _, want := range []string{"a", "b", "c"} {
		ev := conn.next(t)
		require.Equal(t, NewMessageEvent, ev.Event)
		require.Equal(t, want, ev.Data.(*models.Message).Text)
	}
}

func TestHub_AllSessionsOfUserReceive(t *testing.T) {
	h, _ := startHub(t, false)
	doctor, patient := uuid.New(), uuid.New()
	_, phone := connect(h, doctor, 16)
	_, laptop := connect(h, doctor, 16)

	h.OnMessageCommitted(message(patient, doctor, "hello"))

	require.Equal(t, "hello", phone.next(t).Data.(*models.Message).Text)
	require.Equal(t, "hello", laptop.next(t).Data.(*models.Message).Text)
	require.True(t, h.Online(doctor))
	require.False(t, h.Online(patient))
}

func TestHub_EchoToSender(t *testing.T) {
	h, _ := startHub(t, true)
	doctor, patient := uuid.New(), uuid.New()
	_, patientConn := connect(h, patient, 16)
	_, otherConn := connect(h, uuid.New(), 16)

	h.OnMessageCommitted(message(patient, doctor, "echo"))

	require.Equal(t, "echo", patientConn.next(t).Data.(*models.Message).Text)
	otherConn.expectNothing(t)
}

func TestHub_NoEchoWhenDisabled(t *testing.T) {
	h, _ := startHub(t, false)
	doctor, patient := uuid.New(), uuid.New()
	_, patientConn := connect(h, patient, 16)

	h.OnMessageCommitted(message(patient, doctor, "quiet"))

	patientConn.expectNothing(t)
}

func TestHub_MissWhenReceiverOffline(t *testing.T) {
	h, m := startHub(t, false)
	doctor, patient := uuid.New(), uuid.New()
	// a bound session for someone else keeps the loop observable
	_, other := connect(h, patient, 16)

	h.OnMessageCommitted(message(patient, doctor, "nobody home"))
	h.OnMessageCommitted(message(doctor, patient, "sync"))

	other.next(t)
	require.Equal(t, float64(1), testutil.ToFloat64(m.FanoutMisses))
	require.Equal(t, float64(1), testutil.ToFloat64(m.FanoutDeliveries))
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h, m := startHub(t, false)
	doctor, patient := uuid.New(), uuid.New()
	c, conn := connect(h, doctor, 16)
	_, witness := connect(h, patient, 16)

	h.Leave(c)
	h.Leave(c)
	h.OnMessageCommitted(message(patient, doctor, "after leave"))
	h.OnMessageCommitted(message(doctor, patient, "sync"))

	witness.next(t)
	conn.expectNothing(t)
	require.False(t, h.Online(doctor))
	require.Eventually(t, conn.isClosed, time.Second, 10*time.Millisecond)
	require.Equal(t, float64(1), testutil.ToFloat64(m.LiveSessions))
}

func TestHub_RejoinDoesNotReplay(t *testing.T) {
	h, _ := startHub(t, false)
	doctor, patient := uuid.New(), uuid.New()
	c, _ := connect(h, doctor, 16)
	h.Leave(c)

	h.OnMessageCommitted(message(patient, doctor, "missed"))
	_, conn := connect(h, doctor, 16)
	h.OnMessageCommitted(message(patient, doctor, "live"))

	require.Equal(t, "live", conn.next(t).Data.(*models.Message).Text)
	conn.expectNothing(t)
}

func TestHub_WriteFailureUnbinds(t *testing.T) {
	h, _ := startHub(t, false)
	doctor, patient := uuid.New(), uuid.New()
	conn := newFakeConn()
	conn.failAt = 0
	c := NewClient(doctor, conn, 16)
	h.Join(c)
	go c.WritePump()

	h.OnMessageCommitted(message(patient, doctor, "boom"))

	require.Eventually(t, func() bool { return !h.Online(doctor) }, time.Second, 10*time.Millisecond)
	require.Eventually(t, conn.isClosed, time.Second, 10*time.Millisecond)
}

func TestHub_SlowSessionDisconnected(t *testing.T) {
	h, _ := startHub(t, false)
	doctor, patient := uuid.New(), uuid.New()
	// no WritePump: the buffer of one fills on the first message
	c := NewClient(doctor, newFakeConn(), 1)
	h.Join(c)

	h.OnMessageCommitted(message(patient, doctor, "one"))
	h.OnMessageCommitted(message(patient, doctor, "two"))

	require.Eventually(t, func() bool { return !h.Online(doctor) }, time.Second, 10*time.Millisecond)
	require.False(t, c.Notify(Event{Event: ErrorEvent}))
}

type recordingPresence struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
}

func (r *recordingPresence) Joined(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id]++
	return nil
}

func (r *recordingPresence) Left(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id]--
	return nil
}

func (r *recordingPresence) count(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

func TestHub_MirrorsPresence(t *testing.T) {
	p := &recordingPresence{counts: map[uuid.UUID]int{}}
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(HubOptions{Presence: p, Metrics: m, Log: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	doctor := uuid.New()
	a, _ := connect(h, doctor, 4)
	connect(h, doctor, 4)
	require.Eventually(t, func() bool { return p.count(doctor) == 2 }, time.Second, 10*time.Millisecond)

	h.Leave(a)
	require.Eventually(t, func() bool { return p.count(doctor) == 1 }, time.Second, 10*time.Millisecond)
}

func TestHub_FullQueueWaitsInsteadOfDropping(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(HubOptions{QueueSize: 3, Metrics: m, Log: zap.NewNop().Sugar()})
	doctor, patient := uuid.New(), uuid.New()

	conn := newFakeConn()
	c := NewClient(doctor, conn, 16)
	h.Join(c)
	go c.WritePump()

	h.OnMessageCommitted(message(patient, doctor, "m1"))
	h.OnMessageCommitted(message(patient, doctor, "m2"))

	committed := make(chan struct{})
	go func() {
		h.OnMessageCommitted(message(patient, doctor, "m3"))
		h.OnMessageCommitted(message(patient, doctor, "m4"))
		close(committed)
	}()

	select {
	case <-committed:
		t.Fatal("commit returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	for _, want := range []string{"m1", "m2", "m3", "m4"} {
		require.Equal(t, want, conn.next(t).Data.(*models.Message).Text)
	}
	<-committed
	require.True(t, h.Online(doctor))
	require.Zero(t, testutil.ToFloat64(m.FanoutMisses))
}

func TestHub_CommitAfterStopIsMiss(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(HubOptions{QueueSize: 1, Metrics: m, Log: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()
	<-h.done

	h.OnMessageCommitted(message(uuid.New(), uuid.New(), "late"))
	h.OnMessageCommitted(message(uuid.New(), uuid.New(), "later"))
	require.Equal(t, 2.0, testutil.ToFloat64(m.FanoutMisses))
}

func TestHub_LeaveAfterStopReleasesPump(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(HubOptions{Metrics: m, Log: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()
	<-h.done

	conn := newFakeConn()
	conn.failAt = 0
	c := NewClient(uuid.New(), conn, 4)
	c.hub = h
	require.True(t, c.Notify(Event{Event: JoinedEvent}))

	pumped := make(chan struct{})
	go func() {
		c.WritePump()
		close(pumped)
	}()
	h.Leave(c)

	select {
	case <-pumped:
	case <-time.After(time.Second):
		t.Fatal("write pump still running after the hub stopped")
	}
	require.True(t, conn.isClosed())
	require.False(t, c.Notify(Event{Event: ErrorEvent}))
}

func TestHub_JoinAfterStopClosesSession(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(HubOptions{Metrics: m, Log: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()
	<-h.done

	c, conn := connect(h, uuid.New(), 4)
	require.Eventually(t, conn.isClosed, time.Second, 10*time.Millisecond)
	require.False(t, c.Notify(Event{Event: ErrorEvent}))
	h.Leave(c)
}

func TestClient_NotifyRacesWithUnbind(t *testing.T) {
	h, _ := startHub(t, false)
	for i := 0; i < 50; i++ {
		c := NewClient(uuid.New(), newFakeConn(), 1)
		h.Join(c)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Notify(Event{Event: ErrorEvent})
			}
		}()
		go func() {
			defer wg.Done()
			h.Leave(c)
		}()
		wg.Wait()
	}
}

type slowPresence struct {
	mu    sync.Mutex
	count int
	calls []string
}

func (s *slowPresence) Joined(context.Context, uuid.UUID) error {
	time.Sleep(30 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	s.calls = append(s.calls, "joined")
	return nil
}

func (s *slowPresence) Left(context.Context, uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count--
	s.calls = append(s.calls, "left")
	return nil
}

func (s *slowPresence) snapshot() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, append([]string(nil), s.calls...)
}

func TestHub_PresenceMirrorKeepsOrder(t *testing.T) {
	p := &slowPresence{}
	h := NewHub(HubOptions{Presence: p, Metrics: metrics.New(prometheus.NewRegistry()), Log: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	user := uuid.New()
	c, _ := connect(h, user, 4)
	h.Leave(c)

	require.Eventually(t, func() bool {
		_, calls := p.snapshot()
		return len(calls) == 2
	}, 2*time.Second, 10*time.Millisecond)
	count, calls := p.snapshot()
	require.Equal(t, []string{"joined", "left"}, calls)
	require.Zero(t, count)
	require.False(t, h.Online(user))
}

func TestHub_StopFlushesPresence(t *testing.T) {
	p := &slowPresence{}
	h := NewHub(HubOptions{Presence: p, Metrics: metrics.New(prometheus.NewRegistry()), Log: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	connect(h, uuid.New(), 4)
	connect(h, uuid.New(), 4)
	require.Eventually(t, func() bool {
		n, _ := p.snapshot()
		return n > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-h.done
	count, _ := p.snapshot()
	require.Zero(t, count)
}
