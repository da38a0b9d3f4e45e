package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/anjiri1684/medichat/metrics"
	"github.com/anjiri1684/medichat/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	NewMessageEvent = "new_message"
	JoinedEvent     = "joined"
	ErrorEvent      = "error"

	presenceTimeout = 2 * time.Second
)

// Event is the envelope written to live sessions.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PresenceRecorder mirrors session counts somewhere other instances can see.
type PresenceRecorder interface {
	Joined(ctx context.Context, userID uuid.UUID) error
	Left(ctx context.Context, userID uuid.UUID) error
}

type opKind int

const (
	opJoin opKind = iota
	opLeave
	opBroadcast
)

type hubOp struct {
	kind   opKind
	client *Client
	msg    *models.Message
}

type HubOptions struct {
	EchoToSender bool
	QueueSize    int
	Presence     PresenceRecorder
	Metrics      *metrics.Metrics
	Log          *zap.SugaredLogger
}

// Hub binds live sessions to per-user channels and fans committed messages
// out to them. Joins, leaves and broadcasts share one FIFO queue drained by
// Run, so a session sees every message committed after its Join returned, in
// commit order.
type Hub struct {
	ops  chan hubOp
	done chan struct{}

	// owned by Run
	channels map[uuid.UUID]map[*Client]struct{}

	mu     sync.RWMutex
	online map[uuid.UUID]int

	mirrors *mirrorQueue

	echo     bool
	presence PresenceRecorder
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
}

func NewHub(opts HubOptions) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	return &Hub{
		ops:      make(chan hubOp, opts.QueueSize),
		done:     make(chan struct{}),
		channels: make(map[uuid.UUID]map[*Client]struct{}),
		online:   make(map[uuid.UUID]int),
		mirrors:  newMirrorQueue(),
		echo:     opts.EchoToSender,
		presence: opts.Presence,
		metrics:  opts.Metrics,
		log:      opts.Log,
	}
}

// Run drains the hub queue until ctx is cancelled. Remaining sessions are
// closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.presence != nil {
		mirrored := make(chan struct{})
		go func() {
			h.mirrors.drain(h.applyMirror)
			close(mirrored)
		}()
		defer func() {
			h.mirrors.close()
			<-mirrored
		}()
	}
	for {
		select {
		case op := <-h.ops:
			switch op.kind {
			case opJoin:
				h.add(op.client)
			case opLeave:
				h.remove(op.client)
			case opBroadcast:
				h.deliver(op.msg)
			}
		case <-ctx.Done():
			for _, clients := range h.channels {
				for c := range clients {
					h.remove(c)
				}
			}
			return
		}
	}
}

// Join binds c to the channel named after its user id.
func (h *Hub) Join(c *Client) {
	c.hub = h
	if h.stopped() {
		c.closeSend()
		return
	}
	select {
	case h.ops <- hubOp{kind: opJoin, client: c}:
	case <-h.done:
		c.closeSend()
	}
}

// Leave unbinds c. Safe to call more than once.
func (h *Hub) Leave(c *Client) {
	if h.stopped() {
		c.closeSend()
		return
	}
	select {
	case h.ops <- hubOp{kind: opLeave, client: c}:
	case <-h.done:
		c.closeSend()
	}
}

// OnMessageCommitted queues msg for fan-out. It waits for room in the queue
// rather than drop a message a bound session would otherwise never see.
// Callers serialize per channel, so waiting here keeps commit order.
func (h *Hub) OnMessageCommitted(msg *models.Message) {
	if h.stopped() {
		h.metrics.FanoutMisses.Inc()
		return
	}
	select {
	case h.ops <- hubOp{kind: opBroadcast, msg: msg}:
	case <-h.done:
		h.metrics.FanoutMisses.Inc()
		h.log.Debugw("hub stopped, live delivery skipped", "message_id", msg.ID)
	}
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Online reports whether userID has at least one session bound here.
func (h *Hub) Online(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online[userID] > 0
}

func (h *Hub) add(c *Client) {
	clients, ok := h.channels[c.UserID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.channels[c.UserID] = clients
	}
	clients[c] = struct{}{}

	h.mu.Lock()
	h.online[c.UserID]++
	h.mu.Unlock()

	h.metrics.LiveSessions.Inc()
	h.log.Debugw("session joined", "session_id", c.SessionID, "user_id", c.UserID)
	h.mirror(c.UserID, true)
}

func (h *Hub) remove(c *Client) {
	clients, ok := h.channels[c.UserID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.channels, c.UserID)
	}
	c.closeSend()

	h.mu.Lock()
	if h.online[c.UserID]--; h.online[c.UserID] <= 0 {
		delete(h.online, c.UserID)
	}
	h.mu.Unlock()

	h.metrics.LiveSessions.Dec()
	h.log.Debugw("session left", "session_id", c.SessionID, "user_id", c.UserID)
	h.mirror(c.UserID, false)
}

func (h *Hub) deliver(msg *models.Message) {
	ev := Event{Event: NewMessageEvent, Data: msg}

	if n := h.push(msg.ReceiverID, ev); n == 0 {
		h.metrics.FanoutMisses.Inc()
		h.log.Debugw("receiver offline", "message_id", msg.ID, "receiver_id", msg.ReceiverID)
	}
	if h.echo && msg.SenderID != msg.ReceiverID {
		h.push(msg.SenderID, ev)
	}
}

// push queues ev on every session of userID. A session whose buffer is full
// is disconnected; it catches up by fetching the conversation.
func (h *Hub) push(userID uuid.UUID, ev Event) int {
	delivered := 0
	for c := range h.channels[userID] {
		select {
		case c.send <- ev:
			delivered++
			h.metrics.FanoutDeliveries.Inc()
		default:
			h.log.Warnw("session too slow, disconnecting", "session_id", c.SessionID, "user_id", userID)
			h.remove(c)
		}
	}
	return delivered
}

// mirror queues a presence update. Updates reach the recorder one at a time
// in the order the hub made them, so a join is never overtaken by its leave.
func (h *Hub) mirror(userID uuid.UUID, joined bool) {
	if h.presence == nil {
		return
	}
	h.mirrors.push(presenceUpdate{userID: userID, joined: joined})
}

func (h *Hub) applyMirror(u presenceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	var err error
	if u.joined {
		err = h.presence.Joined(ctx, u.userID)
	} else {
		err = h.presence.Left(ctx, u.userID)
	}
	if err != nil {
		h.log.Warnw("presence mirror failed", "user_id", u.userID, "joined", u.joined, "error", err)
	}
}

type presenceUpdate struct {
	userID uuid.UUID
	joined bool
}

// mirrorQueue is an unbounded FIFO so the hub loop never waits on Redis.
type mirrorQueue struct {
	mu      sync.Mutex
	pending []presenceUpdate
	closed  bool
	wake    chan struct{}
}

func newMirrorQueue() *mirrorQueue {
	return &mirrorQueue{wake: make(chan struct{}, 1)}
}

func (q *mirrorQueue) push(u presenceUpdate) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, u)
	q.mu.Unlock()
	q.signal()
}

func (q *mirrorQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *mirrorQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain applies updates in order until the queue is closed and empty.
func (q *mirrorQueue) drain(apply func(presenceUpdate)) {
	for {
		q.mu.Lock()
		batch, closed := q.pending, q.closed
		q.pending = nil
		q.mu.Unlock()

		for _, u := range batch {
			apply(u)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}
