package tracking

import (
	"sync"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Subscriber is one live-feed consumer. Events arrive on a bounded channel;
// when the consumer falls behind, the oldest buffered events are dropped
// first, since position is a latest-wins quantity.
type Subscriber struct {
	id  string
	ch  chan models.FeedEvent
	hub *Hub
}

// Events returns the subscriber's event channel. It is closed on Close.
func (s *Subscriber) Events() <-chan models.FeedEvent {
	return s.ch
}

// Close unsubscribes and releases the subscriber's resources. Safe to call
// more than once; other subscribers are unaffected.
func (s *Subscriber) Close() {
	s.hub.unsubscribe(s.id)
}

// Hub fans feed events out to all live subscribers. Publishing never blocks:
// a full subscriber buffer sheds its oldest event. Per-driver ordering is
// preserved because every publish runs under the hub lock, and stale position
// samples (older recorded_at than the last published for that driver) are
// dropped at the door.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]*Subscriber
	buffer   int
	lastSeen map[string]time.Time // driver id -> recorded_at of last published position
	log      *logrus.Logger
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int, log *logrus.Logger) *Hub {
	if buffer < 1 {
		buffer = 64
	}
	return &Hub{
		subs:     make(map[string]*Subscriber),
		buffer:   buffer,
		lastSeen: make(map[string]time.Time),
		log:      log,
	}
}

// Subscribe registers a new consumer and returns it.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		id:  uuid.NewString(),
		ch:  make(chan models.FeedEvent, h.buffer),
		hub: h,
	}
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
}

// Publish delivers one event to every subscriber.
func (h *Hub) Publish(ev models.FeedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Type == models.FeedPosition {
		if last, ok := h.lastSeen[ev.DriverID]; ok && !ev.RecordedAt.After(last) {
			return // stale sample, never delivered out of order
		}
		h.lastSeen[ev.DriverID] = ev.RecordedAt
	}

	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		// Buffer full: shed the oldest event, then retry once.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			h.log.WithField("subscriber", sub.id).Warn("live feed subscriber dropped an event")
		}
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
