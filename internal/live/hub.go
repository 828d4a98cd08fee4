// Package live fans request changes out to in-process stream subscribers.
package live

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"kitchen_requests/internal/logger"
)

// Subscriber receives ids of requests that changed. Its channel is closed when the
// subscriber is removed, either by Unsubscribe, by Close or because it fell behind.
type Subscriber struct {
	ID string

	ch      chan uint
	dropped atomic.Bool
}

func (s *Subscriber) Updates() <-chan uint { return s.ch }

// Dropped reports whether the hub removed the subscriber for being too slow.
func (s *Subscriber) Dropped() bool { return s.dropped.Load() }

type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscriber
	buffer int
	closed bool
	log    *logger.Logger
}

func NewHub(buffer int, log *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]*Subscriber),
		buffer: buffer,
		log:    log.With("service", "LiveHub"),
	}
}

// Subscribe registers a subscriber. After Close the returned subscriber is already
// closed.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ID: uuid.NewString(), ch: make(chan uint, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s.ID] = s
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.ID]; ok {
		delete(h.subs, s.ID)
		close(s.ch)
	}
}

// Broadcast hands requestID to every subscriber without blocking. A subscriber
// whose buffer is full is dropped.
func (h *Hub) Broadcast(requestID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		select {
		case s.ch <- requestID:
		default:
			s.dropped.Store(true)
			delete(h.subs, id)
			close(s.ch)
			h.log.Warn("dropping slow subscriber", "subscriber", id)
		}
	}
}

// Announce implements the pipeline's change announcer for a single instance.
func (h *Hub) Announce(_ context.Context, requestID uint) error {
	h.Broadcast(requestID)
	return nil
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
}
