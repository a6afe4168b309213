// Package events fans status events out to live views and remote clients.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Hub delivers each published event to every subscriber. Publish never
// blocks: a subscriber whose queue is full misses the event.
type Hub struct {
	logger *slog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[uint64]chan model.StatusEvent
	nextID uint64
	closed bool

	dropped atomic.Uint64
}

// NewHub returns an empty hub.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{logger: logger, buffer: buffer, subs: map[uint64]chan model.StatusEvent{}}
}

// Publish implements engine.StatusSink.
func (h *Hub) Publish(ev model.StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			if h.dropped.Add(1)%100 == 1 {
				h.logger.Warn("status subscriber is slow, dropping events", "subscriber", id, "dropped_total", h.dropped.Load())
			}
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func removes it
// and closes the channel.
func (h *Hub) Subscribe() (<-chan model.StatusEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan model.StatusEvent, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Dropped reports how many deliveries were skipped.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
