// Package notify fans session notices out to connected listeners.
package notify

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
)

// Event names carried by Message.
const (
	EventNotice = "notice"
	EventTell   = "tell"
)

// DefaultTimeout bounds how long one send waits on slow listeners.
const DefaultTimeout = 2 * time.Second

// Message is one notice delivered to a listener.
type Message struct {
	Event string               `json:"event"`
	To    domain.ParticipantID `json:"to,omitempty"`
	Text  string               `json:"text"`
	At    time.Time            `json:"at"`
}

// Hub keeps the set of listeners. Sends never hold the lock.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan Message]domain.ParticipantID
	timeout time.Duration
	log     *slog.Logger
}

// NewHub creates an empty hub. A non-positive timeout uses DefaultTimeout.
func NewHub(timeout time.Duration, logger *slog.Logger) *Hub {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[chan Message]domain.ParticipantID),
		timeout: timeout,
		log:     logger,
	}
}

// Subscribe registers a listener. id may be empty for a watcher that only
// receives broadcasts. The returned func removes the listener.
func (h *Hub) Subscribe(id domain.ParticipantID) (<-chan Message, func()) {
	ch := make(chan Message, 16)

	h.mu.Lock()
	for _, pid := range h.clients {
		if id != "" && pid == id {
			h.log.Warn("participant opened an additional stream", "participant", id)
			break
		}
	}
	h.clients[ch] = id
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("listener removed", "participant", id, "listeners", n)
		})
	}
}

// Count returns the number of listeners.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends text to every listener.
func (h *Hub) Broadcast(ctx context.Context, text string) {
	h.send(ctx, Message{Event: EventNotice, Text: text, At: time.Now()}, func(domain.ParticipantID) bool {
		return true
	})
}

// Tell sends text to the listeners registered for id.
func (h *Hub) Tell(ctx context.Context, id domain.ParticipantID, text string) {
	h.send(ctx, Message{Event: EventTell, To: id, Text: text, At: time.Now()}, func(pid domain.ParticipantID) bool {
		return pid == id
	})
}

func (h *Hub) send(ctx context.Context, msg Message, match func(domain.ParticipantID) bool) {
	h.mu.RLock()
	clients := maps.Clone(h.clients)
	h.mu.RUnlock()

	// One deadline covers the whole send. Once it passes, remaining
	// listeners only get the notice if their buffer has room.
	deadline := time.NewTimer(h.timeout)
	defer deadline.Stop()
	expired := false

	sent, total := 0, 0
	for ch, pid := range clients {
		if !match(pid) {
			continue
		}
		total++
		if expired {
			select {
			case ch <- msg:
				sent++
			default:
				h.log.Warn("dropped notice for slow listener", "participant", pid, "event", msg.Event)
			}
			continue
		}
		select {
		case ch <- msg:
			sent++
		case <-deadline.C:
			expired = true
			h.log.Warn("dropped notice for slow listener", "participant", pid, "event", msg.Event)
		case <-ctx.Done():
			return
		}
	}
	h.log.Debug("notice sent", "event", msg.Event, "text", msg.Text, "delivered", sent, "listeners", total)
}
