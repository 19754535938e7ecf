package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the pipeline and the scheduler.
const (
	TypeIdeaTransition = "idea_transition"
	TypeAgentStatus    = "agent_status"
	TypeLoopStatus     = "loop_status"
	TypeRebalanceHint  = "rebalance_hint"
)

type Event struct {
	Type   string    `json:"type"`
	Loop   string    `json:"loop,omitempty"`
	Agent  string    `json:"agent,omitempty"`
	IdeaID string    `json:"idea_id,omitempty"`
	Status string    `json:"status,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Hub fans out pipeline events to subscribers. Slow subscribers drop events
// instead of blocking publishers.
type Hub struct {
	mu   sync.RWMutex
	subs []chan Event

	logger        *zap.Logger
	droppedFanout uint64
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger}
}

// Subscribe returns a channel receiving every published event.
func (h *Hub) Subscribe(buf int) <-chan Event {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if sub == ch {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&h.droppedFanout, 1)
		}
	}
}

func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return atomic.LoadUint64(&h.droppedFanout)
}
