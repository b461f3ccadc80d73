// Package notify fans side-channel alerts out to UI subscribers. Alerts
// carry no domain state; they tell the operator something happened
// (assistant failure, bridge pairing, connection health) and nothing else.
package notify

import (
	"sync"
	"time"

	"github.com/praxishq/dashboard-core/pkg/logging"
)

// Alert kinds surfaced to the dashboard.
const (
	KindAssistantFailed = "assistant_failed"
	KindBridgeReady     = "bridge_ready"
	KindBridgeQR        = "bridge_qr"
	KindConnectionLost  = "connection_lost"
	KindConnectionOpen  = "connection_open"
)

// Alert is a single side-channel notification.
type Alert struct {
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversationId,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Hub buffers recent alerts and delivers them to live subscribers.
// Publishing never blocks: a subscriber that cannot keep up loses its
// oldest undelivered alert.
type Hub struct {
	logger *logging.Logger

	mu     sync.Mutex
	recent []Alert
	cap    int
	subs   map[chan Alert]struct{}
}

// NewHub creates a hub retaining the last `capacity` alerts.
func NewHub(capacity int, logger *logging.Logger) *Hub {
	if capacity <= 0 {
		capacity = 50
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger: logger,
		cap:    capacity,
		subs:   make(map[chan Alert]struct{}),
	}
}

// Publish records the alert and pushes it to every subscriber without
// blocking the caller.
func (h *Hub) Publish(alert Alert) {
	if h == nil {
		return
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	h.recent = append(h.recent, alert)
	if len(h.recent) > h.cap {
		h.recent = h.recent[len(h.recent)-h.cap:]
	}
	for ch := range h.subs {
		select {
		case ch <- alert:
		default:
			// Slow subscriber: drop its oldest pending alert to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- alert:
			default:
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("alert published", "kind", alert.Kind, "conversation_id", alert.ConversationID)
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away.
func (h *Hub) Subscribe() (<-chan Alert, func()) {
	ch := make(chan Alert, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// Recent returns up to n of the most recent alerts, newest last.
func (h *Hub) Recent(n int) []Alert {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.recent) {
		n = len(h.recent)
	}
	out := make([]Alert, n)
	copy(out, h.recent[len(h.recent)-n:])
	return out
}
