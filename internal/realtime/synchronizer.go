package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/praxishq/dashboard-core/internal/chat"
	"github.com/praxishq/dashboard-core/internal/notify"
	"github.com/praxishq/dashboard-core/internal/observability/metrics"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

// EventSource is what the synchronizer consumes; the connection manager
// satisfies it.
type EventSource interface {
	Events() <-chan Envelope
	States() <-chan State
}

// ConversationSink is the conversation store surface the synchronizer
// mutates.
type ConversationSink interface {
	ApplyMessage(conversationID string, msg chat.Message) bool
	ConfirmAllAssistants(enabled bool)
	InvalidateAll(ctx context.Context)
}

// AppointmentSink invalidates cached appointment views.
type AppointmentSink interface {
	InvalidateAll(ctx context.Context)
}

// ScheduleSink invalidates the cached schedule document.
type ScheduleSink interface {
	Invalidate(ctx context.Context)
}

// Archiver persists pushed messages to durable history. Optional.
type Archiver interface {
	Append(ctx context.Context, conversationID string, msg chat.Message) error
}

// Synchronizer applies the server event stream to the local stores.
// Events are at-least-once and unordered across aggregates: message
// events patch by id, appointment and schedule events only invalidate,
// alert events never touch domain state. Handling never waits on the
// network.
type Synchronizer struct {
	source        EventSource
	conversations ConversationSink
	appointments  AppointmentSink
	schedules     ScheduleSink
	archive       Archiver
	alerts        *notify.Hub
	metrics       *metrics.SyncMetrics
	logger        *logging.Logger

	wasOpen bool
}

// NewSynchronizer wires the event stream to its sinks.
func NewSynchronizer(source EventSource, conversations ConversationSink, appointments AppointmentSink, schedules ScheduleSink, archive Archiver, alerts *notify.Hub, m *metrics.SyncMetrics, logger *logging.Logger) *Synchronizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Synchronizer{
		source:        source,
		conversations: conversations,
		appointments:  appointments,
		schedules:     schedules,
		archive:       archive,
		alerts:        alerts,
		metrics:       m,
		logger:        logger,
	}
}

// Run consumes events and state transitions until ctx is done. All store
// mutation from the realtime side funnels through this single loop.
func (s *Synchronizer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-s.source.States():
			if !ok {
				return
			}
			s.handleState(ctx, state)
		case env, ok := <-s.source.Events():
			if !ok {
				return
			}
			s.dispatch(ctx, env)
		}
	}
}

// handleState reacts to channel transitions. A drop after an open
// channel means an unknown number of events were missed, so every cached
// aggregate is stale, not just the ones that happened to be on screen.
func (s *Synchronizer) handleState(ctx context.Context, state State) {
	switch state {
	case StateOpen:
		s.wasOpen = true
		s.alerts.Publish(notify.Alert{Kind: notify.KindConnectionOpen})
	case StateClosed:
		if !s.wasOpen {
			return
		}
		s.wasOpen = false
		s.logger.Info("realtime gap detected, invalidating all aggregates")
		s.alerts.Publish(notify.Alert{Kind: notify.KindConnectionLost})
		s.invalidateEverything(ctx)
	}
}

func (s *Synchronizer) invalidateEverything(ctx context.Context) {
	s.conversations.InvalidateAll(ctx)
	s.metrics.ObserveRefetch("conversations")
	s.appointments.InvalidateAll(ctx)
	s.metrics.ObserveRefetch("appointments")
	s.schedules.Invalidate(ctx)
	s.metrics.ObserveRefetch("schedule")
}

func (s *Synchronizer) dispatch(ctx context.Context, env Envelope) {
	switch env.Event {
	case EventNewClientMessage:
		var p NewClientMessagePayload
		if err := decodePayload(env, &p); err != nil {
			s.drop(env, err)
			return
		}
		if p.ConversationID == "" || p.Message.ID == "" {
			s.drop(env, nil)
			return
		}
		inserted := s.conversations.ApplyMessage(p.ConversationID, p.Message)
		outcome := "duplicate"
		if inserted {
			outcome = "patched"
			s.archiveAsync(p.ConversationID, p.Message)
		}
		s.metrics.ObserveEvent(env.Event, outcome)

	case EventAssistantFailed:
		var p AssistantFailedPayload
		if err := decodePayload(env, &p); err != nil {
			s.drop(env, err)
			return
		}
		s.alerts.Publish(notify.Alert{
			Kind:           notify.KindAssistantFailed,
			ConversationID: p.ConversationID,
		})
		s.metrics.ObserveEvent(env.Event, "notified")

	case EventNewAppointmentCreated:
		// Content is unknown to the client; a forced refetch is the only
		// correct move.
		s.appointments.InvalidateAll(ctx)
		s.metrics.ObserveRefetch("appointments")
		s.metrics.ObserveEvent(env.Event, "invalidated")

	case EventQRStatus:
		var p QRStatusPayload
		if err := decodePayload(env, &p); err != nil {
			s.drop(env, err)
			return
		}
		s.alerts.Publish(notify.Alert{Kind: notify.KindBridgeQR, Detail: p.Payload})
		s.metrics.ObserveEvent(env.Event, "notified")

	case EventReady:
		s.alerts.Publish(notify.Alert{Kind: notify.KindBridgeReady})
		s.metrics.ObserveEvent(env.Event, "notified")

	case EventEnableAllAssistants:
		s.conversations.ConfirmAllAssistants(true)
		s.metrics.ObserveEvent(env.Event, "patched")

	case EventDisableAllAssistants:
		s.conversations.ConfirmAllAssistants(false)
		s.metrics.ObserveEvent(env.Event, "patched")

	default:
		s.logger.Debug("ignoring unknown event", "event", env.Event)
		s.metrics.ObserveEvent(env.Event, "unknown")
	}
}

// archiveAsync writes history off the event loop so archival latency
// never delays event handling.
func (s *Synchronizer) archiveAsync(conversationID string, msg chat.Message) {
	if s.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.archive.Append(ctx, conversationID, msg); err != nil {
			s.logger.Warn("archive append failed", "conversation_id", conversationID, "error", err)
		}
	}()
}

func (s *Synchronizer) drop(env Envelope, err error) {
	if err != nil {
		s.logger.Warn("dropping event", "event", env.Event, "error", err)
	} else {
		s.logger.Warn("dropping event with incomplete payload", "event", env.Event)
	}
	s.metrics.ObserveEvent(env.Event, "dropped")
}

func decodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, dst)
}
