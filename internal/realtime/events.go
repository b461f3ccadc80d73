// Package realtime owns the bidirectional event channel to the backend:
// one connection manager holding the socket, one synchronizer applying
// server-pushed events to the local stores. Nothing else reads the socket.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/praxishq/dashboard-core/internal/chat"
)

// Server-pushed event names. The name is the tag of a sum type; the
// payload shape per name is the contract.
const (
	EventNewClientMessage      = "newClientMessage"
	EventAssistantFailed       = "assistantFailed"
	EventNewAppointmentCreated = "newAppointmentCreated"
	EventQRStatus              = "qrStatus"
	EventReady                 = "ready"
	EventEnableAllAssistants   = "enableAllAssistants"
	EventDisableAllAssistants  = "disableAllAssistants"
)

// Client-issued intent names.
const (
	IntentNewBusinessMessage   = "newBusinessMessage"
	IntentJoinBusinessRoom     = "joinBusinessRoom"
	IntentEnableAllAssistants  = "enableAllAssistants"
	IntentDisableAllAssistants = "disableAllAssistants"
)

// Envelope frames every event on the wire.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses one raw frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("realtime: malformed frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("realtime: frame missing event name")
	}
	return env, nil
}

// NewClientMessagePayload carries a message created on the client or
// assistant side of a conversation.
type NewClientMessagePayload struct {
	ConversationID string       `json:"conversationId"`
	Message        chat.Message `json:"message"`
}

// AssistantFailedPayload names the conversation whose assistant action
// failed.
type AssistantFailedPayload struct {
	ConversationID string `json:"conversationId"`
}

// QRStatusPayload carries the WhatsApp-bridge pairing blob as-is.
type QRStatusPayload struct {
	Payload string `json:"payload"`
}

// AssistantTogglePayload confirms a bulk assistant toggle.
type AssistantTogglePayload struct {
	UserID string `json:"userId"`
}

// Intent is an outbound frame. Intents queue while the channel is not
// open and flush once the server acknowledges it.
type Intent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// NewBusinessMessageIntent sends an operator-authored message.
func NewBusinessMessageIntent(conversationID string, msg chat.Message) Intent {
	return Intent{
		Event: IntentNewBusinessMessage,
		Payload: map[string]any{
			"conversationId": conversationID,
			"message":        msg,
		},
	}
}

// JoinBusinessRoomIntent subscribes the session to its business feed.
func JoinBusinessRoomIntent(businessID string) Intent {
	return Intent{
		Event:   IntentJoinBusinessRoom,
		Payload: map[string]any{"businessId": businessID},
	}
}

// AssistantsIntent toggles every assistant for the user at once.
func AssistantsIntent(userID string, enabled bool) Intent {
	event := IntentEnableAllAssistants
	if !enabled {
		event = IntentDisableAllAssistants
	}
	return Intent{
		Event:   event,
		Payload: map[string]any{"userId": userID},
	}
}
