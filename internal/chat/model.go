// Package chat holds the conversation model shared by the dashboard: one
// thread per client, fed simultaneously by the client (via the WhatsApp
// bridge), the AI assistant, and the business operator.
package chat

import (
	"sort"
	"time"
)

// Role identifies which of the three writers produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleBusiness  Role = "business"
)

// Delivery status values for business-sent messages.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Media is an optional attachment reference.
type Media struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Message identity is the ID field; Timestamp orders messages for display
// but delivery order is not assumed.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Media     *Media    `json:"media,omitempty"`
	Status    string    `json:"status,omitempty"`
	Reactions []string  `json:"reactions,omitempty"`
}

// Conversation is one client thread with its display counters.
type Conversation struct {
	ID                     string    `json:"id"`
	ClientID               string    `json:"clientId"`
	BusinessID             string    `json:"businessId"`
	ClientName             string    `json:"clientName,omitempty"`
	Messages               []Message `json:"messages"`
	NewClientMessagesCount int       `json:"newClientMessagesCount"`
	AssistantEnabled       bool      `json:"assistantEnabled"`
}

// Merge upserts a message by id. A new id is inserted in timestamp order
// (ties broken by id so rendering stays deterministic) and true is
// returned. Re-delivery of a known id is a no-op for Content and Timestamp;
// Status and Reactions are last-write-wins when the incoming copy sets them.
func (c *Conversation) Merge(msg Message) bool {
	for i := range c.Messages {
		if c.Messages[i].ID != msg.ID {
			continue
		}
		if msg.Status != "" {
			c.Messages[i].Status = msg.Status
		}
		if msg.Reactions != nil {
			c.Messages[i].Reactions = msg.Reactions
		}
		return false
	}
	c.Messages = append(c.Messages, msg)
	sortMessages(c.Messages)
	return true
}

// Clone deep-copies the conversation so cached values can be handed out
// without aliasing the store's slices.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = append([]Message(nil), c.Messages...)
	}
	return out
}

func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
