package chat

import (
	"context"
	"sync"
	"time"

	"github.com/praxishq/dashboard-core/internal/store"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

// Backend reads conversation state from the authoritative server.
type Backend interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
}

// Store owns the in-memory view of conversations. Pushed messages merge
// with fetched history, deduplicated by message id; only store methods
// touch the backing map.
type Store struct {
	cache   *store.Cache[string, Conversation]
	refetch *store.Refetcher[string, Conversation]
	backend Backend
	logger  *logging.Logger

	mu sync.Mutex
	// overrides holds local assistant toggles the server has not echoed
	// back yet, keyed by conversation id.
	overrides map[string]bool
}

// NewStore wires the conversation cache to its backend.
func NewStore(backend Backend, retryAttempts int, retryBaseDelay time.Duration, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		cache:     store.NewCache[string, Conversation](),
		backend:   backend,
		logger:    logger,
		overrides: make(map[string]bool),
	}
	s.refetch = store.NewRefetcher(s.cache, s.fetch, retryAttempts, retryBaseDelay, logger)
	return s
}

// fetch loads the authoritative copy and folds in any optimistic business
// messages the server does not know yet, so a refetch cannot erase a send
// that is still in flight. A pending message the server already owns is
// acknowledged: its copy carries the authoritative status. The server's
// assistant flag wins unless a local toggle is still unconfirmed.
func (s *Store) fetch(ctx context.Context, id string) (Conversation, error) {
	fetched, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	local, status := s.cache.Get(id)
	if status != store.Miss {
		have := make(map[string]struct{}, len(fetched.Messages))
		for _, m := range fetched.Messages {
			have[m.ID] = struct{}{}
		}
		for _, msg := range local.Messages {
			if msg.Status != StatusPending {
				continue
			}
			if _, ok := have[msg.ID]; ok {
				continue
			}
			fetched.Merge(msg)
		}
	}
	fetched.AssistantEnabled = s.resolveAssistant(id, fetched.AssistantEnabled)
	return fetched, nil
}

// resolveAssistant keeps an unconfirmed local toggle visible across
// refetches; the override is dropped once the server reports the same
// value.
func (s *Store) resolveAssistant(id string, fetched bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.overrides[id]
	if !ok {
		return fetched
	}
	if fetched == want {
		delete(s.overrides, id)
		return fetched
	}
	return want
}

// Get returns the cached conversation and its status; a miss or stale entry
// schedules a refetch and still returns synchronously for rendering.
func (s *Store) Get(ctx context.Context, id string) (Conversation, store.Status) {
	conv, status := s.cache.Get(id)
	if status != store.Hit {
		s.refetch.Trigger(ctx, id)
	}
	return conv.Clone(), status
}

// Prime seeds the cache from a conversation-list fetch.
func (s *Store) Prime(convs []Conversation) {
	for _, c := range convs {
		s.cache.Put(c.ID, c.Clone())
	}
}

// ApplyMessage merges a pushed message into its conversation, creating a
// skeleton entry when the conversation was never fetched. Client messages
// that are genuinely new bump the unread counter. Returns whether the
// message was new.
func (s *Store) ApplyMessage(conversationID string, msg Message) bool {
	inserted := false
	s.cache.Update(conversationID, func(conv Conversation) Conversation {
		if conv.ID == "" {
			conv.ID = conversationID
		}
		inserted = conv.Merge(msg)
		if inserted && msg.Role == RoleUser {
			conv.NewClientMessagesCount++
		}
		return conv
	})
	return inserted
}

// AppendLocal applies an optimistic business message before the server
// confirms it.
func (s *Store) AppendLocal(conversationID string, msg Message) {
	msg.Status = StatusPending
	s.cache.Update(conversationID, func(conv Conversation) Conversation {
		if conv.ID == "" {
			conv.ID = conversationID
		}
		conv.Merge(msg)
		return conv
	})
}

// Reconcile settles an optimistic message: delivered marks it sent, a
// failure marks it failed so the operator can re-issue.
func (s *Store) Reconcile(conversationID, messageID string, delivered bool) {
	status := StatusSent
	if !delivered {
		status = StatusFailed
	}
	s.cache.Update(conversationID, func(conv Conversation) Conversation {
		for i := range conv.Messages {
			if conv.Messages[i].ID == messageID {
				conv.Messages[i].Status = status
				break
			}
		}
		return conv
	})
}

// SettleTimeout marks a message failed if it is still pending once the
// command ack window has passed. Returns whether it transitioned; a
// message the server acknowledged in the meantime is left alone.
func (s *Store) SettleTimeout(conversationID, messageID string) bool {
	settled := false
	s.cache.Update(conversationID, func(conv Conversation) Conversation {
		for i := range conv.Messages {
			if conv.Messages[i].ID == messageID && conv.Messages[i].Status == StatusPending {
				conv.Messages[i].Status = StatusFailed
				settled = true
			}
		}
		return conv
	})
	return settled
}

// ResetUnread clears the new-client-message counter when the thread is
// opened.
func (s *Store) ResetUnread(conversationID string) {
	s.cache.Update(conversationID, func(conv Conversation) Conversation {
		conv.NewClientMessagesCount = 0
		return conv
	})
}

// SetAssistant applies a local assistant toggle. The value is held as an
// override across refetches until the server echoes it back.
func (s *Store) SetAssistant(conversationID string, enabled bool) {
	s.mu.Lock()
	s.overrides[conversationID] = enabled
	s.mu.Unlock()
	s.cache.Update(conversationID, func(conv Conversation) Conversation {
		conv.AssistantEnabled = enabled
		return conv
	})
}

// SetAllAssistants applies a local bulk toggle to every cached
// conversation, pending server confirmation.
func (s *Store) SetAllAssistants(enabled bool) {
	for _, id := range s.cache.Keys() {
		s.SetAssistant(id, enabled)
	}
}

// ConfirmAllAssistants applies a server-confirmed bulk toggle and clears
// outstanding local overrides, so the next refetch adopts server values
// again.
func (s *Store) ConfirmAllAssistants(enabled bool) {
	s.mu.Lock()
	s.overrides = make(map[string]bool)
	s.mu.Unlock()
	for _, id := range s.cache.Keys() {
		s.cache.Update(id, func(conv Conversation) Conversation {
			conv.AssistantEnabled = enabled
			return conv
		})
	}
}

// Invalidate marks one conversation stale and schedules its refetch.
func (s *Store) Invalidate(ctx context.Context, id string) {
	s.cache.Invalidate(id)
	s.refetch.Trigger(ctx, id)
}

// InvalidateAll marks every cached conversation stale and schedules
// refetches. Called after a realtime gap.
func (s *Store) InvalidateAll(ctx context.Context) {
	for _, id := range s.cache.Keys() {
		s.Invalidate(ctx, id)
	}
}

// List snapshots the cached conversations.
func (s *Store) List() []Conversation {
	keys := s.cache.Keys()
	out := make([]Conversation, 0, len(keys))
	for _, id := range keys {
		if conv, status := s.cache.Get(id); status != store.Miss {
			out = append(out, conv.Clone())
		}
	}
	return out
}

// WaitForFetches blocks until scheduled refetches settle. Test helper.
func (s *Store) WaitForFetches() { s.refetch.Wait() }
