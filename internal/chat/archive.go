package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const archiveKeyPrefix = "chat_archive:"

// Archive keeps a capped, expiring copy of every merged message in Redis so
// a restarted core can backfill threads without a backend round trip. All
// methods are nil-safe; the archive is optional.
type Archive struct {
	redis       *redis.Client
	tracer      trace.Tracer
	ttl         time.Duration
	maxMessages int64
}

// NewArchive returns nil when no Redis client is configured.
func NewArchive(redisClient *redis.Client, ttl time.Duration, maxMessages int64) *Archive {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if maxMessages <= 0 {
		maxMessages = 250
	}
	return &Archive{
		redis:       redisClient,
		tracer:      otel.Tracer("dashboard.internal.chat.archive"),
		ttl:         ttl,
		maxMessages: maxMessages,
	}
}

// Append records a message at the tail of the conversation's list, trimming
// to the cap and refreshing the TTL.
func (a *Archive) Append(ctx context.Context, conversationID string, msg Message) error {
	if a == nil || a.redis == nil {
		return nil
	}
	if conversationID == "" {
		return errors.New("chat: archive conversationID required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chat: marshal archive message: %w", err)
	}

	ctx, span := a.tracer.Start(ctx, "chat.archive.append")
	defer span.End()

	key := archiveKey(conversationID)
	pipe := a.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, a.ttl)
	pipe.LTrim(ctx, key, -a.maxMessages, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: append archive message: %w", err)
	}
	return nil
}

// History returns the most recent messages for a conversation, oldest
// first. A zero limit returns everything retained.
func (a *Archive) History(ctx context.Context, conversationID string, limit int64) ([]Message, error) {
	if a == nil || a.redis == nil {
		return nil, nil
	}
	if conversationID == "" {
		return nil, errors.New("chat: archive conversationID required")
	}

	ctx, span := a.tracer.Start(ctx, "chat.archive.history")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := a.redis.LRange(ctx, archiveKey(conversationID), start, -1).Result()
	if err != nil {
		span.RecordError(err)
		if err == redis.Nil {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("chat: list archive: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func archiveKey(conversationID string) string {
	return archiveKeyPrefix + conversationID
}
