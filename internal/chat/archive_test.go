package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T, maxMessages int64) *Archive {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewArchive(client, time.Hour, maxMessages)
}

func TestArchiveAppendAndHistory(t *testing.T) {
	a := newTestArchive(t, 10)
	ctx := context.Background()

	require.NoError(t, a.Append(ctx, "c1", msgAt("m1", "hello", RoleUser, "2024-07-01T10:00:00Z")))
	require.NoError(t, a.Append(ctx, "c1", msgAt("m2", "hi there", RoleBusiness, "2024-07-01T10:01:00Z")))

	msgs, err := a.History(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, RoleBusiness, msgs[1].Role)
}

func TestArchiveTrimsToCap(t *testing.T) {
	a := newTestArchive(t, 3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		msg := msgAt(fmt.Sprintf("m%d", i), "x", RoleUser, "2024-07-01T10:00:00Z")
		require.NoError(t, a.Append(ctx, "c1", msg))
	}
	msgs, err := a.History(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "m2", msgs[0].ID, "oldest entries are trimmed first")
}

func TestArchiveHistoryLimit(t *testing.T) {
	a := newTestArchive(t, 10)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, a.Append(ctx, "c1", msgAt(fmt.Sprintf("m%d", i), "x", RoleUser, "2024-07-01T10:00:00Z")))
	}
	msgs, err := a.History(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m2", msgs[0].ID)
}

func TestArchiveNilSafety(t *testing.T) {
	var a *Archive
	require.NoError(t, a.Append(context.Background(), "c1", Message{}))
	msgs, err := a.History(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Nil(t, msgs)
}

func TestArchiveRequiresConversationID(t *testing.T) {
	a := newTestArchive(t, 10)
	require.Error(t, a.Append(context.Background(), "", Message{}))
	_, err := a.History(context.Background(), "", 0)
	require.Error(t, err)
}

func TestArchiveAssignsIDAndTimestamp(t *testing.T) {
	a := newTestArchive(t, 10)
	require.NoError(t, a.Append(context.Background(), "c1", Message{Content: "bare", Role: RoleUser}))
	msgs, err := a.History(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotEmpty(t, msgs[0].ID)
	require.False(t, msgs[0].Timestamp.IsZero())
}
