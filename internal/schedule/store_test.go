package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/praxishq/dashboard-core/internal/store"
	"github.com/praxishq/dashboard-core/internal/timeslot"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu     sync.Mutex
	def    Definition
	putErr error
	gets   int
}

func (f *fakeBackend) GetSchedule(ctx context.Context) (Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.def.Clone(), nil
}

func (f *fakeBackend) PutSchedule(ctx context.Context, def Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.def = def.Clone()
	return nil
}

func weeklyMonday() Definition {
	return Definition{Weekly: Weekly{time.Monday: timeslot.Range{Start: 540, End: 1080}}}
}

func TestGetMissSchedulesFetch(t *testing.T) {
	backend := &fakeBackend{def: weeklyMonday()}
	s := NewStore(backend, time.Second, 1, time.Millisecond, nil)

	_, status := s.Get(context.Background())
	require.Equal(t, store.Miss, status, "first lookup renders empty synchronously")

	s.WaitForFetches()
	def, status := s.Get(context.Background())
	require.Equal(t, store.Hit, status)
	require.Contains(t, def.Weekly, time.Monday)
}

func TestUpdateAppliesOptimistically(t *testing.T) {
	backend := &fakeBackend{}
	s := NewStore(backend, time.Second, 1, time.Millisecond, nil)

	require.NoError(t, s.Update(context.Background(), weeklyMonday()))
	def, ok := s.Current()
	require.True(t, ok)
	require.Contains(t, def.Weekly, time.Monday)
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	backend := &fakeBackend{def: weeklyMonday()}
	s := NewStore(backend, time.Second, 1, time.Millisecond, nil)
	s.Get(context.Background())
	s.WaitForFetches()

	backend.mu.Lock()
	backend.putErr = errors.New("boom")
	backend.mu.Unlock()

	next := Definition{Weekly: Weekly{time.Friday: timeslot.Range{Start: 480, End: 720}}}
	require.Error(t, s.Update(context.Background(), next))

	def, ok := s.Current()
	require.True(t, ok)
	require.Contains(t, def.Weekly, time.Monday, "previous schedule restored")
	require.NotContains(t, def.Weekly, time.Friday)
}

func TestUpdateRejectsInvalidWindow(t *testing.T) {
	s := NewStore(&fakeBackend{}, time.Second, 1, time.Millisecond, nil)
	bad := Definition{Weekly: Weekly{time.Monday: timeslot.Range{Start: 600, End: 540}}}
	require.ErrorIs(t, s.Update(context.Background(), bad), timeslot.ErrInvalidFormat)
}

func TestCurrentUsableWhileStale(t *testing.T) {
	backend := &fakeBackend{def: weeklyMonday()}
	s := NewStore(backend, time.Second, 1, time.Millisecond, nil)
	s.Get(context.Background())
	s.WaitForFetches()

	s.Invalidate(context.Background())
	_, ok := s.Current()
	require.True(t, ok, "stale schedule still validates locally")
	s.WaitForFetches()
}
