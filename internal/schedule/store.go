package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/praxishq/dashboard-core/internal/store"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

// Backend reads and replaces the schedule document on the authoritative
// server.
type Backend interface {
	GetSchedule(ctx context.Context) (Definition, error)
	PutSchedule(ctx context.Context, def Definition) error
}

// ConflictChecker recognizes a server-side rejection of an optimistic
// replace.
type ConflictChecker interface {
	error
	Conflict() bool
}

// The schedule is one document per business session, so the cache holds a
// single key.
const cacheKey = "schedule"

// Store owns the cached schedule definition. Replacement is optimistic:
// applied locally, rolled back if the server refuses.
type Store struct {
	cache   *store.Cache[string, Definition]
	refetch *store.Refetcher[string, Definition]
	backend Backend
	timeout time.Duration
	logger  *logging.Logger
}

func NewStore(backend Backend, commandTimeout time.Duration, retryAttempts int, retryBaseDelay time.Duration, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	if commandTimeout <= 0 {
		commandTimeout = 10 * time.Second
	}
	s := &Store{
		cache:   store.NewCache[string, Definition](),
		backend: backend,
		timeout: commandTimeout,
		logger:  logger,
	}
	s.refetch = store.NewRefetcher(s.cache, func(ctx context.Context, _ string) (Definition, error) {
		return backend.GetSchedule(ctx)
	}, retryAttempts, retryBaseDelay, logger)
	return s
}

// Get returns the cached definition and its status; miss and stale
// schedule a refetch.
func (s *Store) Get(ctx context.Context) (Definition, store.Status) {
	def, status := s.cache.Get(cacheKey)
	if status != store.Hit {
		s.refetch.Trigger(ctx, cacheKey)
	}
	return def.Clone(), status
}

// Current returns the latest known definition for validation purposes.
// Stale values are still usable: the server arbitrates anyway.
func (s *Store) Current() (Definition, bool) {
	def, status := s.cache.Get(cacheKey)
	if status == store.Miss {
		return Definition{}, false
	}
	return def.Clone(), true
}

// Update optimistically replaces the schedule and settles against the
// backend, rolling back on failure.
func (s *Store) Update(ctx context.Context, def Definition) error {
	if err := def.Weekly.Validate(); err != nil {
		return err
	}
	prev, hadPrev := s.Current()
	s.cache.Put(cacheKey, def.Clone())

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.backend.PutSchedule(cctx, def); err != nil {
		if hadPrev {
			s.cache.Put(cacheKey, prev)
		} else {
			s.cache.Delete(cacheKey)
		}
		var conflict ConflictChecker
		if errors.As(err, &conflict) && conflict.Conflict() {
			s.Invalidate(context.WithoutCancel(ctx))
		}
		return fmt.Errorf("schedule: update failed: %w", err)
	}
	if ctx.Err() != nil {
		s.Invalidate(context.Background())
		return ctx.Err()
	}
	return nil
}

// Invalidate marks the document stale and schedules a refetch.
func (s *Store) Invalidate(ctx context.Context) {
	s.cache.Invalidate(cacheKey)
	s.refetch.Trigger(ctx, cacheKey)
}

// WaitForFetches blocks until scheduled refetches settle. Test helper.
func (s *Store) WaitForFetches() { s.refetch.Wait() }
