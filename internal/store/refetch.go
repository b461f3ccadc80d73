package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/praxishq/dashboard-core/pkg/logging"
)

// RetryableError marks transport-shaped failures worth retrying. Auth
// failures and the like stop the fetch immediately.
type RetryableError interface {
	error
	Retryable() bool
}

// FetchFunc loads the authoritative value for a key.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Refetcher runs fetches behind cache misses and invalidations without
// blocking the caller: Trigger returns immediately and the fetch happens on
// its own goroutine, retried a bounded number of times with exponential
// backoff. At most one fetch per key is in flight.
type Refetcher[K comparable, V any] struct {
	cache     *Cache[K, V]
	fetch     FetchFunc[K, V]
	attempts  int
	baseDelay time.Duration
	logger    *logging.Logger

	mu       sync.Mutex
	inflight map[K]struct{}
	onError  func(key K, err error)
	wg       sync.WaitGroup
}

func NewRefetcher[K comparable, V any](cache *Cache[K, V], fetch FetchFunc[K, V], attempts int, baseDelay time.Duration, logger *logging.Logger) *Refetcher[K, V] {
	if logger == nil {
		logger = logging.Default()
	}
	if attempts <= 0 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	return &Refetcher[K, V]{
		cache:     cache,
		fetch:     fetch,
		attempts:  attempts,
		baseDelay: baseDelay,
		logger:    logger,
		inflight:  make(map[K]struct{}),
	}
}

// OnError installs a callback invoked when a fetch gives up.
func (r *Refetcher[K, V]) OnError(fn func(key K, err error)) {
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
}

// Trigger schedules a fetch for the key unless one is already running.
func (r *Refetcher[K, V]) Trigger(ctx context.Context, key K) {
	r.mu.Lock()
	if _, busy := r.inflight[key]; busy {
		r.mu.Unlock()
		return
	}
	r.inflight[key] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.inflight, key)
			r.mu.Unlock()
		}()
		r.run(ctx, key)
	}()
}

// Wait blocks until all in-flight fetches finish. Test helper.
func (r *Refetcher[K, V]) Wait() { r.wg.Wait() }

func (r *Refetcher[K, V]) run(ctx context.Context, key K) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.backoff(attempt)):
			}
		}
		value, err := r.fetch(ctx, key)
		if err == nil {
			r.cache.Put(key, value)
			return
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			return
		}
		var retryable RetryableError
		if errors.As(err, &retryable) && !retryable.Retryable() {
			break
		}
		r.logger.Warn("refetch attempt failed", "attempt", attempt+1, "error", err)
	}
	r.logger.Error("refetch gave up", "error", lastErr)
	r.mu.Lock()
	onError := r.onError
	r.mu.Unlock()
	if onError != nil && lastErr != nil {
		onError(key, lastErr)
	}
}

func (r *Refetcher[K, V]) backoff(attempt int) time.Duration {
	delay := r.baseDelay * time.Duration(1<<(attempt-1))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
