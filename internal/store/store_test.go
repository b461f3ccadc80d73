package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestCacheLifecycle(t *testing.T) {
	c := NewCache[string, int]()

	if _, st := c.Get("a"); st != Miss {
		t.Fatalf("expected Miss, got %v", st)
	}
	c.Put("a", 1)
	if v, st := c.Get("a"); st != Hit || v != 1 {
		t.Fatalf("expected Hit 1, got %v %v", v, st)
	}
	c.Invalidate("a")
	if v, st := c.Get("a"); st != Stale || v != 1 {
		t.Fatalf("stale lookup must still return the value, got %v %v", v, st)
	}
	c.Put("a", 2)
	if _, st := c.Get("a"); st != Hit {
		t.Fatalf("Put must clear staleness, got %v", st)
	}
	c.Delete("a")
	if _, st := c.Get("a"); st != Miss {
		t.Fatalf("expected Miss after delete, got %v", st)
	}
}

func TestCacheInvalidateAll(t *testing.T) {
	c := NewCache[string, int]()
	c.Put("a", 1)
	c.Put("b", 2)
	c.InvalidateAll()
	for _, k := range c.Keys() {
		if _, st := c.Get(k); st != Stale {
			t.Fatalf("key %s not stale after InvalidateAll", k)
		}
	}
	// Invalidating an absent key must not create a phantom entry.
	c.Invalidate("ghost")
	if _, st := c.Get("ghost"); st != Miss {
		t.Fatalf("ghost entry created")
	}
}

func TestRefetcherRetriesThenSucceeds(t *testing.T) {
	c := NewCache[string, int]()
	var calls atomic.Int32
	fetch := func(ctx context.Context, key string) (int, error) {
		if calls.Add(1) < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}
	r := NewRefetcher(c, fetch, 5, time.Millisecond, nil)
	r.Trigger(context.Background(), "k")
	r.Wait()

	if v, st := c.Get("k"); st != Hit || v != 42 {
		t.Fatalf("expected Hit 42 after retries, got %v %v", v, st)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

type fatalErr struct{}

func (fatalErr) Error() string   { return "credential rejected" }
func (fatalErr) Retryable() bool { return false }

func TestRefetcherStopsOnNonRetryable(t *testing.T) {
	c := NewCache[string, int]()
	var calls atomic.Int32
	fetch := func(ctx context.Context, key string) (int, error) {
		calls.Add(1)
		return 0, fatalErr{}
	}
	r := NewRefetcher(c, fetch, 5, time.Millisecond, nil)
	var gaveUp atomic.Bool
	r.OnError(func(key string, err error) { gaveUp.Store(true) })
	r.Trigger(context.Background(), "k")
	r.Wait()

	if calls.Load() != 1 {
		t.Fatalf("non-retryable error must not be retried, got %d attempts", calls.Load())
	}
	if !gaveUp.Load() {
		t.Fatalf("OnError callback not invoked")
	}
	if _, st := c.Get("k"); st != Miss {
		t.Fatalf("failed fetch must not populate the cache")
	}
}

func TestRefetcherSingleFlight(t *testing.T) {
	c := NewCache[string, int]()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context, key string) (int, error) {
		calls.Add(1)
		close(started)
		<-release
		return 7, nil
	}
	r := NewRefetcher(c, fetch, 1, time.Millisecond, nil)
	r.Trigger(context.Background(), "k")
	<-started
	r.Trigger(context.Background(), "k") // coalesced
	close(release)
	r.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected single in-flight fetch, got %d", calls.Load())
	}
}
