package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/praxishq/dashboard-core/internal/availability"
	"github.com/praxishq/dashboard-core/internal/schedule"
	"github.com/praxishq/dashboard-core/internal/store"
	"github.com/praxishq/dashboard-core/internal/timeslot"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

// Backend is the slice of the authoritative API this store drives.
type Backend interface {
	ListAppointments(ctx context.Context, start, end time.Time) ([]Appointment, error)
	CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error)
	UpdateAppointment(ctx context.Context, appt Appointment) (Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
}

// ConflictChecker recognizes the server rejecting a write that passed local
// validation (a race with a concurrent booking).
type ConflictChecker interface {
	error
	Conflict() bool
}

// ScheduleSource supplies the current schedule definition for local
// validation. ok=false means the schedule is not cached yet; the server
// then remains the only validator.
type ScheduleSource interface {
	Current() (schedule.Definition, bool)
}

var errNotFound = errors.New("appointment: not found")

// Store keeps appointments per calendar date. Optimistic mutations validate
// against the availability engine synchronously, apply locally, then settle
// against the backend: confirmed on success, rolled back on failure, rolled
// back plus a forced refetch on a server-side conflict.
type Store struct {
	cache     *store.Cache[string, []Appointment]
	refetch   *store.Refetcher[string, []Appointment]
	backend   Backend
	schedules ScheduleSource
	timeout   time.Duration
	logger    *logging.Logger
}

func NewStore(backend Backend, schedules ScheduleSource, commandTimeout time.Duration, retryAttempts int, retryBaseDelay time.Duration, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	if commandTimeout <= 0 {
		commandTimeout = 10 * time.Second
	}
	s := &Store{
		cache:     store.NewCache[string, []Appointment](),
		backend:   backend,
		schedules: schedules,
		timeout:   commandTimeout,
		logger:    logger,
	}
	s.refetch = store.NewRefetcher(s.cache, s.fetch, retryAttempts, retryBaseDelay, logger)
	return s
}

// fetch reloads one date from the backend, keeping optimistic entries the
// server does not know yet.
func (s *Store) fetch(ctx context.Context, dateKey string) ([]Appointment, error) {
	date, err := ParseDateKey(dateKey)
	if err != nil {
		return nil, fmt.Errorf("appointment: bad date key %q: %w", dateKey, err)
	}
	fetched, err := s.backend.ListAppointments(ctx, date, date)
	if err != nil {
		return nil, err
	}
	local, status := s.cache.Get(dateKey)
	if status == store.Miss {
		return fetched, nil
	}
	for _, a := range local {
		if a.Pending && !containsID(fetched, a.ID) {
			fetched = append(fetched, a)
		}
	}
	return fetched, nil
}

// On returns the date's appointments and the cache status; miss and stale
// schedule a refetch while still returning synchronously.
func (s *Store) On(ctx context.Context, date time.Time) ([]Appointment, store.Status) {
	key := DateKey(date)
	appts, status := s.cache.Get(key)
	if status != store.Hit {
		s.refetch.Trigger(ctx, key)
	}
	return append([]Appointment(nil), appts...), status
}

// PrimeWindow loads a date window in one backend call and seeds every date
// in it, including empty ones, so subsequent lookups are hits.
func (s *Store) PrimeWindow(ctx context.Context, start, end time.Time) error {
	fetched, err := s.backend.ListAppointments(ctx, start, end)
	if err != nil {
		return err
	}
	byDate := make(map[string][]Appointment)
	for d := timeslot.DateOf(start); !d.After(timeslot.DateOf(end)); d = d.AddDate(0, 0, 1) {
		byDate[DateKey(d)] = nil
	}
	for _, a := range fetched {
		key := DateKey(a.Date)
		byDate[key] = append(byDate[key], a)
	}
	for key, appts := range byDate {
		s.cache.Put(key, appts)
	}
	return nil
}

// Validate runs the availability engine over the candidate without
// mutating anything. A nil return means bookable. excludeID skips the
// appointment being rescheduled.
func (s *Store) Validate(candidate Appointment, excludeID string) *availability.Rejection {
	def, ok := s.schedules.Current()
	if !ok {
		// Schedule not cached yet: nothing to validate against locally,
		// the server remains the final arbiter.
		return nil
	}
	booked, _ := s.cache.Get(DateKey(candidate.Date))
	return availability.Check(def, Slots(booked, excludeID), candidate.Slot, candidate.Date)
}

// Create applies an optimistic create after synchronous local validation,
// then settles it against the backend.
func (s *Store) Create(ctx context.Context, appt Appointment) (Appointment, error) {
	if err := appt.Slot.Validate(); err != nil {
		return Appointment{}, err
	}
	if appt.Slot.Duration() < timeslot.MinDuration {
		return Appointment{}, fmt.Errorf("%w: appointment shorter than %d minutes", timeslot.ErrInvalidFormat, timeslot.MinDuration)
	}
	if rej := s.Validate(appt, ""); rej != nil {
		return Appointment{}, rej
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.Date = timeslot.DateOf(appt.Date)
	appt.Pending = true

	key := DateKey(appt.Date)
	s.cache.Update(key, func(list []Appointment) []Appointment {
		return append(append([]Appointment(nil), list...), appt)
	})

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	confirmed, err := s.backend.CreateAppointment(cctx, appt)
	if err != nil {
		s.removeLocal(key, appt.ID)
		return Appointment{}, s.settleFailure(ctx, key, "create", err)
	}
	if ctx.Err() != nil {
		// The owning view went away mid-flight. The server-side create may
		// still have happened; drop the optimistic entry and force a
		// refetch instead of reconciling into a view nobody watches.
		s.removeLocal(key, appt.ID)
		s.Invalidate(context.Background(), appt.Date)
		return Appointment{}, ctx.Err()
	}
	confirmed.Pending = false
	s.replaceLocal(key, appt.ID, confirmed)
	return confirmed, nil
}

// Update re-validates the new slot against the date's other appointments,
// applies optimistically, and settles. Moving between dates is supported.
func (s *Store) Update(ctx context.Context, appt Appointment) (Appointment, error) {
	if err := appt.Slot.Validate(); err != nil {
		return Appointment{}, err
	}
	prev, ok := s.findByID(appt.ID)
	if !ok {
		return Appointment{}, errNotFound
	}
	if rej := s.Validate(appt, appt.ID); rej != nil {
		return Appointment{}, rej
	}
	appt.Date = timeslot.DateOf(appt.Date)
	appt.Pending = true

	oldKey := DateKey(prev.Date)
	newKey := DateKey(appt.Date)
	s.removeLocal(oldKey, appt.ID)
	s.cache.Update(newKey, func(list []Appointment) []Appointment {
		return append(append([]Appointment(nil), list...), appt)
	})

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	confirmed, err := s.backend.UpdateAppointment(cctx, appt)
	if err != nil {
		s.removeLocal(newKey, appt.ID)
		s.cache.Update(oldKey, func(list []Appointment) []Appointment {
			return append(append([]Appointment(nil), list...), prev)
		})
		return Appointment{}, s.settleFailure(ctx, newKey, "update", err)
	}
	if ctx.Err() != nil {
		s.removeLocal(newKey, appt.ID)
		s.Invalidate(context.Background(), prev.Date)
		s.Invalidate(context.Background(), appt.Date)
		return Appointment{}, ctx.Err()
	}
	confirmed.Pending = false
	s.replaceLocal(newKey, appt.ID, confirmed)
	return confirmed, nil
}

// Delete removes optimistically and restores the entry if the server
// refuses.
func (s *Store) Delete(ctx context.Context, id string) error {
	prev, ok := s.findByID(id)
	if !ok {
		return errNotFound
	}
	key := DateKey(prev.Date)
	s.removeLocal(key, id)

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.backend.DeleteAppointment(cctx, id); err != nil {
		s.cache.Update(key, func(list []Appointment) []Appointment {
			return append(append([]Appointment(nil), list...), prev)
		})
		return s.settleFailure(ctx, key, "delete", err)
	}
	return nil
}

// Invalidate marks a date stale and schedules its refetch.
func (s *Store) Invalidate(ctx context.Context, date time.Time) {
	key := DateKey(date)
	s.cache.Invalidate(key)
	s.refetch.Trigger(ctx, key)
}

// InvalidateAll marks every cached date stale and schedules refetches.
// Invalidating-only events (an appointment created by another actor) and
// realtime gaps land here: the event name alone never guesses contents.
func (s *Store) InvalidateAll(ctx context.Context) {
	for _, key := range s.cache.Keys() {
		s.cache.Invalidate(key)
		s.refetch.Trigger(ctx, key)
	}
}

// WaitForFetches blocks until scheduled refetches settle. Test helper.
func (s *Store) WaitForFetches() { s.refetch.Wait() }

func (s *Store) settleFailure(ctx context.Context, key, op string, err error) error {
	var conflict ConflictChecker
	if errors.As(err, &conflict) && conflict.Conflict() {
		// Local validation passed but the server knew better; refetch the
		// affected window so the next attempt sees the racing booking.
		s.cache.Invalidate(key)
		s.refetch.Trigger(context.WithoutCancel(ctx), key)
		return fmt.Errorf("appointment: %s rejected by server: %w", op, err)
	}
	return fmt.Errorf("appointment: %s failed: %w", op, err)
}

func (s *Store) findByID(id string) (Appointment, bool) {
	for _, key := range s.cache.Keys() {
		list, _ := s.cache.Get(key)
		for _, a := range list {
			if a.ID == id {
				return a, true
			}
		}
	}
	return Appointment{}, false
}

func (s *Store) removeLocal(key, id string) {
	s.cache.Update(key, func(list []Appointment) []Appointment {
		out := make([]Appointment, 0, len(list))
		for _, a := range list {
			if a.ID != id {
				out = append(out, a)
			}
		}
		return out
	})
}

func (s *Store) replaceLocal(key, id string, replacement Appointment) {
	s.cache.Update(key, func(list []Appointment) []Appointment {
		out := make([]Appointment, 0, len(list))
		replaced := false
		for _, a := range list {
			if a.ID == id {
				out = append(out, replacement)
				replaced = true
				continue
			}
			out = append(out, a)
		}
		if !replaced {
			out = append(out, replacement)
		}
		return out
	})
}

func containsID(list []Appointment, id string) bool {
	for _, a := range list {
		if a.ID == id {
			return true
		}
	}
	return false
}
