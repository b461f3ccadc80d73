// Package schedule holds the business working-hours model: one contiguous
// work window per weekday plus calendar exceptions, optionally recurring
// year over year.
package schedule

import (
	"time"

	"github.com/praxishq/dashboard-core/internal/timeslot"
)

// Weekly maps weekdays to their staffed window. A missing day means the
// business does not work that day.
type Weekly map[time.Weekday]timeslot.Range

// WindowFor returns the work window for the date's weekday, if any.
func (w Weekly) WindowFor(date time.Time) (timeslot.Range, bool) {
	win, ok := w[date.Weekday()]
	return win, ok
}

// Clone returns an independent copy so callers can hand snapshots out of a
// cache without aliasing its backing map.
func (w Weekly) Clone() Weekly {
	if w == nil {
		return nil
	}
	out := make(Weekly, len(w))
	for day, win := range w {
		out[day] = win
	}
	return out
}

// Validate checks every configured window.
func (w Weekly) Validate() error {
	for _, win := range w {
		if err := win.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NonWorkDate is a calendar exception: a holiday or closure. When Recurrent
// is set, the month/day pair applies every year regardless of the stored
// year component.
type NonWorkDate struct {
	Date      time.Time `json:"date"`
	Reason    string    `json:"reason"`
	Recurrent bool      `json:"recurrent"`
}

// Matches reports whether the exception applies to the candidate date:
// month/day equality for recurrent entries, full-date equality otherwise.
func (n NonWorkDate) Matches(date time.Time) bool {
	if n.Recurrent {
		return n.Date.Month() == date.Month() && n.Date.Day() == date.Day()
	}
	return timeslot.SameDay(n.Date, date)
}

// FirstExclusion returns the first entry in stored order that matches the
// date. Stored order is the tie-break when duplicate holiday definitions
// cover the same day.
func FirstExclusion(entries []NonWorkDate, date time.Time) (NonWorkDate, bool) {
	for _, e := range entries {
		if e.Matches(date) {
			return e, true
		}
	}
	return NonWorkDate{}, false
}

// Definition is the full schedule document owned by a business, as served
// and accepted by the backend.
type Definition struct {
	Weekly       Weekly        `json:"weekly"`
	NonWorkDates []NonWorkDate `json:"nonWorkDates"`
}

// Clone deep-copies the definition.
func (d Definition) Clone() Definition {
	out := Definition{Weekly: d.Weekly.Clone()}
	if d.NonWorkDates != nil {
		out.NonWorkDates = append([]NonWorkDate(nil), d.NonWorkDates...)
	}
	return out
}
