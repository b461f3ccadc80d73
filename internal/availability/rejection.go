package availability

import (
	"fmt"
	"strings"

	"github.com/praxishq/dashboard-core/internal/timeslot"
)

// Reason classifies why a candidate slot was rejected. Rejections are
// expected, frequent outcomes, so they travel as values rather than panics
// or opaque errors.
type Reason string

const (
	// NonWorkingDay means a calendar exception covers the date.
	NonWorkingDay Reason = "non_working_day"
	// OutsideWeeklySchedule means the weekday has no work window at all.
	OutsideWeeklySchedule Reason = "outside_weekly_schedule"
	// OutsideWorkingHours means the candidate is not fully inside the window.
	OutsideWorkingHours Reason = "outside_working_hours"
	// Overlaps means one or more existing appointments collide.
	Overlaps Reason = "overlaps"
)

// Rejection is the typed outcome of a failed bookability check.
type Rejection struct {
	Reason Reason `json:"reason"`
	// Detail carries the exclusion reason for NonWorkingDay.
	Detail string `json:"detail,omitempty"`
	// Window is the day's work window for OutsideWorkingHours.
	Window *timeslot.Range `json:"window,omitempty"`
	// Conflicts lists the colliding ranges for Overlaps.
	Conflicts []timeslot.Range `json:"conflicts,omitempty"`
}

// Error lets a Rejection flow through error-shaped plumbing when a caller
// needs that; the engine itself returns it as a value.
func (r *Rejection) Error() string {
	switch r.Reason {
	case NonWorkingDay:
		if r.Detail != "" {
			return fmt.Sprintf("availability: non-working day (%s)", r.Detail)
		}
		return "availability: non-working day"
	case OutsideWeeklySchedule:
		return "availability: no work window configured for that weekday"
	case OutsideWorkingHours:
		if r.Window != nil {
			return fmt.Sprintf("availability: outside working hours %s", r.Window)
		}
		return "availability: outside working hours"
	case Overlaps:
		parts := make([]string, 0, len(r.Conflicts))
		for _, c := range r.Conflicts {
			parts = append(parts, c.String())
		}
		return "availability: overlaps " + strings.Join(parts, ", ")
	default:
		return "availability: rejected"
	}
}
