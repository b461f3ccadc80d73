// Package timeslot provides minute-of-day time ranges and the overlap
// arithmetic the availability engine and the appointment flow share.
package timeslot

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// MinutesPerDay bounds every range endpoint.
	MinutesPerDay = 24 * 60
	// MinDuration is the shortest range the appointment-creation flow accepts.
	MinDuration = 15
)

// ErrInvalidFormat is returned when a clock string or range cannot be parsed.
var ErrInvalidFormat = errors.New("timeslot: invalid format")

// Range is a half-open interval of minutes since midnight: [Start, End).
// Touching endpoints do not overlap, so 9:00-10:00 and 10:00-11:00 are
// compatible.
type Range struct {
	Start int `json:"startMinute"`
	End   int `json:"endMinute"`
}

// New validates the endpoints and returns the range.
func New(start, end int) (Range, error) {
	r := Range{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Validate checks the range invariants: 0 <= Start < End <= 1440.
func (r Range) Validate() error {
	if r.Start < 0 || r.Start >= MinutesPerDay {
		return fmt.Errorf("%w: start minute %d out of [0,%d)", ErrInvalidFormat, r.Start, MinutesPerDay)
	}
	if r.End <= 0 || r.End > MinutesPerDay {
		return fmt.Errorf("%w: end minute %d out of (0,%d]", ErrInvalidFormat, r.End, MinutesPerDay)
	}
	if r.Start >= r.End {
		return fmt.Errorf("%w: start %d not before end %d", ErrInvalidFormat, r.Start, r.End)
	}
	return nil
}

// Duration returns the length of the range in minutes.
func (r Range) Duration() int { return r.End - r.Start }

// Overlaps reports whether the two half-open intervals intersect.
func (r Range) Overlaps(other Range) bool {
	return r.Start < other.End && other.Start < r.End
}

// Contains reports whether other fits fully inside r.
func (r Range) Contains(other Range) bool {
	return other.Start >= r.Start && other.End <= r.End
}

func (r Range) String() string {
	return FormatMinutes(r.Start) + "-" + FormatMinutes(r.End)
}

// FindConflicts returns every existing range that overlaps the candidate.
// The scan sorts a copy by start time so it can stop as soon as an existing
// range begins at or after the candidate's end; the same date's list is
// queried repeatedly during interactive editing.
func FindConflicts(candidate Range, existing []Range) []Range {
	if len(existing) == 0 {
		return nil
	}
	sorted := make([]Range, len(existing))
	copy(sorted, existing)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var conflicts []Range
	for _, e := range sorted {
		if e.Start >= candidate.End {
			break
		}
		if candidate.Overlaps(e) {
			conflicts = append(conflicts, e)
		}
	}
	return conflicts
}

// SortByStart orders ranges by start minute, in place. Ties keep the shorter
// range first so downstream sweeps are deterministic.
func SortByStart(ranges []Range) {
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Start == ranges[j].Start {
			return ranges[i].End < ranges[j].End
		}
		return ranges[i].Start < ranges[j].Start
	})
}

// ParseClock converts "HH:MM" (24-hour) to minutes since midnight.
func ParseClock(text string) (int, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidFormat, text)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: hour in %q", ErrInvalidFormat, text)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: minute in %q", ErrInvalidFormat, text)
	}
	return hour*60 + minute, nil
}

// ParseRange converts a "HH:MM-HH:MM" pair into a validated Range.
func ParseRange(text string) (Range, error) {
	parts := strings.SplitN(strings.TrimSpace(text), "-", 2)
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("%w: range %q", ErrInvalidFormat, text)
	}
	start, err := ParseClock(parts[0])
	if err != nil {
		return Range{}, err
	}
	end, err := ParseClock(parts[1])
	if err != nil {
		return Range{}, err
	}
	return New(start, end)
}

// FormatMinutes renders minutes since midnight as "HH:MM".
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// DateOf truncates a timestamp to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
