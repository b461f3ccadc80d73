// Package availability answers whether a time range is bookable on a date
// and what the open windows of a date are, given the weekly schedule,
// calendar exceptions, and the appointments already on that date. Pure
// queries; nothing here mutates its inputs.
package availability

import (
	"time"

	"github.com/praxishq/dashboard-core/internal/schedule"
	"github.com/praxishq/dashboard-core/internal/timeslot"
)

// WorkingWindow looks up the date's weekday in the weekly schedule.
func WorkingWindow(weekly schedule.Weekly, date time.Time) (timeslot.Range, bool) {
	return weekly.WindowFor(date)
}

// Exclusion returns the first calendar exception covering the date. An
// exclusion always wins over a configured work window.
func Exclusion(nonWorkDates []schedule.NonWorkDate, date time.Time) (schedule.NonWorkDate, bool) {
	return schedule.FirstExclusion(nonWorkDates, date)
}

// Check validates a candidate range against the date's schedule and the
// appointments already booked on it. A nil return means the slot is
// bookable. Rejections are ordered: exclusions are reported before weekly
// gaps, weekly gaps before out-of-hours, out-of-hours before overlaps.
func Check(def schedule.Definition, booked []timeslot.Range, candidate timeslot.Range, date time.Time) *Rejection {
	if excl, ok := Exclusion(def.NonWorkDates, date); ok {
		return &Rejection{Reason: NonWorkingDay, Detail: excl.Reason}
	}
	window, ok := WorkingWindow(def.Weekly, date)
	if !ok {
		return &Rejection{Reason: OutsideWeeklySchedule}
	}
	if !window.Contains(candidate) {
		return &Rejection{Reason: OutsideWorkingHours, Window: &window}
	}
	if conflicts := timeslot.FindConflicts(candidate, booked); len(conflicts) > 0 {
		return &Rejection{Reason: Overlaps, Conflicts: conflicts}
	}
	return nil
}

// OpenWindows computes the free gaps of a date: the complement of the
// merged booked intervals within the day's work window. Non-working and
// excluded dates have no open windows. An empty booked list yields the
// whole work window; a fully booked window yields nothing.
func OpenWindows(def schedule.Definition, booked []timeslot.Range, date time.Time) []timeslot.Range {
	if _, excluded := Exclusion(def.NonWorkDates, date); excluded {
		return nil
	}
	window, ok := WorkingWindow(def.Weekly, date)
	if !ok {
		return nil
	}

	sorted := make([]timeslot.Range, 0, len(booked))
	for _, b := range booked {
		if b.Overlaps(window) {
			sorted = append(sorted, b)
		}
	}
	timeslot.SortByStart(sorted)

	var gaps []timeslot.Range
	cursor := window.Start
	for _, b := range sorted {
		if b.Start > cursor {
			end := b.Start
			if end > window.End {
				end = window.End
			}
			gaps = append(gaps, timeslot.Range{Start: cursor, End: end})
		}
		if b.End > cursor {
			cursor = b.End
		}
		if cursor >= window.End {
			return gaps
		}
	}
	if cursor < window.End {
		gaps = append(gaps, timeslot.Range{Start: cursor, End: window.End})
	}
	return gaps
}
