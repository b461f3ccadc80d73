// Package appointment owns the dashboard's view of booked appointments and
// the optimistic create/update/delete flow against the authoritative
// backend.
package appointment

import (
	"time"

	"github.com/praxishq/dashboard-core/internal/timeslot"
)

// Appointment is one booked slot. Pending marks an optimistic entry the
// server has not confirmed yet; confirmed appointments on the same business
// and date never overlap.
type Appointment struct {
	ID         string         `json:"id"`
	BusinessID string         `json:"businessId"`
	ClientID   string         `json:"clientId"`
	ClientName string         `json:"clientName,omitempty"`
	Date       time.Time      `json:"date"`
	Slot       timeslot.Range `json:"timeRange"`
	Notes      string         `json:"notes,omitempty"`
	Pending    bool           `json:"pending,omitempty"`
}

// DateKey is the cache key for a calendar date.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ParseDateKey inverts DateKey.
func ParseDateKey(key string) (time.Time, error) {
	return time.Parse("2006-01-02", key)
}

// Slots projects the time ranges of a day's appointments, optionally
// skipping one id (used when re-validating an update against its peers).
func Slots(appointments []Appointment, excludeID string) []timeslot.Range {
	out := make([]timeslot.Range, 0, len(appointments))
	for _, a := range appointments {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		out = append(out, a.Slot)
	}
	return out
}
