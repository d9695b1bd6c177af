package engine

import (
	"fmt"
	"time"
)

// TimeSlot is the coarse time-of-day bucket of a shift opening.
type TimeSlot string

const (
	// SlotAM covers shift openings between 04:00 and 11:59 local time.
	SlotAM TimeSlot = "AM"
	// SlotPM covers shift openings between 16:00 and 23:59 local time.
	SlotPM TimeSlot = "PM"
)

// CohortKey buckets shifts into comparable day-of-week/time-of-day slots.
type CohortKey struct {
	Day  time.Weekday
	Slot TimeSlot
}

// String renders the slot label used in reports, e.g. "Mon-AM".
func (k CohortKey) String() string {
	return fmt.Sprintf("%s-%s", k.Day.String()[:3], k.Slot)
}

// Classify maps a shift opening time to its cohort in the store's local
// zone. ok is false for overnight/transition hours (0-3 and 12-15), which
// are excluded from cohort analysis entirely.
func (p Params) Classify(openedAt time.Time) (CohortKey, bool) {
	local := openedAt.In(p.location())
	hour := local.Hour()

	var slot TimeSlot
	switch {
	case hour >= 4 && hour <= 11:
		slot = SlotAM
	case hour >= 16 && hour <= 23:
		slot = SlotPM
	default:
		return CohortKey{}, false
	}

	return CohortKey{Day: local.Weekday(), Slot: slot}, true
}
