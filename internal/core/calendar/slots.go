package calendar

import (
	"fmt"
	"sort"
	"time"
)

// Slot is one proposable meeting interval [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotOptions controls slot derivation. Zero values fall back to the
// defaults: 09:00–18:00 working window, 48 h minimum lead, weekdays only.
type SlotOptions struct {
	Location     *time.Location
	WorkdayStart string // "HH:MM"
	WorkdayEnd   string // "HH:MM"
	MinLead      time.Duration
	Now          time.Time // injectable for tests
}

// AvailableSlots derives the maximal ordered list of free [t, t+d) slots on
// the given date: candidate starts aligned to 30-minute boundaries inside
// the working window, strictly disjoint from every busy interval. Weekends
// and slots starting inside the minimum lead window are excluded.
func AvailableSlots(date time.Time, d time.Duration, busy []BusyInterval, opts SlotOptions) ([]Slot, error) {
	if d <= 0 {
		return nil, fmt.Errorf("slot duration must be positive")
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	if opts.WorkdayStart == "" {
		opts.WorkdayStart = "09:00"
	}
	if opts.WorkdayEnd == "" {
		opts.WorkdayEnd = "18:00"
	}
	if opts.MinLead == 0 {
		opts.MinLead = 48 * time.Hour
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	day := date.In(loc)
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, nil
	}

	windowStart, err := atClock(day, opts.WorkdayStart, loc)
	if err != nil {
		return nil, err
	}
	windowEnd, err := atClock(day, opts.WorkdayEnd, loc)
	if err != nil {
		return nil, err
	}
	if !windowStart.Before(windowEnd) {
		return nil, fmt.Errorf("working window is empty")
	}

	earliest := now.Add(opts.MinLead)

	sorted := make([]BusyInterval, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var slots []Slot
	for t := windowStart; !t.Add(d).After(windowEnd); t = t.Add(30 * time.Minute) {
		if t.Before(earliest) {
			continue
		}
		if overlapsAny(t, t.Add(d), sorted) {
			continue
		}
		slots = append(slots, Slot{Start: t, End: t.Add(d)})
	}
	return slots, nil
}

func overlapsAny(start, end time.Time, busy []BusyInterval) bool {
	for _, b := range busy {
		if b.Start.Before(end) && start.Before(b.End) {
			return true
		}
	}
	return false
}

func atClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
