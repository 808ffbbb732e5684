package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2026-09-07.
var testDay = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func testOpts() SlotOptions {
	return SlotOptions{
		Location: time.UTC,
		// Well before the day so the 48 h lead rule never interferes.
		Now: testDay.AddDate(0, 0, -7),
	}
}

func TestAvailableSlotsFullDay(t *testing.T) {
	slots, err := AvailableSlots(testDay, time.Hour, nil, testOpts())
	require.NoError(t, err)

	// 09:00..17:00 starts on the half hour: 17 one-hour slots.
	require.Len(t, slots, 17)
	assert.Equal(t, testDay.Add(9*time.Hour), slots[0].Start)
	assert.Equal(t, testDay.Add(17*time.Hour), slots[len(slots)-1].Start)
	assert.Equal(t, testDay.Add(18*time.Hour), slots[len(slots)-1].End)
}

func TestAvailableSlotsExcludeBusyOverlap(t *testing.T) {
	busy := []BusyInterval{
		{Start: testDay.Add(10 * time.Hour), End: testDay.Add(11 * time.Hour)},
	}
	slots, err := AvailableSlots(testDay, time.Hour, busy, testOpts())
	require.NoError(t, err)

	for _, slot := range slots {
		assert.False(t, busy[0].Start.Before(slot.End) && slot.Start.Before(busy[0].End),
			"slot %v overlaps busy interval", slot)
	}
	// 09:00 and 11:00 touch the busy interval without overlapping.
	starts := map[time.Time]bool{}
	for _, slot := range slots {
		starts[slot.Start] = true
	}
	assert.True(t, starts[testDay.Add(9*time.Hour)])
	assert.True(t, starts[testDay.Add(11*time.Hour)])
	assert.False(t, starts[testDay.Add(9*time.Hour+30*time.Minute)]) // overlaps 10:00
	assert.False(t, starts[testDay.Add(10*time.Hour)])
}

func TestAvailableSlotsWeekend(t *testing.T) {
	saturday := testDay.AddDate(0, 0, -2)
	slots, err := AvailableSlots(saturday, time.Hour, nil, testOpts())
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsMinimumLead(t *testing.T) {
	opts := testOpts()
	// 44 h before the working day opens: candidates before 13:00 fall
	// inside the 48 h lead window.
	opts.Now = testDay.Add(9 * time.Hour).Add(-44 * time.Hour)

	slots, err := AvailableSlots(testDay, time.Hour, nil, opts)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, testDay.Add(13*time.Hour), slots[0].Start)
	for _, slot := range slots {
		assert.False(t, slot.Start.Before(opts.Now.Add(48*time.Hour)))
	}

	// A lead window past the working day leaves nothing.
	opts.Now = testDay.Add(9 * time.Hour).Add(-36 * time.Hour)
	slots, err = AvailableSlots(testDay, time.Hour, nil, opts)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsShortDuration(t *testing.T) {
	slots, err := AvailableSlots(testDay, 30*time.Minute, nil, testOpts())
	require.NoError(t, err)
	// 09:00..17:30 starts: 18 half-hour slots.
	assert.Len(t, slots, 18)
}

func TestAvailableSlotsRejectsNonPositiveDuration(t *testing.T) {
	_, err := AvailableSlots(testDay, 0, nil, testOpts())
	assert.Error(t, err)
}
