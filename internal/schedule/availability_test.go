package schedule

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/tuition_scheduler/internal/model"
)

func block(weekday time.Weekday, start, end string) *model.WeeklyAvailabilityBlock {
	r, err := ParseRange(start, end)
	if err != nil {
		panic(err)
	}
	return &model.WeeklyAvailabilityBlock{
		Owner:        model.TutorOwner(1),
		Weekday:      weekday,
		StartTime:    start,
		EndTime:      end,
		StartMinutes: r.Start,
		EndMinutes:   r.End,
	}
}

var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestWindowsTwoHoursByThirty(t *testing.T) {
	got := slices.Collect(Windows(block(time.Monday, "10:00", "12:00"), monday, 30))

	require.Len(t, got, 4)
	assert.Equal(t, "10:00", got[0].StartTime())
	assert.Equal(t, "10:30", got[0].EndTime())
	assert.Equal(t, "11:30", got[3].StartTime())
	assert.Equal(t, "12:00", got[3].EndTime())
	for _, w := range got {
		assert.Equal(t, monday, w.Date)
	}
}

func TestWindowsExactness(t *testing.T) {
	for _, blockMinutes := range []int{30, 45, 60, 100, 120, 185} {
		for _, session := range []int{15, 25, 30, 45, 60} {
			b := &model.WeeklyAvailabilityBlock{
				Weekday:      time.Monday,
				StartMinutes: 540,
				EndMinutes:   540 + blockMinutes,
			}
			got := slices.Collect(Windows(b, monday, session))

			require.Len(t, got, blockMinutes/session, "block=%d session=%d", blockMinutes, session)
			for i, w := range got {
				assert.Equal(t, session, w.Minutes())
				if i > 0 {
					assert.Equal(t, got[i-1].End, w.Start, "windows must be contiguous")
					assert.False(t, Overlaps(got[i-1].Interval, w.Interval))
				}
			}
		}
	}
}

func TestWindowsNoPartialTail(t *testing.T) {
	got := slices.Collect(Windows(block(time.Monday, "10:00", "11:10"), monday, 30))

	require.Len(t, got, 2)
	assert.Equal(t, "11:00", got[1].EndTime())
}

func TestWindowsEmptyCases(t *testing.T) {
	b := block(time.Monday, "10:00", "12:00")

	assert.Empty(t, slices.Collect(Windows(b, monday.AddDate(0, 0, 1), 30)), "weekday mismatch")
	assert.Empty(t, slices.Collect(Windows(b, monday, 0)))
	assert.Empty(t, slices.Collect(Windows(b, monday, 180)))
	assert.Empty(t, slices.Collect(Windows(nil, monday, 30)))
}

func TestWindowsStopsWhenConsumerStops(t *testing.T) {
	count := 0
	for range Windows(block(time.Monday, "08:00", "20:00"), monday, 30) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}
