package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
var monday = NewDate(2024, time.January, 1)

func mustSchedule(t *testing.T, d DurationPolicy, r Recurrence) *Schedule {
	t.Helper()
	s, err := NewSchedule(monday, d, r)
	require.NoError(t, err)
	return s
}

func TestNewSchedule_Validation(t *testing.T) {
	tests := []struct {
		name     string
		duration DurationPolicy
		rec      Recurrence
		err      error
	}{
		{"daily continuous", Continuous{}, Daily{}, nil},
		{"zero fixed days", FixedDays{Days: 0}, Daily{}, ErrScheduleInvalidDuration},
		{"no weekdays", Continuous{}, SpecificWeekdays{}, ErrScheduleEmptyWeekdays},
		{"zero interval", Continuous{}, IntervalDays{Every: 0}, ErrScheduleInvalidInterval},
		{"nil recurrence", Continuous{}, nil, ErrScheduleUnknownKind},
		{"nil duration", nil, Daily{}, ErrScheduleUnknownKind},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSchedule(monday, tc.duration, tc.rec)
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestSchedule_NeverDueBeforeStart(t *testing.T) {
	s := mustSchedule(t, Continuous{}, Daily{})
	assert.False(t, s.IsDue(monday.AddDays(-1)))
	assert.True(t, s.IsDue(monday))
}

func TestSchedule_IntervalDueOnStart(t *testing.T) {
	s := mustSchedule(t, Continuous{}, IntervalDays{Every: 3})

	var due []int
	for i := 0; i < 10; i++ {
		if s.IsDue(monday.AddDays(i)) {
			due = append(due, i)
		}
	}
	assert.Equal(t, []int{0, 3, 6, 9}, due)
}

func TestSchedule_FixedDaysEnds(t *testing.T) {
	s := mustSchedule(t, FixedDays{Days: 5}, Daily{})

	end, ok := s.EndDate()
	require.True(t, ok)
	assert.Equal(t, monday.AddDays(4), end)
	assert.True(t, s.IsDue(monday.AddDays(4)))
	assert.False(t, s.IsDue(monday.AddDays(5)))
	assert.False(t, s.HasEndedBy(monday.AddDays(4)))
	assert.True(t, s.HasEndedBy(monday.AddDays(5)))

	_, ok = mustSchedule(t, Continuous{}, Daily{}).EndDate()
	assert.False(t, ok)
}

func TestSchedule_SpecificWeekdays(t *testing.T) {
	s := mustSchedule(t, Continuous{}, SpecificWeekdays{Days: NewWeekdaySet(time.Monday, time.Wednesday)})

	var due []int
	for i := 0; i < 14; i++ {
		if s.IsDue(monday.AddDays(i)) {
			due = append(due, i)
		}
	}
	assert.Equal(t, []int{0, 2, 7, 9}, due)
}

func TestWeekdaySet(t *testing.T) {
	set := NewWeekdaySet(time.Friday, time.Monday, time.Monday)

	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, set.Days())
	assert.Equal(t, "mon,fri", set.String())
	assert.True(t, NewWeekdaySet().IsEmpty())
}

func TestParseWeekday(t *testing.T) {
	d, ok := ParseWeekday("Wed")
	assert.True(t, ok)
	assert.Equal(t, time.Wednesday, d)

	d, ok = ParseWeekday("saturday")
	assert.True(t, ok)
	assert.Equal(t, time.Saturday, d)

	_, ok = ParseWeekday("mo")
	assert.False(t, ok)
}
