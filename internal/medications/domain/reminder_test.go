package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tod(t *testing.T, s string) TimeOfDay {
	t.Helper()
	v, err := ParseTimeOfDay(s)
	require.NoError(t, err)
	return v
}

func clock(times []TimeOfDay) []string {
	out := make([]string, len(times))
	for i, v := range times {
		out[i] = v.String()
	}
	return out
}

func TestNewDailyTimes_SortsAndDedupes(t *testing.T) {
	d, err := NewDailyTimes(tod(t, "20:00"), tod(t, "08:00"), tod(t, "20:00"))
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "20:00"}, clock(d.Expand()))

	_, err = NewDailyTimes()
	assert.ErrorIs(t, err, ErrReminderNoTimes)
}

func TestHourlyWindow_Expand(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		start    string
		end      string
		want     []string
	}{
		{"inclusive end", 2 * time.Hour, "08:00", "14:00", []string{"08:00", "10:00", "12:00", "14:00"}},
		{"step past end", 3 * time.Hour, "08:00", "10:00", []string{"08:00"}},
		{"start equals end", time.Hour, "09:00", "09:00", []string{"09:00"}},
		{"end before start", time.Hour, "18:00", "06:00", []string{}},
		{"minutes", 90 * time.Minute, "08:00", "11:00", []string{"08:00", "09:30", "11:00"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, err := NewHourlyWindow(tc.interval, tod(t, tc.start), tod(t, tc.end))
			require.NoError(t, err)
			assert.Equal(t, tc.want, clock(w.Expand()))
		})
	}
}

func TestNewHourlyWindow_InvalidInterval(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Hour, 30 * time.Second, 61 * time.Second} {
		_, err := NewHourlyWindow(d, tod(t, "08:00"), tod(t, "10:00"))
		assert.ErrorIs(t, err, ErrReminderInvalidInterval, d.String())
	}
}
