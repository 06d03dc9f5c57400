package domain

import (
	"errors"
	"slices"
	"time"
)

var (
	ErrReminderNoTimes         = errors.New("at least one reminder time is required")
	ErrReminderInvalidInterval = errors.New("reminder interval must be a positive whole number of minutes")
)

// ReminderConfig yields the times of day a medication's doses are planned
// for: either DailyTimes or HourlyWindow.
type ReminderConfig interface {
	// Expand returns the times of day in ascending order.
	Expand() []TimeOfDay
	isReminderConfig()
}

// DailyTimes is an explicit set of clock times, kept sorted and unique.
type DailyTimes struct {
	times []TimeOfDay
}

// NewDailyTimes sorts and de-duplicates times.
func NewDailyTimes(times ...TimeOfDay) (DailyTimes, error) {
	if len(times) == 0 {
		return DailyTimes{}, ErrReminderNoTimes
	}
	sorted := slices.Clone(times)
	slices.SortFunc(sorted, func(a, b TimeOfDay) int { return a.minutes - b.minutes })
	return DailyTimes{times: slices.Compact(sorted)}, nil
}

func (d DailyTimes) Expand() []TimeOfDay { return slices.Clone(d.times) }
func (DailyTimes) isReminderConfig()     {}

// HourlyWindow repeats every interval from start, never passing end.
type HourlyWindow struct {
	interval time.Duration
	start    TimeOfDay
	end      TimeOfDay
}

// NewHourlyWindow validates the interval. An end before start is allowed and
// expands to nothing.
func NewHourlyWindow(interval time.Duration, start, end TimeOfDay) (HourlyWindow, error) {
	if interval < time.Minute || interval%time.Minute != 0 {
		return HourlyWindow{}, ErrReminderInvalidInterval
	}
	return HourlyWindow{interval: interval, start: start, end: end}, nil
}

func (w HourlyWindow) Interval() time.Duration { return w.interval }
func (w HourlyWindow) Start() TimeOfDay        { return w.start }
func (w HourlyWindow) End() TimeOfDay          { return w.end }
func (HourlyWindow) isReminderConfig()         {}

// Expand emits start, start+interval, ... up to floor((end-start)/interval)
// steps, stopping at the first slot after end.
func (w HourlyWindow) Expand() []TimeOfDay {
	span := w.end.minutes - w.start.minutes
	step := int(w.interval / time.Minute)
	if span < 0 || step <= 0 {
		return []TimeOfDay{}
	}
	count := span / step
	out := make([]TimeOfDay, 0, count+1)
	for i := 0; i <= count; i++ {
		slot := w.start.minutes + i*step
		if slot > w.end.minutes {
			break
		}
		out = append(out, TimeOfDay{minutes: slot})
	}
	return out
}
