package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrScheduleEmptyWeekdays   = errors.New("weekday schedule needs at least one day")
	ErrScheduleInvalidInterval = errors.New("interval must be at least one day")
	ErrScheduleInvalidDuration = errors.New("fixed duration must be at least one day")
	ErrScheduleMissingStart    = errors.New("schedule start date is required")
	ErrScheduleUnknownKind     = errors.New("unknown schedule kind")
)

// DurationPolicy bounds how long a schedule applies: Continuous or FixedDays.
type DurationPolicy interface {
	isDurationPolicy()
}

// Continuous schedules never end.
type Continuous struct{}

// FixedDays schedules cover Days calendar days starting at the start date.
type FixedDays struct {
	Days int
}

func (Continuous) isDurationPolicy() {}
func (FixedDays) isDurationPolicy()  {}

// Recurrence decides which days inside the duration are dose days:
// Daily, SpecificWeekdays or IntervalDays.
type Recurrence interface {
	isRecurrence()
	dueOn(start, date Date) bool
}

// Daily recurs every day.
type Daily struct{}

// SpecificWeekdays recurs on the given days of the week.
type SpecificWeekdays struct {
	Days WeekdaySet
}

// IntervalDays recurs every Every days counting from the start date.
type IntervalDays struct {
	Every int
}

func (Daily) isRecurrence()            {}
func (SpecificWeekdays) isRecurrence() {}
func (IntervalDays) isRecurrence()     {}

func (Daily) dueOn(_, _ Date) bool { return true }

func (r SpecificWeekdays) dueOn(_, date Date) bool { return r.Days.Contains(date.Weekday()) }

func (r IntervalDays) dueOn(start, date Date) bool { return date.DaysSince(start)%r.Every == 0 }

// WeekdaySet is a set of days of the week.
type WeekdaySet uint8

// NewWeekdaySet builds a set from days.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d%7)
	}
	return s
}

func (s WeekdaySet) Contains(d time.Weekday) bool { return s&(1<<uint(d%7)) != 0 }
func (s WeekdaySet) IsEmpty() bool                { return s == 0 }

// Days lists members from Sunday to Saturday.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) String() string {
	names := make([]string, 0, 7)
	for _, d := range s.Days() {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return strings.Join(names, ",")
}

// ParseWeekday accepts English day names or their three letter prefix.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.HasPrefix(strings.ToLower(d.String()), s) {
			return d, true
		}
	}
	return 0, false
}

// Schedule is a medication's recurrence rule. It is immutable; changing a
// medication's rule replaces its schedule.
type Schedule struct {
	id         uuid.UUID
	startDate  Date
	duration   DurationPolicy
	recurrence Recurrence
}

// NewSchedule validates and creates a schedule with a fresh ID.
func NewSchedule(start Date, duration DurationPolicy, recurrence Recurrence) (*Schedule, error) {
	return RehydrateSchedule(uuid.New(), start, duration, recurrence)
}

// RehydrateSchedule rebuilds a stored schedule, applying the same validation.
func RehydrateSchedule(id uuid.UUID, start Date, duration DurationPolicy, recurrence Recurrence) (*Schedule, error) {
	switch d := duration.(type) {
	case Continuous:
	case FixedDays:
		if d.Days < 1 {
			return nil, ErrScheduleInvalidDuration
		}
	default:
		return nil, ErrScheduleUnknownKind
	}

	switch r := recurrence.(type) {
	case Daily:
	case SpecificWeekdays:
		if r.Days.IsEmpty() {
			return nil, ErrScheduleEmptyWeekdays
		}
	case IntervalDays:
		if r.Every < 1 {
			return nil, ErrScheduleInvalidInterval
		}
	default:
		return nil, ErrScheduleUnknownKind
	}

	return &Schedule{id: id, startDate: start, duration: duration, recurrence: recurrence}, nil
}

func (s *Schedule) ID() uuid.UUID            { return s.id }
func (s *Schedule) StartDate() Date          { return s.startDate }
func (s *Schedule) Duration() DurationPolicy { return s.duration }
func (s *Schedule) Recurrence() Recurrence   { return s.recurrence }

// EndDate returns the last inclusive day of a FixedDays schedule.
func (s *Schedule) EndDate() (Date, bool) {
	if fixed, ok := s.duration.(FixedDays); ok {
		return s.startDate.AddDays(fixed.Days - 1), true
	}
	return Date{}, false
}

// HasEndedBy reports whether every day of the schedule lies before date.
func (s *Schedule) HasEndedBy(date Date) bool {
	end, ok := s.EndDate()
	return ok && date.After(end)
}

// IsDue reports whether a dose falls on date. Dates before the start are
// never due.
func (s *Schedule) IsDue(date Date) bool {
	if date.Before(s.startDate) || s.HasEndedBy(date) {
		return false
	}
	return s.recurrence.dueOn(s.startDate, date)
}
