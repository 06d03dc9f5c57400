package med

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dosely/adapter/cli"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
)

var errConflictingFlags = errors.New("conflicting flags")

// scheduleFlags are shared by add and schedule.
type scheduleFlags struct {
	start       string
	days        int
	weekdays    string
	every       int
	times       string
	hourly      time.Duration
	from        string
	until       string
	noReminders bool
}

type schedulePlan struct {
	Start      domain.Date
	Duration   domain.DurationPolicy
	Recurrence domain.Recurrence
	// Reminders is nil when reminders are off.
	Reminders domain.ReminderConfig
}

func (f *scheduleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "first day, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&f.days, "days", 0, "number of days to take it (default: continuous)")
	cmd.Flags().StringVar(&f.weekdays, "weekdays", "", "only on these days, e.g. mon,wed,fri")
	cmd.Flags().IntVar(&f.every, "every", 0, "every N days counted from the start")
	cmd.Flags().StringVarP(&f.times, "times", "t", "08:00", "reminder times, e.g. 08:00,20:00")
	cmd.Flags().DurationVar(&f.hourly, "hourly", 0, "remind at this interval inside --from/--until instead of --times")
	cmd.Flags().StringVar(&f.from, "from", "08:00", "start of the hourly window")
	cmd.Flags().StringVar(&f.until, "until", "20:00", "end of the hourly window")
	cmd.Flags().BoolVar(&f.noReminders, "no-reminders", false, "save the schedule without planning doses")
}

func (f *scheduleFlags) build(now time.Time, loc *time.Location) (*schedulePlan, error) {
	plan := &schedulePlan{Start: domain.DateOf(now.In(loc))}
	if f.start != "" {
		start, err := domain.ParseDate(f.start)
		if err != nil {
			return nil, err
		}
		plan.Start = start
	}

	plan.Duration = domain.Continuous{}
	if f.days > 0 {
		plan.Duration = domain.FixedDays{Days: f.days}
	}

	recurrence, err := f.recurrence()
	if err != nil {
		return nil, err
	}
	plan.Recurrence = recurrence

	if f.noReminders {
		return plan, nil
	}
	reminders, err := f.reminders()
	if err != nil {
		return nil, err
	}
	plan.Reminders = reminders
	return plan, nil
}

func (f *scheduleFlags) recurrence() (domain.Recurrence, error) {
	switch {
	case f.weekdays != "" && f.every > 0:
		return nil, fmt.Errorf("%w: --weekdays and --every", errConflictingFlags)
	case f.weekdays != "":
		var days []time.Weekday
		for _, name := range cli.SplitList(f.weekdays) {
			day, ok := domain.ParseWeekday(name)
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", name)
			}
			days = append(days, day)
		}
		return domain.SpecificWeekdays{Days: domain.NewWeekdaySet(days...)}, nil
	case f.every > 1:
		return domain.IntervalDays{Every: f.every}, nil
	default:
		return domain.Daily{}, nil
	}
}

func (f *scheduleFlags) reminders() (domain.ReminderConfig, error) {
	if f.hourly > 0 {
		from, err := domain.ParseTimeOfDay(f.from)
		if err != nil {
			return nil, fmt.Errorf("--from: %w", err)
		}
		until, err := domain.ParseTimeOfDay(f.until)
		if err != nil {
			return nil, fmt.Errorf("--until: %w", err)
		}
		return domain.NewHourlyWindow(f.hourly, from, until)
	}

	var tods []domain.TimeOfDay
	for _, s := range cli.SplitList(f.times) {
		tod, err := domain.ParseTimeOfDay(s)
		if err != nil {
			return nil, fmt.Errorf("--times: %w", err)
		}
		tods = append(tods, tod)
	}
	return domain.NewDailyTimes(tods...)
}
