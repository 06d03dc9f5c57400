// Package calendar renders medication schedules and dose logs as iCalendar
// data and publishes doses to CalDAV servers.
package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

// Custom properties on exported events.
const (
	PropXDosely           = "X-DOSELY"
	PropXDoselyStatus     = "X-DOSELY-STATUS"
	PropXDoselyMedication = "X-DOSELY-MEDICATION"
)

const productID = "-//Dosely//Medication Reminders//EN"

var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Exporter builds iCalendar documents.
type Exporter struct {
	loc          *time.Location
	doseDuration time.Duration
	now          func() time.Time
}

// NewExporter creates an exporter that writes wall-clock times in loc, with
// a VTIMEZONE for loc unless it is UTC.
func NewExporter(loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{loc: loc, doseDuration: 15 * time.Minute, now: time.Now}
}

// WithDoseDuration sets the length of each exported event.
func (e *Exporter) WithDoseDuration(d time.Duration) *Exporter {
	if d > 0 {
		e.doseDuration = d
	}
	return e
}

func (e *Exporter) newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// ExportSchedules emits one recurring event per medication and reminder
// time. As-needed and archived medications are left out.
func (e *Exporter) ExportSchedules(meds []*domain.Medication) *ical.Calendar {
	cal := e.newCalendar()
	var span bounds
	for _, med := range meds {
		if !med.NeedsMaterialization() {
			continue
		}
		for _, tod := range med.Reminders().Expand() {
			opt, ok := RecurrenceOption(med.Schedule(), tod, e.loc)
			if !ok {
				continue
			}
			event := e.baseEvent(fmt.Sprintf("%s-%02d%02d@dosely", med.ID(), tod.Hour(), tod.Minute()), med, opt.Dtstart)
			rule := ical.NewProp(ical.PropRecurrenceRule)
			rule.Value = opt.RRuleString()
			event.Props.Set(rule)
			cal.Children = append(cal.Children, event.Component)
			span.add(opt.Dtstart)
		}
	}
	e.addTimezone(cal, span)
	return cal
}

// ExportDoses emits one event per dose log. Every log must belong to one of
// meds.
func (e *Exporter) ExportDoses(meds []*domain.Medication, logs []*domain.DoseLog) (*ical.Calendar, error) {
	byID := make(map[uuid.UUID]*domain.Medication, len(meds))
	for _, med := range meds {
		byID[med.ID()] = med
	}

	cal := e.newCalendar()
	var span bounds
	for _, log := range logs {
		med, ok := byID[log.MedicationID()]
		if !ok {
			return nil, fmt.Errorf("dose %s: medication %s not exported", log.ID(), log.MedicationID())
		}
		cal.Children = append(cal.Children, e.DoseEvent(med, log).Component)
		span.add(log.PlannedAt())
	}
	e.addTimezone(cal, span)
	return cal, nil
}

// DoseCalendar wraps a single dose event, the unit stored per CalDAV object.
func (e *Exporter) DoseCalendar(med *domain.Medication, log *domain.DoseLog) *ical.Calendar {
	cal := e.newCalendar()
	cal.Children = append(cal.Children, e.DoseEvent(med, log).Component)
	e.addTimezone(cal, bounds{first: log.PlannedAt(), last: log.PlannedAt()})
	return cal
}

// addTimezone prepends the VTIMEZONE that event TZID parameters refer to.
// UTC calendars need none.
func (e *Exporter) addTimezone(cal *ical.Calendar, span bounds) {
	if e.loc == time.UTC || span.first.IsZero() {
		return
	}
	to := span.last
	if now := e.now(); now.After(to) {
		to = now
	}
	tz := Timezone(e.loc, span.first, to.AddDate(timezoneYears, 0, 0))
	cal.Children = append([]*ical.Component{tz}, cal.Children...)
}

// DoseEvent renders one dose log.
func (e *Exporter) DoseEvent(med *domain.Medication, log *domain.DoseLog) *ical.Event {
	event := e.baseEvent(log.ID().String()+"@dosely", med, log.PlannedAt().In(e.loc))
	status := ical.NewProp(PropXDoselyStatus)
	status.Value = log.Status().String()
	event.Props.Set(status)

	switch log.Status() {
	case domain.StatusSkipped, domain.StatusMissed:
		event.Props.SetText(ical.PropStatus, "CANCELLED")
	default:
		event.Props.SetText(ical.PropStatus, "CONFIRMED")
	}
	return event
}

func (e *Exporter) baseEvent(uid string, med *domain.Medication, start time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, e.now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(e.doseDuration))
	event.Props.SetText(ical.PropSummary, summary(med))
	if med.Instructions() != "" {
		event.Props.SetText(ical.PropDescription, med.Instructions())
	}

	marker := ical.NewProp(PropXDosely)
	marker.Value = "1"
	event.Props.Set(marker)
	medProp := ical.NewProp(PropXDoselyMedication)
	medProp.Value = med.ID().String()
	event.Props.Set(medProp)
	return event
}

func summary(med *domain.Medication) string {
	return strings.TrimSpace(med.Name() + " " + med.Dosage())
}

// RecurrenceOption translates a schedule and reminder time into an RRULE.
// Dtstart is the first due occurrence; ok is false when there is none.
func RecurrenceOption(s *domain.Schedule, tod domain.TimeOfDay, loc *time.Location) (opt rrule.ROption, ok bool) {
	first, ok := firstDueDate(s)
	if !ok {
		return rrule.ROption{}, false
	}
	opt = rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: first.At(tod, loc),
	}

	switch r := s.Recurrence().(type) {
	case domain.SpecificWeekdays:
		opt.Freq = rrule.WEEKLY
		for _, d := range r.Days.Days() {
			opt.Byweekday = append(opt.Byweekday, weekdays[d])
		}
	case domain.IntervalDays:
		if r.Every > 1 {
			opt.Interval = r.Every
		}
	}

	if end, bounded := s.EndDate(); bounded {
		opt.Until = end.At(tod, loc).UTC()
	}
	return opt, true
}

// firstDueDate finds the earliest due day. Weekday rules repeat within a week
// and the others are due on their start date.
func firstDueDate(s *domain.Schedule) (domain.Date, bool) {
	start := s.StartDate()
	for i := 0; i < 7; i++ {
		d := start.AddDays(i)
		if s.HasEndedBy(d) {
			break
		}
		if s.IsDue(d) {
			return d, true
		}
	}
	return domain.Date{}, false
}

// Encode writes cal in iCalendar format.
func Encode(w io.Writer, cal *ical.Calendar) error {
	return ical.NewEncoder(w).Encode(cal)
}
