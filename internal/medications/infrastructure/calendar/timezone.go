package calendar

import (
	"fmt"
	"time"

	"github.com/emersion/go-ical"
)

// timezoneYears is how far past the last event a VTIMEZONE lists offset
// changes.
const timezoneYears = 5

// Timezone describes loc's UTC offsets between from and to as a VTIMEZONE
// with one observance per offset change. A zone without transitions gets a
// single STANDARD observance starting at from.
func Timezone(loc *time.Location, from, to time.Time) *ical.Component {
	tz := ical.NewComponent(ical.CompTimezone)
	tz.Props.SetText(ical.PropTimezoneID, loc.String())

	at := from.In(loc)
	start, end := at.ZoneBounds()
	offsetFrom := offsetOf(at)
	if start.IsZero() {
		start = at
	} else {
		offsetFrom = offsetOf(start.Add(-time.Second))
	}
	for {
		tz.Children = append(tz.Children, observance(start, offsetFrom))
		if end.IsZero() || end.After(to) {
			return tz
		}
		offsetFrom = offsetOf(start)
		start, end = end.ZoneBounds()
	}
}

// observance starts at start, written as wall-clock time in the offset
// being left.
func observance(start time.Time, offsetFrom int) *ical.Component {
	kind := ical.CompTimezoneStandard
	if start.IsDST() {
		kind = ical.CompTimezoneDaylight
	}
	comp := ical.NewComponent(kind)
	name, offset := start.Zone()

	dtstart := ical.NewProp(ical.PropDateTimeStart)
	dtstart.Value = start.In(time.FixedZone("", offsetFrom)).Format("20060102T150405")
	comp.Props.Set(dtstart)

	fromProp := ical.NewProp(ical.PropTimezoneOffsetFrom)
	fromProp.Value = formatOffset(offsetFrom)
	comp.Props.Set(fromProp)
	toProp := ical.NewProp(ical.PropTimezoneOffsetTo)
	toProp.Value = formatOffset(offset)
	comp.Props.Set(toProp)

	if name != "" {
		comp.Props.SetText(ical.PropTimezoneName, name)
	}
	return comp
}

func offsetOf(t time.Time) int {
	_, offset := t.Zone()
	return offset
}

// formatOffset renders seconds east of UTC as +hhmm.
func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d%02d", sign, seconds/3600, seconds%3600/60)
}

// bounds tracks the first and last event start in a calendar.
type bounds struct {
	first, last time.Time
}

func (b *bounds) add(t time.Time) {
	if b.first.IsZero() || t.Before(b.first) {
		b.first = t
	}
	if t.After(b.last) {
		b.last = t
	}
}
