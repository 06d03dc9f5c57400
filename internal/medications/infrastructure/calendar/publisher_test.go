package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
)

type fakeCalDAV struct {
	calendars []caldav.Calendar
	objects   map[string]*ical.Calendar
	failPut   string
	discovery int
}

func newFakeCalDAV(paths ...string) *fakeCalDAV {
	f := &fakeCalDAV{objects: make(map[string]*ical.Calendar)}
	for _, p := range paths {
		f.calendars = append(f.calendars, caldav.Calendar{Path: p})
	}
	return f
}

func (f *fakeCalDAV) FindCurrentUserPrincipal(context.Context) (string, error) {
	f.discovery++
	return "/principals/me/", nil
}

func (f *fakeCalDAV) FindCalendarHomeSet(_ context.Context, principal string) (string, error) {
	return principal + "calendars/", nil
}

func (f *fakeCalDAV) FindCalendars(context.Context, string) ([]caldav.Calendar, error) {
	return f.calendars, nil
}

func (f *fakeCalDAV) GetCalendarObject(_ context.Context, path string) (*caldav.CalendarObject, error) {
	cal, ok := f.objects[path]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return &caldav.CalendarObject{Path: path, Data: cal}, nil
}

func (f *fakeCalDAV) PutCalendarObject(_ context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error) {
	if path == f.failPut {
		return nil, errors.New("507 insufficient storage")
	}
	f.objects[path] = cal
	return &caldav.CalendarObject{Path: path, Data: cal}, nil
}

func newTestPublisher(client *fakeCalDAV) *CalDAVPublisher {
	p := NewCalDAVPublisher("https://dav.example.com", "me", "secret", newTestExporter(time.UTC), nil)
	p.newClient = func() (calendarClient, error) { return client, nil }
	return p
}

func TestCalDAVPublisher_CreatesThenUpdates(t *testing.T) {
	client := newFakeCalDAV("/calendars/me/meds/", "/calendars/me/other/")
	publisher := newTestPublisher(client)
	med := scheduledMed(t, domain.NewDate(2024, 1, 1), domain.Continuous{}, domain.Daily{}, "08:00")
	doses := []*domain.DoseLog{
		domain.NewPendingDose(med, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)),
		domain.NewPendingDose(med, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)),
	}

	result, err := publisher.Publish(context.Background(), []*domain.Medication{med}, doses)
	require.NoError(t, err)
	assert.Equal(t, &PublishResult{Created: 2}, result)

	path := "/calendars/me/meds/" + doses[0].ID().String() + ".ics"
	require.Contains(t, client.objects, path)
	events := client.objects[path].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "pending", events[0].Props.Get(PropXDoselyStatus).Value)

	require.NoError(t, doses[0].MarkTaken(time.Date(2024, 1, 1, 8, 5, 0, 0, time.UTC), time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
	result, err = publisher.Publish(context.Background(), []*domain.Medication{med}, doses[:1])
	require.NoError(t, err)
	assert.Equal(t, &PublishResult{Updated: 1}, result)
	assert.Equal(t, "taken", client.objects[path].Events()[0].Props.Get(PropXDoselyStatus).Value)
}

func TestCalDAVPublisher_CalendarPathSkipsDiscovery(t *testing.T) {
	client := newFakeCalDAV()
	publisher := newTestPublisher(client).WithCalendarPath("/dav/pinned")
	med := scheduledMed(t, domain.NewDate(2024, 1, 1), domain.Continuous{}, domain.Daily{}, "08:00")
	dose := domain.NewPendingDose(med, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))

	_, err := publisher.Publish(context.Background(), []*domain.Medication{med}, []*domain.DoseLog{dose})
	require.NoError(t, err)
	assert.Zero(t, client.discovery)
	assert.Contains(t, client.objects, "/dav/pinned/"+dose.ID().String()+".ics")
}

func TestCalDAVPublisher_NoCalendars(t *testing.T) {
	publisher := newTestPublisher(newFakeCalDAV())

	_, err := publisher.Publish(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoCalendar)
}

func TestCalDAVPublisher_CountsFailures(t *testing.T) {
	client := newFakeCalDAV("/cal/")
	publisher := newTestPublisher(client)
	med := scheduledMed(t, domain.NewDate(2024, 1, 1), domain.Continuous{}, domain.Daily{}, "08:00")
	orphanMed := scheduledMed(t, domain.NewDate(2024, 1, 1), domain.Continuous{}, domain.Daily{}, "09:00")

	ok := domain.NewPendingDose(med, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	broken := domain.NewPendingDose(med, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC))
	orphan := domain.NewPendingDose(orphanMed, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	client.failPut = "/cal/" + broken.ID().String() + ".ics"

	result, err := publisher.Publish(context.Background(), []*domain.Medication{med}, []*domain.DoseLog{ok, broken, orphan})
	require.NoError(t, err)
	assert.Equal(t, &PublishResult{Created: 1, Failed: 2}, result)
}

func TestCalDAVPublisher_StopsOnCancel(t *testing.T) {
	client := newFakeCalDAV("/cal/")
	publisher := newTestPublisher(client)
	med := scheduledMed(t, domain.NewDate(2024, 1, 1), domain.Continuous{}, domain.Daily{}, "08:00")
	dose := domain.NewPendingDose(med, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := publisher.Publish(ctx, []*domain.Medication{med}, []*domain.DoseLog{dose})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.objects)
}
