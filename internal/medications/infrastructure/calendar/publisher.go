package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/google/uuid"
)

// ErrNoCalendar is returned when the account has no calendar to publish to.
var ErrNoCalendar = errors.New("no calendars found")

// calendarClient is the subset of *caldav.Client the publisher uses.
type calendarClient interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	GetCalendarObject(ctx context.Context, path string) (*caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
}

// PublishResult counts what a publish run did.
type PublishResult struct {
	Created int
	Updated int
	Failed  int
}

// CalDAVPublisher upserts dose events into a CalDAV calendar (Nextcloud,
// Fastmail, iCloud with an app password).
type CalDAVPublisher struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	exporter     *Exporter
	logger       *slog.Logger

	newClient func() (calendarClient, error)
}

// NewCalDAVPublisher creates a publisher for the server at baseURL.
func NewCalDAVPublisher(baseURL, username, password string, exporter *Exporter, logger *slog.Logger) *CalDAVPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &CalDAVPublisher{
		baseURL:  baseURL,
		username: username,
		password: password,
		exporter: exporter,
		logger:   logger,
	}
	p.newClient = p.dial
	return p
}

// WithCalendarPath pins the target calendar instead of using the first one.
func (p *CalDAVPublisher) WithCalendarPath(path string) *CalDAVPublisher {
	if path != "" && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	p.calendarPath = path
	return p
}

func (p *CalDAVPublisher) dial() (calendarClient, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, p.username, p.password), p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}
	return client, nil
}

// Publish writes one calendar object per dose log, keyed by the log ID so
// repeated runs update in place. A failed object is logged and counted; the
// run continues.
func (p *CalDAVPublisher) Publish(ctx context.Context, meds []*domain.Medication, logs []*domain.DoseLog) (*PublishResult, error) {
	byID := make(map[uuid.UUID]*domain.Medication, len(meds))
	for _, med := range meds {
		byID[med.ID()] = med
	}

	client, err := p.newClient()
	if err != nil {
		return nil, err
	}
	calPath, err := p.findCalendarPath(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("find calendar: %w", err)
	}

	result := &PublishResult{}
	for _, log := range logs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		med, ok := byID[log.MedicationID()]
		if !ok {
			result.Failed++
			continue
		}

		path := calPath + log.ID().String() + ".ics"
		_, getErr := client.GetCalendarObject(ctx, path)
		if _, err := client.PutCalendarObject(ctx, path, p.exporter.DoseCalendar(med, log)); err != nil {
			p.logger.Warn("caldav publish failed", "path", path, "error", err)
			result.Failed++
			continue
		}
		if getErr == nil {
			result.Updated++
		} else {
			result.Created++
		}
	}
	return result, nil
}

func (p *CalDAVPublisher) findCalendarPath(ctx context.Context, client calendarClient) (string, error) {
	if p.calendarPath != "" {
		return p.calendarPath, nil
	}
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home set: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", ErrNoCalendar
	}
	return cals[0].Path, nil
}
