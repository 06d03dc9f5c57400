package cli

import (
	"time"

	"github.com/google/uuid"

	internalApp "github.com/felixgeelhaar/dosely/internal/app"
	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
	"github.com/felixgeelhaar/dosely/internal/medications/application/queries"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/felixgeelhaar/dosely/internal/medications/infrastructure/calendar"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
)

// App holds the CLI application dependencies.
type App struct {
	// Medication Command Handlers
	CreateMedicationHandler  *commands.CreateMedicationHandler
	ChangeScheduleHandler    *commands.ChangeScheduleHandler
	ArchiveMedicationHandler *commands.ArchiveMedicationHandler

	// Dose Command Handlers
	RecordDoseHandler      *commands.RecordDoseHandler
	LogAsNeededDoseHandler *commands.LogAsNeededDoseHandler

	// Job Handlers
	MaterializeLogsHandler  *commands.MaterializeLogsHandler
	SweepMissedDosesHandler *commands.SweepMissedDosesHandler

	// Query Handlers
	ListMedicationsHandler *queries.ListMedicationsHandler
	ListDosesHandler       *queries.ListDosesHandler
	GetAdherenceHandler    *queries.GetAdherenceHandler

	// Calendar. CalendarPublisher is nil without CALDAV_URL.
	MedicationRepo    domain.MedicationRepository
	DoseLogRepo       domain.DoseLogRepository
	CalendarExporter  *calendar.Exporter
	CalendarPublisher *calendar.CalDAVPublisher

	// OutboxRepo lets local mode drain events without the worker.
	OutboxRepo outbox.Repository

	// Location is the zone dates and times on the command line are read in.
	Location *time.Location

	// Current user (configured per environment)
	CurrentUserID uuid.UUID
}

// NewApp takes the handlers the commands use from the container.
func NewApp(c *internalApp.Container) *App {
	return &App{
		CreateMedicationHandler:  c.CreateMedicationHandler,
		ChangeScheduleHandler:    c.ChangeScheduleHandler,
		ArchiveMedicationHandler: c.ArchiveMedicationHandler,
		RecordDoseHandler:        c.RecordDoseHandler,
		LogAsNeededDoseHandler:   c.LogAsNeededDoseHandler,
		MaterializeLogsHandler:   c.MaterializeLogsHandler,
		SweepMissedDosesHandler:  c.SweepMissedDosesHandler,
		ListMedicationsHandler:   c.ListMedicationsHandler,
		ListDosesHandler:         c.ListDosesHandler,
		GetAdherenceHandler:      c.GetAdherenceHandler,
		MedicationRepo:           c.MedicationRepo,
		DoseLogRepo:              c.DoseLogRepo,
		CalendarExporter:         c.CalendarExporter,
		CalendarPublisher:        c.CalendarPublisher,
		OutboxRepo:               c.OutboxRepo,
		Location:                 c.Location,
		CurrentUserID:            c.UserID,
	}
}

// SetCurrentUserID updates the current user ID.
func (a *App) SetCurrentUserID(id uuid.UUID) {
	a.CurrentUserID = id
}

var currentApp *App

// SetApp sets the CLI application instance.
func SetApp(app *App) {
	currentApp = app
}

// GetApp returns the app, or ErrNoApp when none was set.
func GetApp() (*App, error) {
	if currentApp == nil {
		return nil, ErrNoApp
	}
	return currentApp, nil
}
