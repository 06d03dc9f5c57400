package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
	"github.com/felixgeelhaar/dosely/internal/medications/application/queries"
	"github.com/felixgeelhaar/dosely/internal/medications/application/services"
	"github.com/felixgeelhaar/dosely/internal/medications/application/workers"
	"github.com/felixgeelhaar/dosely/internal/medications/domain"
	"github.com/felixgeelhaar/dosely/internal/medications/infrastructure/calendar"
	"github.com/felixgeelhaar/dosely/internal/medications/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/dosely/internal/shared/application"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/dosely/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/dosely/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/lease"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/dosely/pkg/config"
	"github.com/felixgeelhaar/dosely/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *observability.InMemoryMetrics
	Location *time.Location
	UserID   uuid.UUID

	// Database
	DB database.Connection

	// Redis is nil unless REDIS_URL is set and reachable.
	RedisClient *redis.Client

	// Repositories
	MedicationRepo domain.MedicationRepository
	DoseLogRepo    domain.DoseLogRepository
	OutboxRepo     outbox.Repository
	UnitOfWork     sharedApplication.UnitOfWork

	// Services
	Materializer *services.LogMaterializer
	Sweeper      *services.MissedDoseSweeper

	// Command handlers
	CreateMedicationHandler  *commands.CreateMedicationHandler
	ChangeScheduleHandler    *commands.ChangeScheduleHandler
	ArchiveMedicationHandler *commands.ArchiveMedicationHandler
	RecordDoseHandler        *commands.RecordDoseHandler
	LogAsNeededDoseHandler   *commands.LogAsNeededDoseHandler
	MaterializeLogsHandler   *commands.MaterializeLogsHandler
	SweepMissedDosesHandler  *commands.SweepMissedDosesHandler

	// Query handlers
	ListMedicationsHandler *queries.ListMedicationsHandler
	ListDosesHandler       *queries.ListDosesHandler
	GetAdherenceHandler    *queries.GetAdherenceHandler

	// Calendar
	CalendarExporter  *calendar.Exporter
	CalendarPublisher *calendar.CalDAVPublisher
}

// NewContainer opens the configured database, applies migrations and wires
// every handler.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("DOSELY_USER_ID %q: %w", cfg.UserID, err)
	}

	conn, err := database.Open(ctx, database.Config{
		Driver:     database.Driver(cfg.DatabaseDriver),
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrations.Run(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("connected to database", "driver", conn.Driver().String())

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  observability.NewInMemoryMetrics(),
		Location: loc,
		UserID:   userID,
		DB:       conn,
	}

	if cfg.RedisURL != "" {
		client, err := lease.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			if !cfg.IsDevelopment() {
				_ = conn.Close()
				return nil, fmt.Errorf("failed to connect to Redis: %w", err)
			}
			logger.Warn("Redis not available, job leases stay in-process", "error", err)
		} else {
			c.RedisClient = client
			logger.Info("connected to Redis")
		}
	}

	c.MedicationRepo = persistence.NewMedicationRepository(conn)
	c.DoseLogRepo = persistence.NewDoseLogRepository(conn)
	c.OutboxRepo = outbox.NewSQLRepository(conn)
	c.UnitOfWork = database.NewUnitOfWork(conn)

	c.Materializer = services.NewLogMaterializer(c.DoseLogRepo, services.HorizonConfig{
		MinFutureDays: cfg.HorizonMinFutureDays,
		HorizonDays:   cfg.HorizonDays,
		Location:      loc,
	}, logger)
	c.Sweeper = services.NewMissedDoseSweeper(c.DoseLogRepo, logger)

	c.CreateMedicationHandler = commands.NewCreateMedicationHandler(c.MedicationRepo, c.Materializer, c.OutboxRepo, c.UnitOfWork)
	c.ChangeScheduleHandler = commands.NewChangeScheduleHandler(c.MedicationRepo, c.Materializer, c.OutboxRepo, c.UnitOfWork)
	c.ArchiveMedicationHandler = commands.NewArchiveMedicationHandler(c.MedicationRepo, c.Materializer, c.OutboxRepo, c.UnitOfWork)
	c.RecordDoseHandler = commands.NewRecordDoseHandler(c.DoseLogRepo, c.OutboxRepo, c.UnitOfWork)
	c.LogAsNeededDoseHandler = commands.NewLogAsNeededDoseHandler(c.MedicationRepo, c.DoseLogRepo, c.OutboxRepo, c.UnitOfWork)
	c.MaterializeLogsHandler = commands.NewMaterializeLogsHandler(
		c.MedicationRepo, c.Materializer, c.OutboxRepo, c.UnitOfWork, cfg.MaterializeConcurrency, logger,
	).WithMetrics(c.Metrics)
	c.SweepMissedDosesHandler = commands.NewSweepMissedDosesHandler(
		c.Sweeper, c.OutboxRepo, c.UnitOfWork, cfg.MissedGracePeriod, logger,
	).WithMetrics(c.Metrics)

	c.ListMedicationsHandler = queries.NewListMedicationsHandler(c.MedicationRepo)
	c.ListDosesHandler = queries.NewListDosesHandler(c.MedicationRepo, c.DoseLogRepo)
	c.GetAdherenceHandler = queries.NewGetAdherenceHandler(c.MedicationRepo, c.DoseLogRepo)

	c.CalendarExporter = calendar.NewExporter(loc)
	if cfg.CalDAVEnabled() {
		c.CalendarPublisher = calendar.NewCalDAVPublisher(
			cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, c.CalendarExporter, logger,
		).WithCalendarPath(cfg.CalDAVCalendarPath)
	}

	return c, nil
}

// Locker returns the Redis locker when Redis is connected, otherwise an
// in-process one.
func (c *Container) Locker() lease.Locker {
	if c.RedisClient != nil {
		return lease.NewRedisLocker(c.RedisClient, "dosely:lease:")
	}
	return lease.NewMemoryLocker()
}

// NewEventPublisher connects to RabbitMQ. In development a broker that is
// down is replaced by a logging noop publisher.
func (c *Container) NewEventPublisher() (eventbus.Publisher, error) {
	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
	if err != nil {
		if c.Config.IsDevelopment() {
			c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
			return eventbus.NewNoopPublisher(c.Logger), nil
		}
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return publisher, nil
}

// NewOutboxProcessor creates the processor that drains the outbox into publisher.
func (c *Container) NewOutboxProcessor(publisher eventbus.Publisher) *outbox.Processor {
	cfg := outbox.DefaultProcessorConfig()
	cfg.PollInterval = c.Config.OutboxPollInterval
	cfg.BatchSize = c.Config.OutboxBatchSize
	cfg.MaxRetries = c.Config.OutboxMaxRetries
	return outbox.NewProcessor(c.OutboxRepo, publisher, cfg, c.Logger).WithMetrics(c.Metrics)
}

// NewJobRunner builds the retrying, leased runner the cron jobs go through.
func (c *Container) NewJobRunner() *workers.JobRunner {
	cfg := workers.DefaultRunnerConfig()
	cfg.MaxAttempts = c.Config.JobMaxAttempts
	cfg.Backoff = c.Config.JobRetryBackoff
	cfg.BreakerFailures = uint32(c.Config.JobBreakerFailures)
	cfg.BreakerTimeout = c.Config.JobBreakerTimeout
	cfg.LeaseTTL = c.Config.JobLeaseTTL
	return workers.NewJobRunner(c.Locker(), cfg, c.Metrics, c.Logger)
}

// NewScheduler registers the materialize and sweep jobs on their cron specs.
func (c *Container) NewScheduler(runner *workers.JobRunner) (*workers.Scheduler, error) {
	scheduler := workers.NewScheduler(runner, c.Location, c.Logger)
	if err := scheduler.Add(c.Config.MaterializeSchedule, workers.MaterializeJob(c.MaterializeLogsHandler)); err != nil {
		return nil, err
	}
	if err := scheduler.Add(c.Config.SweepSchedule, workers.SweepJob(c.SweepMissedDosesHandler)); err != nil {
		return nil, err
	}
	return scheduler, nil
}

// HealthRegistry returns checks for the database and, when connected, Redis.
func (c *Container) HealthRegistry() *observability.HealthRegistry {
	registry := observability.NewHealthRegistry(2 * time.Second)
	registry.Register("database", true, observability.PingCheck(c.DB))
	if c.RedisClient != nil {
		registry.Register("redis", false, func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		})
	}
	return registry
}

// Close releases the database and Redis connections.
func (c *Container) Close() error {
	var errs []error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
