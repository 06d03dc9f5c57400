package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/dosely/pkg/observability"
	"github.com/robfig/cron/v3"
)

// Scheduler triggers jobs on cron expressions in the user's timezone.
type Scheduler struct {
	cron    *cron.Cron
	runner  *JobRunner
	logger  *slog.Logger
	entries map[string]cron.EntryID

	mu  sync.Mutex
	ctx context.Context
}

// NewScheduler creates a scheduler. Overlapping runs of the same job are
// skipped rather than queued.
func NewScheduler(runner *JobRunner, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

// Add registers job under a standard five-field cron spec or a descriptor
// such as "@every 15m".
func (s *Scheduler) Add(spec string, job Job) error {
	if _, ok := s.entries[job.Name]; ok {
		return fmt.Errorf("job %s already scheduled", job.Name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.fire(job) })
	if err != nil {
		return fmt.Errorf("schedule %s with %q: %w", job.Name, spec, err)
	}
	s.entries[job.Name] = id
	return nil
}

func (s *Scheduler) fire(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	ctx = observability.WithJob(observability.WithCorrelationID(ctx, ""), job.Name)

	start := time.Now()
	err := s.runner.Run(ctx, job)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "job completed", "duration", time.Since(start))
	case errors.Is(err, ErrJobSkipped):
		s.logger.DebugContext(ctx, "job skipped")
	default:
		s.logger.ErrorContext(ctx, "job failed", "duration", time.Since(start), "error", err)
	}
}

// Start begins firing jobs. Runs receive ctx, so cancelling it aborts
// in-flight work.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// ScheduledJob is a registered job and its next fire time.
type ScheduledJob struct {
	Name string    `json:"name"`
	Next time.Time `json:"next"`
}

// Jobs lists registered jobs ordered by name. Next is zero until Start.
func (s *Scheduler) Jobs() []ScheduledJob {
	out := make([]ScheduledJob, 0, len(s.entries))
	for name, id := range s.entries {
		out = append(out, ScheduledJob{Name: name, Next: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Job names.
const (
	JobMaterialize = "materialize_doses"
	JobSweep       = "sweep_missed_doses"
)

// MaterializeJob tops up every medication's dose horizon. A run in which
// some medications still succeed and no failure is transient reports success
// to the runner; the handler logs the failed medications.
func MaterializeJob(h *commands.MaterializeLogsHandler) Job {
	return Job{
		Name: JobMaterialize,
		Run: func(ctx context.Context) error {
			result, err := h.Handle(ctx, commands.MaterializeLogsCommand{})
			return materializeOutcome(ctx, result, err)
		},
	}
}

// materializeOutcome is the error a materialize run reports to the breaker.
func materializeOutcome(ctx context.Context, result *commands.MaterializeLogsResult, err error) error {
	if err == nil || result == nil || ctx.Err() != nil {
		return err
	}
	if result.Failed < result.Medications && !database.IsTransient(err) {
		return nil
	}
	return err
}

// SweepJob marks overdue pending doses as missed.
func SweepJob(h *commands.SweepMissedDosesHandler) Job {
	return Job{
		Name: JobSweep,
		Run: func(ctx context.Context) error {
			_, err := h.Handle(ctx, commands.SweepMissedDosesCommand{})
			return err
		},
	}
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
