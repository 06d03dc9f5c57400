// Package workers runs the background medication jobs: each pass is guarded by
// an optional lease, a circuit breaker and a bounded retry loop.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/lease"
	"github.com/felixgeelhaar/dosely/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrJobSkipped is returned when another worker holds the job's lease.
	ErrJobSkipped = errors.New("job skipped: lease held elsewhere")
	// ErrCircuitOpen is returned while a job's breaker rejects runs.
	ErrCircuitOpen = errors.New("job circuit open")
)

// Job is a named unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunnerConfig configures retries, breaking and leasing.
type RunnerConfig struct {
	// MaxAttempts bounds tries per run, including the first.
	MaxAttempts int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// BreakerFailures consecutive failures open the circuit.
	BreakerFailures uint32
	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration

	// LeaseTTL bounds how long one worker owns a job.
	LeaseTTL time.Duration
}

// DefaultRunnerConfig returns a sensible default configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxAttempts:     3,
		Backoff:         500 * time.Millisecond,
		MaxBackoff:      10 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  time.Minute,
		LeaseTTL:        5 * time.Minute,
	}
}

// JobRunner executes jobs with lease, breaker and retry protection.
type JobRunner struct {
	config   RunnerConfig
	locker   lease.Locker
	breakers map[string]*gobreaker.CircuitBreaker[any]
	mu       sync.Mutex
	metrics  observability.Metrics
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewJobRunner creates a runner. A nil locker runs jobs without leasing.
func NewJobRunner(locker lease.Locker, config RunnerConfig, metrics observability.Metrics, logger *slog.Logger) *JobRunner {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = DefaultRunnerConfig().BreakerFailures
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRunner{
		config:   config,
		locker:   locker,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		metrics:  metrics,
		logger:   logger,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *JobRunner) breaker(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     r.config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.config.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("job circuit state changed",
				"job", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	r.breakers[name] = cb
	return cb
}

// State reports the breaker state for a job that has run at least once.
func (r *JobRunner) State(name string) (gobreaker.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[name]
	if !ok {
		return gobreaker.StateClosed, false
	}
	return cb.State(), true
}

// Run executes job once. Transient database errors are retried with
// exponential backoff up to MaxAttempts; anything else fails immediately.
func (r *JobRunner) Run(ctx context.Context, job Job) error {
	tag := observability.T("job", job.Name)

	if r.locker != nil {
		l, err := r.locker.Acquire(ctx, "job:"+job.Name, r.config.LeaseTTL)
		if errors.Is(err, lease.ErrHeld) {
			r.metrics.Counter(observability.MetricJobSkipped, 1, tag)
			r.logger.Debug("job lease held elsewhere", "job", job.Name)
			return ErrJobSkipped
		}
		if err != nil {
			return fmt.Errorf("acquire lease for %s: %w", job.Name, err)
		}
		defer func() {
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("release job lease", "job", job.Name, "error", err)
			}
		}()
	}

	cb := r.breaker(job.Name)
	backoff := r.config.Backoff
	for attempt := 1; ; attempt++ {
		_, err := cb.Execute(func() (any, error) {
			return nil, job.Run(ctx)
		})
		if err == nil {
			r.metrics.Counter(observability.MetricJobRuns, 1, tag)
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.metrics.Counter(observability.MetricJobSkipped, 1, tag)
			return fmt.Errorf("%w: %s", ErrCircuitOpen, job.Name)
		}
		if !database.IsTransient(err) || attempt >= r.config.MaxAttempts {
			r.metrics.Counter(observability.MetricJobFailures, 1, tag)
			return fmt.Errorf("job %s failed after %d attempt(s): %w", job.Name, attempt, err)
		}

		r.metrics.Counter(observability.MetricJobRetries, 1, tag)
		r.logger.Warn("job failed, retrying",
			"job", job.Name,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if serr := r.sleep(ctx, backoff); serr != nil {
			r.metrics.Counter(observability.MetricJobFailures, 1, tag)
			return errors.Join(err, serr)
		}
		backoff *= 2
		if r.config.MaxBackoff > 0 && backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}
}
