package workers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/application/commands"
	"github.com/felixgeelhaar/dosely/internal/shared/infrastructure/lease"
	"github.com/felixgeelhaar/dosely/pkg/observability"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = fmt.Errorf("query doses: %w", context.DeadlineExceeded)
	errPermanent = errors.New("constraint violated")
)

type fakeSleeper struct {
	waits []time.Duration
	err   error
}

func (s *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return s.err
}

func newTestRunner(t *testing.T, locker lease.Locker, cfg RunnerConfig) (*JobRunner, *observability.InMemoryMetrics, *fakeSleeper) {
	t.Helper()
	metrics := observability.NewInMemoryMetrics()
	runner := NewJobRunner(locker, cfg, metrics, nil)
	sleeper := &fakeSleeper{}
	runner.sleep = sleeper.sleep
	return runner, metrics, sleeper
}

// flakyJob fails with the given errors in order, then succeeds.
func flakyJob(name string, failures ...error) (Job, *int) {
	calls := 0
	return Job{
		Name: name,
		Run: func(context.Context) error {
			calls++
			if calls <= len(failures) {
				return failures[calls-1]
			}
			return nil
		},
	}, &calls
}

func TestJobRunner_Success(t *testing.T) {
	runner, metrics, sleeper := newTestRunner(t, nil, DefaultRunnerConfig())
	job, calls := flakyJob("ok")

	require.NoError(t, runner.Run(context.Background(), job))

	assert.Equal(t, 1, *calls)
	assert.Empty(t, sleeper.waits)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricJobRuns, observability.T("job", "ok")))
}

func TestJobRunner_RetriesTransientErrors(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.MaxAttempts = 4
	cfg.Backoff = 10 * time.Millisecond
	cfg.MaxBackoff = 25 * time.Millisecond
	runner, metrics, sleeper := newTestRunner(t, nil, cfg)
	job, calls := flakyJob("flaky", errTransient, errTransient, errTransient)

	require.NoError(t, runner.Run(context.Background(), job))

	tag := observability.T("job", "flaky")
	assert.Equal(t, 4, *calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}, sleeper.waits)
	assert.Equal(t, int64(3), metrics.GetCounter(observability.MetricJobRetries, tag))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricJobRuns, tag))
	assert.Zero(t, metrics.GetCounter(observability.MetricJobFailures, tag))
}

func TestJobRunner_PermanentErrorIsNotRetried(t *testing.T) {
	runner, metrics, sleeper := newTestRunner(t, nil, DefaultRunnerConfig())
	job, calls := flakyJob("broken", errPermanent)

	err := runner.Run(context.Background(), job)

	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, *calls)
	assert.Empty(t, sleeper.waits)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricJobFailures, observability.T("job", "broken")))
}

func TestJobRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.MaxAttempts = 2
	runner, _, sleeper := newTestRunner(t, nil, cfg)
	job, calls := flakyJob("stuck", errTransient, errTransient, errTransient)

	err := runner.Run(context.Background(), job)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, *calls)
	assert.Len(t, sleeper.waits, 1)
}

func TestJobRunner_StopsRetryingWhenCancelled(t *testing.T) {
	runner, _, sleeper := newTestRunner(t, nil, DefaultRunnerConfig())
	sleeper.err = context.Canceled
	job, calls := flakyJob("cancelled", errTransient, errTransient)

	err := runner.Run(context.Background(), job)

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, *calls)
}

func TestJobRunner_SkipsWhenLeaseHeld(t *testing.T) {
	locker := lease.NewMemoryLocker()
	held, err := locker.Acquire(context.Background(), "job:"+JobSweep, time.Minute)
	require.NoError(t, err)

	runner, metrics, _ := newTestRunner(t, locker, DefaultRunnerConfig())
	job, calls := flakyJob(JobSweep)

	err = runner.Run(context.Background(), job)
	assert.ErrorIs(t, err, ErrJobSkipped)
	assert.Zero(t, *calls)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricJobSkipped, observability.T("job", JobSweep)))

	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, runner.Run(context.Background(), job))
	assert.Equal(t, 1, *calls)
}

func TestJobRunner_ReleasesLeaseAfterRun(t *testing.T) {
	locker := lease.NewMemoryLocker()
	runner, _, _ := newTestRunner(t, locker, DefaultRunnerConfig())
	job, _ := flakyJob(JobMaterialize, errPermanent)

	assert.Error(t, runner.Run(context.Background(), job))

	l, err := locker.Acquire(context.Background(), "job:"+JobMaterialize, time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Release(context.Background()))
}

func TestJobRunner_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.MaxAttempts = 1
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour
	runner, metrics, _ := newTestRunner(t, nil, cfg)
	job, calls := flakyJob("tripping", errPermanent, errPermanent, errPermanent)

	assert.ErrorIs(t, runner.Run(context.Background(), job), errPermanent)
	assert.ErrorIs(t, runner.Run(context.Background(), job), errPermanent)

	err := runner.Run(context.Background(), job)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, *calls)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricJobSkipped, observability.T("job", "tripping")))

	state, ok := runner.State("tripping")
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateOpen, state)
}

func TestJobRunner_PartialMaterializeFailureKeepsCircuitClosed(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.MaxAttempts = 1
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour
	runner, metrics, _ := newTestRunner(t, nil, cfg)

	calls := 0
	job := Job{
		Name: JobMaterialize,
		Run: func(ctx context.Context) error {
			calls++
			result := &commands.MaterializeLogsResult{Medications: 3, Failed: 1, Inserted: 4}
			return materializeOutcome(ctx, result, fmt.Errorf("medication x: %w", errPermanent))
		},
	}

	for i := 0; i < 4; i++ {
		require.NoError(t, runner.Run(context.Background(), job))
	}
	assert.Equal(t, 4, calls)
	assert.Zero(t, metrics.GetCounter(observability.MetricJobFailures, observability.T("job", JobMaterialize)))

	state, ok := runner.State(JobMaterialize)
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateClosed, state)
}

func TestMaterializeOutcome(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		ctx    context.Context
		result *commands.MaterializeLogsResult
		err    error
		want   error
	}{
		{"success", context.Background(), &commands.MaterializeLogsResult{Medications: 2}, nil, nil},
		{"one of several fails", context.Background(), &commands.MaterializeLogsResult{Medications: 2, Failed: 1}, errPermanent, nil},
		{"every medication fails", context.Background(), &commands.MaterializeLogsResult{Medications: 2, Failed: 2}, errPermanent, errPermanent},
		{"transient failure", context.Background(), &commands.MaterializeLogsResult{Medications: 2, Failed: 1}, errTransient, context.DeadlineExceeded},
		{"no result", context.Background(), nil, errPermanent, errPermanent},
		{"cancelled", cancelled, &commands.MaterializeLogsResult{Medications: 2, Failed: 1}, errPermanent, errPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := materializeOutcome(tt.ctx, tt.result, tt.err)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJobRunner_StateUnknownJob(t *testing.T) {
	runner, _, _ := newTestRunner(t, nil, DefaultRunnerConfig())

	state, ok := runner.State("never-ran")
	assert.False(t, ok)
	assert.Equal(t, gobreaker.StateClosed, state)
}
