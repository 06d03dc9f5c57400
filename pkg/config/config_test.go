package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnvVars clears all dosely environment variables.
func clearEnvVars() {
	envVars := []string{
		"APP_ENV", "LOG_LEVEL", "DOSELY_USER_ID", "DOSELY_TIMEZONE",
		"DATABASE_URL", "DATABASE_DRIVER", "SQLITE_PATH",
		"REDIS_URL", "RABBITMQ_URL",
		"HORIZON_MIN_FUTURE_DAYS", "HORIZON_DAYS", "MISSED_GRACE_PERIOD", "MATERIALIZE_CONCURRENCY",
		"MATERIALIZE_SCHEDULE", "SWEEP_SCHEDULE",
		"JOB_MAX_ATTEMPTS", "JOB_RETRY_BACKOFF", "JOB_BREAKER_FAILURES", "JOB_BREAKER_TIMEOUT", "JOB_LEASE_TTL",
		"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_MAX_RETRIES",
		"OUTBOX_STATS_INTERVAL", "OUTBOX_RETENTION_DAYS", "OUTBOX_CLEANUP_INTERVAL",
		"OUTBOX_PROCESSOR_ENABLED", "WORKER_HEALTH_ADDR",
		"CALDAV_URL", "CALDAV_USERNAME", "CALDAV_PASSWORD", "CALDAV_CALENDAR_PATH",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Application defaults
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", cfg.UserID)
	assert.Equal(t, "Local", cfg.Timezone)

	// Local mode is enabled by default when no DATABASE_URL is set
	assert.True(t, cfg.LocalMode)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "dosely.db", filepath.Base(cfg.SQLitePath))
	assert.Empty(t, cfg.RedisURL)

	// Horizon defaults
	assert.Equal(t, 7, cfg.HorizonMinFutureDays)
	assert.Equal(t, 7, cfg.HorizonDays)
	assert.Equal(t, 2*time.Hour, cfg.MissedGracePeriod)
	assert.Equal(t, 4, cfg.MaterializeConcurrency)

	// Job defaults
	assert.Equal(t, "0 * * * *", cfg.MaterializeSchedule)
	assert.Equal(t, "*/5 * * * *", cfg.SweepSchedule)
	assert.Equal(t, 3, cfg.JobMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.JobRetryBackoff)
	assert.Equal(t, 5, cfg.JobBreakerFailures)
	assert.Equal(t, time.Minute, cfg.JobBreakerTimeout)
	assert.Equal(t, 5*time.Minute, cfg.JobLeaseTTL)

	// Outbox defaults
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 5, cfg.OutboxMaxRetries)
	assert.Equal(t, 14, cfg.OutboxRetentionDays)
	assert.True(t, cfg.OutboxProcessorEnabled)
	assert.Equal(t, "0.0.0.0:8081", cfg.WorkerHealthAddr)

	assert.False(t, cfg.CalDAVEnabled())
	assert.True(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("APP_ENV", "production")
	os.Setenv("DATABASE_URL", "postgres://dosely@db:5432/dosely")
	os.Setenv("DOSELY_TIMEZONE", "UTC")
	os.Setenv("HORIZON_MIN_FUTURE_DAYS", "3")
	os.Setenv("HORIZON_DAYS", "14")
	os.Setenv("MISSED_GRACE_PERIOD", "45m")
	os.Setenv("SWEEP_SCHEDULE", "@every 1m")
	os.Setenv("JOB_LEASE_TTL", "30s")
	os.Setenv("OUTBOX_PROCESSOR_ENABLED", "false")
	os.Setenv("CALDAV_URL", "https://dav.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.LocalMode)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 3, cfg.HorizonMinFutureDays)
	assert.Equal(t, 14, cfg.HorizonDays)
	assert.Equal(t, 45*time.Minute, cfg.MissedGracePeriod)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.Equal(t, 30*time.Second, cfg.JobLeaseTTL)
	assert.False(t, cfg.OutboxProcessorEnabled)
	assert.True(t, cfg.CalDAVEnabled())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("HORIZON_DAYS", "a week")
	os.Setenv("MISSED_GRACE_PERIOD", "soon")
	os.Setenv("OUTBOX_PROCESSOR_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.HorizonDays)
	assert.Equal(t, 2*time.Hour, cfg.MissedGracePeriod)
	assert.True(t, cfg.OutboxProcessorEnabled)
}

func TestLoad_ExplicitDriver(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("DATABASE_DRIVER", "sqlite")
	os.Setenv("SQLITE_PATH", "/tmp/meds.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.LocalMode)
	assert.Equal(t, "/tmp/meds.db", cfg.SQLitePath)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Timezone:               "UTC",
			DatabaseDriver:         "sqlite",
			HorizonMinFutureDays:   7,
			HorizonDays:            7,
			MissedGracePeriod:      time.Hour,
			MaterializeConcurrency: 1,
			JobMaxAttempts:         1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero min future days", func(c *Config) { c.HorizonMinFutureDays = 0 }, "HORIZON_MIN_FUTURE_DAYS"},
		{"negative horizon", func(c *Config) { c.HorizonDays = -1 }, "HORIZON_DAYS"},
		{"zero grace", func(c *Config) { c.MissedGracePeriod = 0 }, "MISSED_GRACE_PERIOD"},
		{"zero concurrency", func(c *Config) { c.MaterializeConcurrency = 0 }, "MATERIALIZE_CONCURRENCY"},
		{"zero attempts", func(c *Config) { c.JobMaxAttempts = 0 }, "JOB_MAX_ATTEMPTS"},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "DATABASE_DRIVER"},
		{"postgres without url", func(c *Config) { c.DatabaseDriver = "postgres" }, "DATABASE_URL"},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }, "DOSELY_TIMEZONE"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := &Config{DatabaseDriver: "sqlite"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HORIZON_DAYS")
	assert.Contains(t, err.Error(), "MISSED_GRACE_PERIOD")
}

func TestConfig_LocationLocal(t *testing.T) {
	cfg := &Config{}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}
