package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
)

// ErrNegativeGracePeriod is returned when the sweep grace period is below zero.
var ErrNegativeGracePeriod = errors.New("grace period cannot be negative")

// SweepResult lists the doses a sweep moved to missed.
type SweepResult struct {
	Cutoff time.Time
	Missed []*domain.DoseLog
	// Lost counts doses whose status changed between the read and the update.
	Lost int
}

// MissedDoseSweeper marks pending doses as missed once their grace period is over.
type MissedDoseSweeper struct {
	logs   domain.DoseLogRepository
	logger *slog.Logger
}

// NewMissedDoseSweeper creates a sweeper.
func NewMissedDoseSweeper(logs domain.DoseLogRepository, logger *slog.Logger) *MissedDoseSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &MissedDoseSweeper{logs: logs, logger: logger}
}

// Sweep transitions every pending dose planned at or before now-grace. Each
// update only applies while the stored row is still pending, so a dose the
// user took in the meantime keeps its status.
func (s *MissedDoseSweeper) Sweep(ctx context.Context, now time.Time, grace time.Duration) (*SweepResult, error) {
	if grace < 0 {
		return nil, ErrNegativeGracePeriod
	}

	cutoff := now.Add(-grace)
	pending, err := s.logs.GetPendingLogsBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load pending doses: %w", err)
	}

	result := &SweepResult{Cutoff: cutoff}
	for _, log := range pending {
		if err := log.MarkMissed(); err != nil {
			if errors.Is(err, domain.ErrDoseNotPending) {
				continue
			}
			return nil, err
		}

		updated, err := s.logs.UpdateStatus(ctx, log, domain.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("mark dose %s missed: %w", log.ID(), err)
		}
		if !updated {
			result.Lost++
			continue
		}
		result.Missed = append(result.Missed, log)
	}

	if len(result.Missed) > 0 || result.Lost > 0 {
		s.logger.InfoContext(ctx, "missed doses swept",
			"cutoff", cutoff,
			"missed", len(result.Missed),
			"lost", result.Lost,
		)
	}
	return result, nil
}
