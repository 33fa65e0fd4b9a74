package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starboard-tutoring/pointsledger/config"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTOMATIC BONUSES JOB
// ══════════════════════════════════════════════════════════════════════════════

// BonusRunner runs the automatic bonus rules for one student and returns the
// number of bonuses awarded. The run bonus checks command satisfies it.
type BonusRunner func(ctx context.Context, studentID string) (awarded int, err error)

// AutomaticBonusesStats contains statistics from one pass.
type AutomaticBonusesStats struct {
	StartedAt       time.Time
	Duration        time.Duration
	StudentsChecked int
	StudentsSkipped int
	BonusesAwarded  int
	Failures        int
}

// AutomaticBonusesJob evaluates the automatic bonus rules for every student.
type AutomaticBonusesJob struct {
	repo     ledger.StudentRepository
	run      BonusRunner
	features FeatureGate
	batch    BatchConfig
	logger   *slog.Logger

	lastRunStats atomic.Pointer[AutomaticBonusesStats]
}

// NewAutomaticBonusesJob creates the job. features may be nil.
func NewAutomaticBonusesJob(
	repo ledger.StudentRepository,
	run BonusRunner,
	features FeatureGate,
	batch BatchConfig,
	logger *slog.Logger,
) *AutomaticBonusesJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutomaticBonusesJob{
		repo:     repo,
		run:      run,
		features: features,
		batch:    batch,
		logger:   logger.With("job", "automatic_bonuses"),
	}
}

// Name returns the job name.
func (j *AutomaticBonusesJob) Name() string {
	return "automatic_bonuses"
}

// Description returns a human-readable description.
func (j *AutomaticBonusesJob) Description() string {
	return "Awards streak, clean record, homework and attendance bonuses"
}

// Run executes one pass over all students.
func (j *AutomaticBonusesJob) Run(ctx context.Context) error {
	stats := &AutomaticBonusesStats{StartedAt: time.Now()}
	var awarded, skipped atomic.Int64

	batch, err := forEachStudent(ctx, j.repo, j.batch, func(ctx context.Context, s ledger.StudentProfile) error {
		if j.features != nil && !j.features.IsEnabledFor(config.FeatureAutomaticBonuses, s.ID) {
			skipped.Add(1)
			return nil
		}
		n, err := j.run(ctx, s.ID)
		if err != nil {
			j.logger.Warn("bonus check failed", logger.StudentID(s.ID), logger.Err(err))
			return err
		}
		awarded.Add(int64(n))
		return nil
	})

	stats.Duration = time.Since(stats.StartedAt)
	stats.StudentsSkipped = int(skipped.Load())
	stats.StudentsChecked = int(batch.processed.Load()) - stats.StudentsSkipped
	stats.BonusesAwarded = int(awarded.Load())
	stats.Failures = int(batch.failed.Load())
	j.lastRunStats.Store(stats)

	j.logger.Info("automatic bonuses pass finished",
		"checked", stats.StudentsChecked,
		"skipped", stats.StudentsSkipped,
		"awarded", stats.BonusesAwarded,
		"failures", stats.Failures,
		"duration", stats.Duration.String(),
	)

	if err != nil {
		return fmt.Errorf("automatic_bonuses: %w", err)
	}
	if stats.Failures > 0 {
		return fmt.Errorf("automatic_bonuses: %d of %d students failed", stats.Failures, stats.Failures+stats.StudentsChecked)
	}
	return nil
}

// LastRunStats returns statistics from the last run, or nil.
func (j *AutomaticBonusesJob) LastRunStats() *AutomaticBonusesStats {
	return j.lastRunStats.Load()
}
