package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starboard-tutoring/pointsledger/config"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/observability"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DETECT AT RISK JOB
// ══════════════════════════════════════════════════════════════════════════════

// DetectAtRiskStats contains statistics from one pass.
type DetectAtRiskStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Assessed  int
	ByLevel   map[ledger.RiskLevel]int
	Published int
}

// DetectAtRiskJob assesses every student, publishes an event for each one at
// risk and refreshes the at-risk gauges.
type DetectAtRiskJob struct {
	repo      ledger.StudentRepository
	ledger    *ledger.Ledger
	publisher shared.EventPublisher
	features  FeatureGate
	batch     BatchConfig
	logger    *slog.Logger

	lastRunStats atomic.Pointer[DetectAtRiskStats]
}

// NewDetectAtRiskJob creates the job. publisher and features may be nil.
func NewDetectAtRiskJob(
	repo ledger.StudentRepository,
	l *ledger.Ledger,
	publisher shared.EventPublisher,
	features FeatureGate,
	batch BatchConfig,
	logger *slog.Logger,
) *DetectAtRiskJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectAtRiskJob{
		repo:      repo,
		ledger:    l,
		publisher: publisher,
		features:  features,
		batch:     batch,
		logger:    logger.With("job", "detect_at_risk"),
	}
}

// Name returns the job name.
func (j *DetectAtRiskJob) Name() string {
	return "detect_at_risk"
}

// Description returns a human-readable description.
func (j *DetectAtRiskJob) Description() string {
	return "Scores students for disengagement risk and alerts on medium and high"
}

// Run executes one pass over all students.
func (j *DetectAtRiskJob) Run(ctx context.Context) error {
	stats := &DetectAtRiskStats{
		StartedAt: time.Now(),
		ByLevel:   make(map[ledger.RiskLevel]int),
	}
	var (
		mu        sync.Mutex
		published atomic.Int64
	)

	batch, err := forEachStudent(ctx, j.repo, j.batch, func(_ context.Context, s ledger.StudentProfile) error {
		if j.features != nil && !j.features.IsEnabledFor(config.FeatureRiskDetection, s.ID) {
			return nil
		}

		risk := j.ledger.AssessRisk(s)
		mu.Lock()
		stats.ByLevel[risk.Level]++
		mu.Unlock()

		if !risk.AtRisk || j.publisher == nil {
			return nil
		}
		event := shared.NewStudentAtRiskEvent(s.ID, string(risk.Level), risk.Score, risk.Reasons)
		if err := j.publisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish at-risk event", logger.StudentID(s.ID), logger.Err(err))
			return err
		}
		published.Add(1)
		return nil
	})

	stats.Duration = time.Since(stats.StartedAt)
	stats.Published = int(published.Load())
	for _, n := range stats.ByLevel {
		stats.Assessed += n
	}
	j.lastRunStats.Store(stats)

	if err != nil {
		return fmt.Errorf("detect_at_risk: %w", err)
	}

	// Only a complete pass replaces the gauges.
	levels := make(map[string]int, len(stats.ByLevel))
	for level, n := range stats.ByLevel {
		levels[string(level)] = n
	}
	observability.SetRiskLevels(levels)

	j.logger.Info("risk detection pass finished",
		"assessed", stats.Assessed,
		"high", stats.ByLevel[ledger.RiskHigh],
		"medium", stats.ByLevel[ledger.RiskMedium],
		"published", stats.Published,
		"duration", stats.Duration.String(),
	)

	if failed := batch.failed.Load(); failed > 0 {
		return fmt.Errorf("detect_at_risk: %d events could not be published", failed)
	}
	return nil
}

// LastRunStats returns statistics from the last run, or nil.
func (j *DetectAtRiskJob) LastRunStats() *DetectAtRiskStats {
	return j.lastRunStats.Load()
}
