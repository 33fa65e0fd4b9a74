package command

import (
	"context"

	"github.com/starboard-tutoring/pointsledger/config"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/observability"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN BONUS CHECKS COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RunBonusChecksCommand evaluates the automatic bonus rules for one student
// and applies every bonus that fires.
type RunBonusChecksCommand struct {
	StudentID string
}

// Validate validates the command.
func (c RunBonusChecksCommand) Validate() error {
	if c.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	return nil
}

// RunBonusChecksResult lists the bonuses awarded in this pass.
type RunBonusChecksResult struct {
	Awarded []ledger.BonusRecord
	Balance int
	Student ledger.StudentProfile

	// Skipped is set when automatic bonuses are disabled for the student.
	Skipped bool
}

// RunBonusChecksHandler handles RunBonusChecksCommand.
type RunBonusChecksHandler struct {
	base
}

// NewRunBonusChecksHandler creates a new RunBonusChecksHandler.
func NewRunBonusChecksHandler(cfg HandlerConfig) *RunBonusChecksHandler {
	return &RunBonusChecksHandler{base: newBase(cfg, "run_bonus_checks")}
}

// Handle executes the command.
func (h *RunBonusChecksHandler) Handle(ctx context.Context, cmd RunBonusChecksCommand) (*RunBonusChecksResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if !h.enabled(config.FeatureAutomaticBonuses, cmd.StudentID) {
		student, err := h.repo.GetByID(ctx, cmd.StudentID)
		if err != nil {
			return nil, err
		}
		return &RunBonusChecksResult{
			Awarded: []ledger.BonusRecord{},
			Balance: student.Points,
			Student: student,
			Skipped: true,
		}, nil
	}

	var awarded []ledger.BonusRecord
	student, _, err := h.update(ctx, "run_bonus_checks", cmd.StudentID, func(s ledger.StudentProfile) (ledger.StudentProfile, bool, error) {
		var updated ledger.StudentProfile
		updated, awarded = h.ledger.RunAndApplyAutomaticBonuses(s)
		return updated, len(awarded) > 0, nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]shared.Event, 0, len(awarded))
	for _, b := range awarded {
		observability.RecordBonus(string(b.Type), observability.SourceAutomatic, b.PointsAwarded)
		events = append(events, shared.NewBonusAwardedEvent(
			student.ID, b.ID, string(b.Type), b.PointsAwarded, student.Points, string(b.AwardedBy),
		).AsAutomatic())
	}
	h.publish(ctx, events...)

	if len(awarded) > 0 {
		h.logger.InfoContext(ctx, "automatic bonuses awarded",
			logger.StudentID(student.ID),
			"count", len(awarded),
			logger.Balance(student.Points),
		)
	}

	if awarded == nil {
		awarded = []ledger.BonusRecord{}
	}
	return &RunBonusChecksResult{
		Awarded: awarded,
		Balance: student.Points,
		Student: student,
	}, nil
}
