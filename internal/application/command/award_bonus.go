package command

import (
	"context"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/observability"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD BONUS COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// AwardBonusCommand awards a bonus chosen by a tutor or the system.
type AwardBonusCommand struct {
	StudentID string
	Type      ledger.BonusType
	AwardedBy ledger.Actor

	// Points defaults to the configured award for Type when nil.
	Points *int
	Reason string
}

// Validate validates the command.
func (c AwardBonusCommand) Validate() error {
	if c.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	if !c.Type.IsValid() {
		return shared.ErrInvalidBonusType
	}
	if !c.AwardedBy.IsValid() {
		return shared.ErrInvalidActor
	}
	if c.Points != nil && *c.Points < 0 {
		return shared.ErrNegativeBonus
	}
	return nil
}

// AwardBonusResult contains the persisted bonus and the new balance.
type AwardBonusResult struct {
	Bonus   ledger.BonusRecord
	Balance int
	Student ledger.StudentProfile
}

// AwardBonusHandler handles AwardBonusCommand.
type AwardBonusHandler struct {
	base
}

// NewAwardBonusHandler creates a new AwardBonusHandler.
func NewAwardBonusHandler(cfg HandlerConfig) *AwardBonusHandler {
	return &AwardBonusHandler{base: newBase(cfg, "award_bonus")}
}

// Handle executes the command.
func (h *AwardBonusHandler) Handle(ctx context.Context, cmd AwardBonusCommand) (*AwardBonusResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	points := h.ledger.Config().Bonuses.DefaultAward(cmd.Type)
	if cmd.Points != nil {
		points = *cmd.Points
	}

	var bonus ledger.BonusRecord
	student, _, err := h.update(ctx, "award_bonus", cmd.StudentID, func(s ledger.StudentProfile) (ledger.StudentProfile, bool, error) {
		bonus = h.ledger.CreateBonusRecord(cmd.Type, points, cmd.Reason, cmd.AwardedBy)
		return h.ledger.ApplyBonus(s, bonus), true, nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordBonus(string(bonus.Type), observability.SourceManual, bonus.PointsAwarded)
	h.publish(ctx, shared.NewBonusAwardedEvent(
		student.ID, bonus.ID, string(bonus.Type),
		bonus.PointsAwarded, student.Points, string(bonus.AwardedBy),
	))

	h.logger.InfoContext(ctx, "bonus awarded",
		logger.StudentID(student.ID),
		logger.BonusID(bonus.ID),
		logger.BonusType(string(bonus.Type)),
		logger.Points(bonus.PointsAwarded),
		logger.Balance(student.Points),
	)

	return &AwardBonusResult{
		Bonus:   bonus,
		Balance: student.Points,
		Student: student,
	}, nil
}
