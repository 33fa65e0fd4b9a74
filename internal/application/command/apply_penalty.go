package command

import (
	"context"
	"time"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/observability"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY PENALTY COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ApplyPenaltyCommand records a penalty against a student.
type ApplyPenaltyCommand struct {
	StudentID string
	Type      ledger.PenaltyType
	AppliedBy ledger.Actor

	// Reason overrides the generated "<label> (Nx offense)" text.
	Reason string
}

// Validate validates the command.
func (c ApplyPenaltyCommand) Validate() error {
	if c.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	if !c.Type.IsValid() {
		return shared.ErrInvalidPenaltyType
	}
	if !c.AppliedBy.IsValid() {
		return shared.ErrInvalidActor
	}
	return nil
}

// ApplyPenaltyResult contains the persisted penalty and the new balance.
type ApplyPenaltyResult struct {
	Penalty ledger.PenaltyRecord
	Balance int
	Student ledger.StudentProfile
}

// ApplyPenaltyHandler handles ApplyPenaltyCommand.
type ApplyPenaltyHandler struct {
	base
}

// NewApplyPenaltyHandler creates a new ApplyPenaltyHandler.
func NewApplyPenaltyHandler(cfg HandlerConfig) *ApplyPenaltyHandler {
	return &ApplyPenaltyHandler{base: newBase(cfg, "apply_penalty")}
}

// Handle executes the command.
func (h *ApplyPenaltyHandler) Handle(ctx context.Context, cmd ApplyPenaltyCommand) (*ApplyPenaltyResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var penalty ledger.PenaltyRecord

	student, _, err := h.update(ctx, "apply_penalty", cmd.StudentID, func(s ledger.StudentProfile) (ledger.StudentProfile, bool, error) {
		var updated ledger.StudentProfile
		updated, penalty = h.ledger.ApplyPenalty(s, cmd.Type, cmd.AppliedBy, cmd.Reason)
		return updated, true, nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordPenalty(string(penalty.Type), string(penalty.AppliedBy), penalty.PointsDeducted)
	h.publish(ctx, shared.NewPenaltyAppliedEvent(
		student.ID, penalty.ID, string(penalty.Type),
		penalty.PointsDeducted, student.Points, string(penalty.AppliedBy),
	))

	h.logger.InfoContext(ctx, "penalty applied",
		logger.StudentID(student.ID),
		logger.PenaltyID(penalty.ID),
		logger.PenaltyType(string(penalty.Type)),
		logger.Points(penalty.PointsDeducted),
		logger.Balance(student.Points),
		logger.Latency(time.Since(start)),
	)

	return &ApplyPenaltyResult{
		Penalty: penalty,
		Balance: student.Points,
		Student: student,
	}, nil
}
