package command

import (
	"context"
	"strings"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/observability"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WAIVE PENALTY COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// WaivePenaltyCommand waives a penalty and restores its points.
type WaivePenaltyCommand struct {
	StudentID string
	PenaltyID string
	WaivedBy  string
	Reason    string
}

// Validate validates the command. The ledger itself accepts an empty reason;
// the service does not.
func (c WaivePenaltyCommand) Validate() error {
	if c.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	if c.PenaltyID == "" {
		return shared.ErrPenaltyNotFound
	}
	if strings.TrimSpace(c.WaivedBy) == "" {
		return shared.ErrEmptyWaivedBy
	}
	if strings.TrimSpace(c.Reason) == "" {
		return shared.ErrEmptyWaiveReason
	}
	return nil
}

// WaivePenaltyResult contains the penalty after the waive.
type WaivePenaltyResult struct {
	Penalty ledger.PenaltyRecord
	Balance int
	Student ledger.StudentProfile

	// AlreadyWaived is set when the penalty had been waived before this call.
	// Nothing was changed in that case.
	AlreadyWaived bool
}

// WaivePenaltyHandler handles WaivePenaltyCommand.
type WaivePenaltyHandler struct {
	base
}

// NewWaivePenaltyHandler creates a new WaivePenaltyHandler.
func NewWaivePenaltyHandler(cfg HandlerConfig) *WaivePenaltyHandler {
	return &WaivePenaltyHandler{base: newBase(cfg, "waive_penalty")}
}

// Handle executes the command. Waiving twice is a no-op.
func (h *WaivePenaltyHandler) Handle(ctx context.Context, cmd WaivePenaltyCommand) (*WaivePenaltyResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	student, changed, err := h.update(ctx, "waive_penalty", cmd.StudentID, func(s ledger.StudentProfile) (ledger.StudentProfile, bool, error) {
		idx := s.FindPenalty(cmd.PenaltyID)
		if idx < 0 {
			return s, false, shared.ErrPenaltyNotFound
		}
		if s.Stats.PenaltyHistory[idx].Waived {
			return s, false, nil
		}
		return h.ledger.WaivePenalty(s, cmd.PenaltyID, cmd.WaivedBy, cmd.Reason), true, nil
	})
	if err != nil {
		return nil, err
	}

	penalty := student.Stats.PenaltyHistory[student.FindPenalty(cmd.PenaltyID)]
	result := &WaivePenaltyResult{
		Penalty:       penalty,
		Balance:       student.Points,
		Student:       student,
		AlreadyWaived: !changed,
	}
	if !changed {
		h.logger.InfoContext(ctx, "penalty already waived",
			logger.StudentID(student.ID),
			logger.PenaltyID(penalty.ID),
		)
		return result, nil
	}

	observability.PenaltiesWaived.WithLabelValues(string(penalty.Type)).Inc()
	h.publish(ctx, shared.NewPenaltyWaivedEvent(
		student.ID, penalty.ID, penalty.PointsDeducted, student.Points, cmd.WaivedBy, cmd.Reason,
	))

	h.logger.InfoContext(ctx, "penalty waived",
		logger.StudentID(student.ID),
		logger.PenaltyID(penalty.ID),
		logger.Points(penalty.PointsDeducted),
		logger.Balance(student.Points),
		"waived_by", cmd.WaivedBy,
	)
	return result, nil
}
