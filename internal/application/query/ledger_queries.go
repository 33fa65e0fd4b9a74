// Package query contains the ledger read operations (CQRS - Queries).
package query

import (
	"context"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
)

// DefaultSummaryDays is the penalty summary window when none is given.
const DefaultSummaryDays = 7

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentQuery loads one profile with its history.
type GetStudentQuery struct {
	StudentID string
}

// GetStudentHandler handles GetStudentQuery.
type GetStudentHandler struct {
	repo ledger.StudentRepository
}

// NewGetStudentHandler creates a new GetStudentHandler.
func NewGetStudentHandler(repo ledger.StudentRepository) *GetStudentHandler {
	return &GetStudentHandler{repo: repo}
}

// Handle executes the query.
func (h *GetStudentHandler) Handle(ctx context.Context, q GetStudentQuery) (ledger.StudentProfile, error) {
	if q.StudentID == "" {
		return ledger.StudentProfile{}, shared.ErrInvalidStudentID
	}
	return h.repo.GetByID(ctx, q.StudentID)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET RISK
// ══════════════════════════════════════════════════════════════════════════════

// GetRiskQuery assesses a student's disengagement risk.
type GetRiskQuery struct {
	StudentID string
}

// RiskDTO is the risk assessment of one student.
type RiskDTO struct {
	StudentID string `json:"student_id"`
	ledger.RiskAssessment
}

// GetRiskHandler handles GetRiskQuery.
type GetRiskHandler struct {
	repo   ledger.StudentRepository
	ledger *ledger.Ledger
}

// NewGetRiskHandler creates a new GetRiskHandler.
func NewGetRiskHandler(repo ledger.StudentRepository, l *ledger.Ledger) *GetRiskHandler {
	return &GetRiskHandler{repo: repo, ledger: l}
}

// Handle executes the query.
func (h *GetRiskHandler) Handle(ctx context.Context, q GetRiskQuery) (*RiskDTO, error) {
	if q.StudentID == "" {
		return nil, shared.ErrInvalidStudentID
	}
	student, err := h.repo.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}
	return &RiskDTO{
		StudentID:      student.ID,
		RiskAssessment: h.ledger.AssessRisk(student),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET PENALTY SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// GetPenaltySummaryQuery totals active penalties in a trailing window.
type GetPenaltySummaryQuery struct {
	StudentID string
	Days      int
}

// Validate validates the query.
func (q GetPenaltySummaryQuery) Validate() error {
	if q.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	if q.Days <= 0 {
		return shared.ErrInvalidPeriod
	}
	return nil
}

// PenaltySummaryDTO is the penalty total of one student.
type PenaltySummaryDTO struct {
	StudentID   string `json:"student_id"`
	Days        int    `json:"days"`
	Count       int    `json:"count"`
	TotalPoints int    `json:"total_points"`
}

// GetPenaltySummaryHandler handles GetPenaltySummaryQuery.
type GetPenaltySummaryHandler struct {
	repo   ledger.StudentRepository
	ledger *ledger.Ledger
}

// NewGetPenaltySummaryHandler creates a new GetPenaltySummaryHandler.
func NewGetPenaltySummaryHandler(repo ledger.StudentRepository, l *ledger.Ledger) *GetPenaltySummaryHandler {
	return &GetPenaltySummaryHandler{repo: repo, ledger: l}
}

// Handle executes the query.
func (h *GetPenaltySummaryHandler) Handle(ctx context.Context, q GetPenaltySummaryQuery) (*PenaltySummaryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	student, err := h.repo.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}
	totals := h.ledger.TotalPenaltiesInPeriod(student.Stats.PenaltyHistory, q.Days)
	return &PenaltySummaryDTO{
		StudentID:   student.ID,
		Days:        q.Days,
		Count:       totals.Count,
		TotalPoints: totals.TotalPoints,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PREVIEW PENALTY
// ══════════════════════════════════════════════════════════════════════════════

// PreviewPenaltyQuery computes a deduction without touching any student.
type PreviewPenaltyQuery struct {
	CurrentPoints int                `json:"current_points"`
	Type          ledger.PenaltyType `json:"type"`
	OffenseCount  int                `json:"offense_count"`
}

// Validate validates the query. Offense counts below one are clamped by the
// calculator, not rejected.
func (q PreviewPenaltyQuery) Validate() error {
	if !q.Type.IsValid() {
		return shared.ErrInvalidPenaltyType
	}
	if q.CurrentPoints < 0 {
		return shared.ErrNegativePoints
	}
	return nil
}

// PenaltyPreviewDTO is the outcome of a preview.
type PenaltyPreviewDTO struct {
	Type          ledger.PenaltyType `json:"type"`
	OffenseCount  int                `json:"offense_count"`
	CurrentPoints int                `json:"current_points"`
	Deduction     int                `json:"deduction"`
	NewBalance    int                `json:"new_balance"`
	Reason        string             `json:"reason"`
}

// PreviewPenaltyHandler handles PreviewPenaltyQuery.
type PreviewPenaltyHandler struct {
	ledger *ledger.Ledger
}

// NewPreviewPenaltyHandler creates a new PreviewPenaltyHandler.
func NewPreviewPenaltyHandler(l *ledger.Ledger) *PreviewPenaltyHandler {
	return &PreviewPenaltyHandler{ledger: l}
}

// Handle executes the query.
func (h *PreviewPenaltyHandler) Handle(_ context.Context, q PreviewPenaltyQuery) (*PenaltyPreviewDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	offense := max(q.OffenseCount, 1)
	deduction := h.ledger.CalculatePenalty(q.CurrentPoints, q.Type, offense)
	return &PenaltyPreviewDTO{
		Type:          q.Type,
		OffenseCount:  offense,
		CurrentPoints: q.CurrentPoints,
		Deduction:     deduction,
		NewBalance:    q.CurrentPoints - deduction,
		Reason:        ledger.PenaltyReason(q.Type, offense),
	}, nil
}
