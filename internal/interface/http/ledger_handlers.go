package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starboard-tutoring/pointsledger/internal/application/command"
	"github.com/starboard-tutoring/pointsledger/internal/application/query"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type applyPenaltyRequest struct {
	Type      ledger.PenaltyType `json:"type"`
	AppliedBy ledger.Actor       `json:"applied_by"`
	Reason    string             `json:"reason,omitempty"`
}

type waivePenaltyRequest struct {
	WaivedBy string `json:"waived_by"`
	Reason   string `json:"reason"`
}

type awardBonusRequest struct {
	Type      ledger.BonusType `json:"type"`
	Points    *int             `json:"points,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	AwardedBy ledger.Actor     `json:"awarded_by"`
}

type penaltyResponse struct {
	Penalty       ledger.PenaltyRecord `json:"penalty"`
	Balance       int                  `json:"balance"`
	AlreadyWaived bool                 `json:"already_waived,omitempty"`
}

type bonusResponse struct {
	Bonus   ledger.BonusRecord `json:"bonus"`
	Balance int                `json:"balance"`
}

type bonusChecksResponse struct {
	Awarded []ledger.BonusRecord `json:"awarded"`
	Balance int                  `json:"balance"`
	Skipped bool                 `json:"skipped,omitempty"`
}

type studentResponse struct {
	ledger.StudentProfile
	ActiveOffenses map[ledger.PenaltyType]int `json:"active_offenses"`
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := s.deps.GetStudent.Handle(r.Context(), query.GetStudentQuery{
		StudentID: chi.URLParam(r, "studentID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	offenses := make(map[ledger.PenaltyType]int)
	for _, t := range ledger.PenaltyTypes() {
		if n := student.ActiveOffenses(t); n > 0 {
			offenses[t] = n
		}
	}
	writeJSON(w, http.StatusOK, studentResponse{StudentProfile: student, ActiveOffenses: offenses})
}

func (s *Server) handleGetRisk(w http.ResponseWriter, r *http.Request) {
	risk, err := s.deps.GetRisk.Handle(r.Context(), query.GetRiskQuery{
		StudentID: chi.URLParam(r, "studentID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, risk)
}

func (s *Server) handlePenaltySummary(w http.ResponseWriter, r *http.Request) {
	days := query.DefaultSummaryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, shared.ErrInvalidPeriod)
			return
		}
		days = n
	}

	summary, err := s.deps.GetPenaltySummary.Handle(r.Context(), query.GetPenaltySummaryQuery{
		StudentID: chi.URLParam(r, "studentID"),
		Days:      days,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePreviewPenalty(w http.ResponseWriter, r *http.Request) {
	var q query.PreviewPenaltyQuery
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	preview, err := s.deps.PreviewPenalty.Handle(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleApplyPenalty(w http.ResponseWriter, r *http.Request) {
	var req applyPenaltyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.ApplyPenalty.Handle(r.Context(), command.ApplyPenaltyCommand{
		StudentID: chi.URLParam(r, "studentID"),
		Type:      req.Type,
		AppliedBy: req.AppliedBy,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, penaltyResponse{Penalty: res.Penalty, Balance: res.Balance})
}

func (s *Server) handleWaivePenalty(w http.ResponseWriter, r *http.Request) {
	var req waivePenaltyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.WaivePenalty.Handle(r.Context(), command.WaivePenaltyCommand{
		StudentID: chi.URLParam(r, "studentID"),
		PenaltyID: chi.URLParam(r, "penaltyID"),
		WaivedBy:  req.WaivedBy,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, penaltyResponse{
		Penalty:       res.Penalty,
		Balance:       res.Balance,
		AlreadyWaived: res.AlreadyWaived,
	})
}

func (s *Server) handleAwardBonus(w http.ResponseWriter, r *http.Request) {
	var req awardBonusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.AwardBonus.Handle(r.Context(), command.AwardBonusCommand{
		StudentID: chi.URLParam(r, "studentID"),
		Type:      req.Type,
		AwardedBy: req.AwardedBy,
		Points:    req.Points,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bonusResponse{Bonus: res.Bonus, Balance: res.Balance})
}

func (s *Server) handleRunBonusChecks(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.RunBonusChecks.Handle(r.Context(), command.RunBonusChecksCommand{
		StudentID: chi.URLParam(r, "studentID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	awarded := res.Awarded
	if awarded == nil {
		awarded = []ledger.BonusRecord{}
	}
	writeJSON(w, http.StatusOK, bonusChecksResponse{
		Awarded: awarded,
		Balance: res.Balance,
		Skipped: res.Skipped,
	})
}
