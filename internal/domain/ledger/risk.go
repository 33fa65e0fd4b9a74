package ledger

import (
	"fmt"
	"time"
)

// RiskLevel classifies how likely a student is to disengage.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk model weights and windows.
const (
	riskPenaltyWindowDays = 14
	riskManyPenalties     = 3
	riskEngagementWeeks   = 2
	riskMissedSessions    = 2

	riskMediumScore = 2
	riskHighScore   = 4
)

// RiskAssessment is the result of AssessRisk.
type RiskAssessment struct {
	AtRisk  bool      `json:"at_risk"`
	Level   RiskLevel `json:"risk_level"`
	Score   int       `json:"score"`
	Reasons []string  `json:"reasons"`
}

// AssessRisk scores a student with a weighted heuristic. Reasons are reported
// in a fixed order: recent penalties, streak, engagement, attendance.
func AssessRisk(student StudentProfile, now time.Time) RiskAssessment {
	score := 0
	reasons := make([]string, 0, 4)
	stats := student.Stats

	recent := TotalPenaltiesInPeriod(stats.PenaltyHistory, riskPenaltyWindowDays, now).Count
	switch {
	case recent >= riskManyPenalties:
		score += 2
		reasons = append(reasons, fmt.Sprintf("%d penalties in the last %d days", recent, riskPenaltyWindowDays))
	case recent >= 1:
		score++
		reasons = append(reasons, fmt.Sprintf("%d penalties in the last %d days", recent, riskPenaltyWindowDays))
	}

	if stats.CurrentStreak == 0 {
		score++
		reasons = append(reasons, "No active learning streak")
	}

	if stats.LowEngagementWeeks >= riskEngagementWeeks {
		score += 2
		reasons = append(reasons, fmt.Sprintf("Low engagement for %d weeks", stats.LowEngagementWeeks))
	}

	if stats.MissedSessions >= riskMissedSessions {
		score += 2
		reasons = append(reasons, fmt.Sprintf("Missed %d sessions", stats.MissedSessions))
	}

	level := RiskLow
	switch {
	case score >= riskHighScore:
		level = RiskHigh
	case score >= riskMediumScore:
		level = RiskMedium
	}

	return RiskAssessment{
		AtRisk:  score >= riskMediumScore,
		Level:   level,
		Score:   score,
		Reasons: reasons,
	}
}

// AssessRisk scores the student against the ledger clock.
func (l *Ledger) AssessRisk(student StudentProfile) RiskAssessment {
	return AssessRisk(student, l.now())
}

// PeriodTotals summarizes active penalties inside a window.
type PeriodTotals struct {
	Count       int `json:"count"`
	TotalPoints int `json:"total_points"`
}

// TotalPenaltiesInPeriod counts and sums the non-waived penalties applied in
// the trailing window of days ending at now.
func TotalPenaltiesInPeriod(history []PenaltyRecord, days int, now time.Time) PeriodTotals {
	var totals PeriodTotals
	if days <= 0 {
		return totals
	}

	since := windowStart(now, days)
	for _, p := range history {
		if p.Waived || p.AppliedAt.Before(since) {
			continue
		}
		totals.Count++
		totals.TotalPoints += p.PointsDeducted
	}
	return totals
}

// TotalPenaltiesInPeriod evaluates the window against the ledger clock.
func (l *Ledger) TotalPenaltiesInPeriod(history []PenaltyRecord, days int) PeriodTotals {
	return TotalPenaltiesInPeriod(history, days, l.now())
}

func windowStart(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
