package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func penaltyAt(daysAgo int, points int, waived bool) PenaltyRecord {
	return PenaltyRecord{
		ID:             "pen",
		Type:           PenaltyMissedSession,
		PointsDeducted: points,
		AppliedAt:      testNow.AddDate(0, 0, -daysAgo),
		Waived:         waived,
	}
}

func TestAssessRisk_Healthy(t *testing.T) {
	s := StudentProfile{Stats: Stats{CurrentStreak: 5}}

	r := AssessRisk(s, testNow)

	assert.False(t, r.AtRisk)
	assert.Equal(t, RiskLow, r.Level)
	assert.Equal(t, 0, r.Score)
	assert.Empty(t, r.Reasons)
}

func TestAssessRisk_NoStreakAloneIsLow(t *testing.T) {
	r := AssessRisk(StudentProfile{}, testNow)

	assert.False(t, r.AtRisk)
	assert.Equal(t, RiskLow, r.Level)
	assert.Equal(t, 1, r.Score)
	assert.Equal(t, []string{"No active learning streak"}, r.Reasons)
}

func TestAssessRisk_MediumBoundary(t *testing.T) {
	s := StudentProfile{Stats: Stats{
		PenaltyHistory: []PenaltyRecord{penaltyAt(2, 10, false)},
	}}

	r := AssessRisk(s, testNow)

	assert.True(t, r.AtRisk)
	assert.Equal(t, RiskMedium, r.Level)
	assert.Equal(t, 2, r.Score)
	assert.Equal(t, []string{
		"1 penalties in the last 14 days",
		"No active learning streak",
	}, r.Reasons)
}

func TestAssessRisk_High(t *testing.T) {
	s := StudentProfile{Stats: Stats{
		CurrentStreak: 2,
		PenaltyHistory: []PenaltyRecord{
			penaltyAt(1, 10, false),
			penaltyAt(5, 10, false),
			penaltyAt(13, 10, false),
		},
		MissedSessions: 2,
	}}

	r := AssessRisk(s, testNow)

	assert.True(t, r.AtRisk)
	assert.Equal(t, RiskHigh, r.Level)
	assert.Equal(t, 4, r.Score)
	assert.Equal(t, []string{
		"3 penalties in the last 14 days",
		"Missed 2 sessions",
	}, r.Reasons)
}

func TestAssessRisk_AllSignals(t *testing.T) {
	s := StudentProfile{Stats: Stats{
		PenaltyHistory:     []PenaltyRecord{penaltyAt(1, 5, false), penaltyAt(2, 5, false), penaltyAt(3, 5, false)},
		LowEngagementWeeks: 3,
		MissedSessions:     4,
	}}

	r := AssessRisk(s, testNow)

	assert.Equal(t, 7, r.Score)
	assert.Equal(t, RiskHigh, r.Level)
	assert.Len(t, r.Reasons, 4)
	assert.Equal(t, "Low engagement for 3 weeks", r.Reasons[2])
}

func TestAssessRisk_IgnoresWaivedAndOldPenalties(t *testing.T) {
	s := StudentProfile{Stats: Stats{
		CurrentStreak: 4,
		PenaltyHistory: []PenaltyRecord{
			penaltyAt(1, 10, true),
			penaltyAt(2, 10, true),
			penaltyAt(15, 10, false),
			penaltyAt(20, 10, false),
		},
	}}

	r := AssessRisk(s, testNow)

	assert.False(t, r.AtRisk)
	assert.Equal(t, 0, r.Score)
}

func TestLedger_AssessRiskUsesClock(t *testing.T) {
	s := StudentProfile{Stats: Stats{
		CurrentStreak:      1,
		LowEngagementWeeks: 2,
	}}

	r := newTestLedger(testNow).AssessRisk(s)

	assert.True(t, r.AtRisk)
	assert.Equal(t, RiskMedium, r.Level)
}

func TestTotalPenaltiesInPeriod(t *testing.T) {
	history := []PenaltyRecord{
		penaltyAt(1, 50, false),
		penaltyAt(3, 25, false),
		penaltyAt(4, 40, true),
		penaltyAt(10, 100, false),
	}

	week := TotalPenaltiesInPeriod(history, 7, testNow)
	assert.Equal(t, PeriodTotals{Count: 2, TotalPoints: 75}, week)

	fortnight := TotalPenaltiesInPeriod(history, 14, testNow)
	assert.Equal(t, PeriodTotals{Count: 3, TotalPoints: 175}, fortnight)

	assert.Equal(t, PeriodTotals{}, TotalPenaltiesInPeriod(history, 0, testNow))
	assert.Equal(t, PeriodTotals{}, TotalPenaltiesInPeriod(history, -3, testNow))
	assert.Equal(t, PeriodTotals{}, TotalPenaltiesInPeriod(nil, 7, testNow))
}

func TestTotalPenaltiesInPeriod_WindowIsInclusive(t *testing.T) {
	history := []PenaltyRecord{penaltyAt(7, 30, false)}

	assert.Equal(t, 1, TotalPenaltiesInPeriod(history, 7, testNow).Count)
	assert.Equal(t, 0, TotalPenaltiesInPeriod(history, 6, testNow).Count)
}

func TestAssessRisk_ThreeRecentPenaltiesIsMedium(t *testing.T) {
	s := StudentProfile{Stats: Stats{
		CurrentStreak:      3,
		LowEngagementWeeks: 1,
		MissedSessions:     1,
		PenaltyHistory: []PenaltyRecord{
			penaltyAt(1, 20, false),
			penaltyAt(6, 20, false),
			penaltyAt(12, 20, false),
		},
	}}

	r := AssessRisk(s, testNow)

	assert.True(t, r.AtRisk)
	assert.Equal(t, RiskMedium, r.Level)
	assert.Equal(t, 2, r.Score)
	assert.Equal(t, []string{"3 penalties in the last 14 days"}, r.Reasons)
}
