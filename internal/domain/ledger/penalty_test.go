package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculatePenalty_DefaultTiers(t *testing.T) {
	cfg := DefaultPenaltyConfig()

	tests := []struct {
		name    string
		points  int
		penalty PenaltyType
		offense int
		want    int
	}{
		{"missed session first offense", 1000, PenaltyMissedSession, 1, 50},
		{"missed session repeat", 1000, PenaltyMissedSession, 2, 100},
		{"missed session repeat capped", 5000, PenaltyMissedSession, 4, 100},
		{"late homework first", 1000, PenaltyLateHomework, 1, 50},
		{"late homework second capped", 1000, PenaltyLateHomework, 2, 75},
		{"late homework third capped", 1000, PenaltyLateHomework, 3, 100},
		{"late homework second uncapped", 500, PenaltyLateHomework, 2, 40},
		{"no homework first", 400, PenaltyNoHomework, 1, 32},
		{"no homework repeat capped", 2000, PenaltyNoHomework, 2, 150},
		{"low engagement first", 500, PenaltyLowEngagement, 1, 15},
		{"low engagement repeat minimum", 100, PenaltyLowEngagement, 2, 20},
		{"constellation decay minimum", 100, PenaltyConstellationDecay, 1, 5},
		{"constellation decay ignores offense", 1000, PenaltyConstellationDecay, 9, 20},
		{"streak break first", 1000, PenaltyStreakBreak, 1, 20},
		{"streak break second", 1000, PenaltyStreakBreak, 2, 30},
		{"streak break growth stops", 1000, PenaltyStreakBreak, 7, 30},
		{"minimum never exceeds balance", 10, PenaltyMissedSession, 1, 10},
		{"small balance", 3, PenaltyNoHomework, 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculatePenalty(tt.points, tt.penalty, tt.offense, cfg))
		})
	}
}

func TestCalculatePenalty_EmptyBalance(t *testing.T) {
	cfg := DefaultPenaltyConfig()
	for _, pt := range PenaltyTypes() {
		assert.Equal(t, 0, CalculatePenalty(0, pt, 1, cfg), pt)
		assert.Equal(t, 0, CalculatePenalty(-25, pt, 3, cfg), pt)
	}
}

func TestCalculatePenalty_UnknownTypeDeductsNothing(t *testing.T) {
	assert.Equal(t, 0, CalculatePenalty(1000, PenaltyType("talking-in-class"), 1, DefaultPenaltyConfig()))

	_, ok := TierFor(PenaltyType("talking-in-class"), 1, DefaultPenaltyConfig())
	assert.False(t, ok)
}

func TestCalculatePenalty_NonPositiveOffenseIsFirstOffense(t *testing.T) {
	cfg := DefaultPenaltyConfig()
	for _, pt := range PenaltyTypes() {
		first := CalculatePenalty(1000, pt, 1, cfg)
		assert.Equal(t, first, CalculatePenalty(1000, pt, 0, cfg), pt)
		assert.Equal(t, first, CalculatePenalty(1000, pt, -4, cfg), pt)
	}
}

func TestCalculatePenalty_Bounds(t *testing.T) {
	cfg := DefaultPenaltyConfig()
	for _, pt := range PenaltyTypes() {
		for points := 0; points <= 3000; points += 37 {
			for offense := 1; offense <= 5; offense++ {
				d := CalculatePenalty(points, pt, offense, cfg)
				assert.GreaterOrEqual(t, d, 0)
				assert.LessOrEqual(t, d, points)
			}
		}
	}
}

func TestCalculatePenalty_Deterministic(t *testing.T) {
	cfg := DefaultPenaltyConfig()
	for _, pt := range PenaltyTypes() {
		a := CalculatePenalty(1234, pt, 2, cfg)
		b := CalculatePenalty(1234, pt, 2, cfg)
		assert.Equal(t, a, b)
	}
}

func TestCalculatePenalty_MissedSessionEscalates(t *testing.T) {
	cfg := DefaultPenaltyConfig()
	for points := 100; points <= 3000; points += 100 {
		first := CalculatePenalty(points, PenaltyMissedSession, 1, cfg)
		repeat := CalculatePenalty(points, PenaltyMissedSession, 2, cfg)
		assert.GreaterOrEqual(t, repeat, first, "points=%d", points)
	}
}

func TestCalculatePenalty_StreakBreakPercentageCap(t *testing.T) {
	cfg := DefaultPenaltyConfig()
	cfg.StreakBreak.MaxPercentage = 2

	// 1% base + 2 would be 3%, the cap holds it at 2%.
	assert.Equal(t, 20, CalculatePenalty(1000, PenaltyStreakBreak, 2, cfg))

	tier, ok := TierFor(PenaltyStreakBreak, 5, cfg)
	assert.True(t, ok)
	assert.Equal(t, 2.0, tier.Percentage)
}

func TestTier_Deduction(t *testing.T) {
	tier := Tier{Percentage: 5, MinPoints: 10, MaxPoints: 50}

	assert.Equal(t, 10, tier.Deduction(100))
	assert.Equal(t, 25, tier.Deduction(500))
	assert.Equal(t, 50, tier.Deduction(5000))
	assert.Equal(t, 7, tier.Deduction(7))
	assert.Equal(t, 0, tier.Deduction(0))
}

func TestTier_DeductionRoundsHalfAwayFromZero(t *testing.T) {
	tier := Tier{Percentage: 5, MinPoints: 0, MaxPoints: 100}

	assert.Equal(t, 1, tier.Deduction(10)) // 0.5
	assert.Equal(t, 2, tier.Deduction(30)) // 1.5
	assert.Equal(t, 1, tier.Deduction(29)) // 1.45
}

func TestPenaltyConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultPenaltyConfig().Validate())

	cfg := DefaultPenaltyConfig()
	cfg.NoHomework.Repeat.MinPoints = 500
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no_homework.repeat")

	cfg = DefaultPenaltyConfig()
	cfg.StreakBreak.BasePercentage = -1
	assert.Error(t, cfg.Validate())
}

func TestPenaltyReason(t *testing.T) {
	assert.Equal(t, "Missed tutoring session", PenaltyReason(PenaltyMissedSession, 1))
	assert.Equal(t, "Missed tutoring session (2x offense)", PenaltyReason(PenaltyMissedSession, 2))
	assert.Equal(t, "Late homework submission (3x offense)", PenaltyReason(PenaltyLateHomework, 3))
}
