package ledger

import (
	"fmt"
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// PENALTY CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Tier is one {percentage, min, max} deduction rule.
type Tier struct {
	Percentage float64 `toml:"percentage" json:"percentage"`
	MinPoints  int     `toml:"min_points" json:"min_points"`
	MaxPoints  int     `toml:"max_points" json:"max_points"`
}

// Deduction applies the tier to a balance: round, clamp to [min, max],
// then never take more than the student has.
func (t Tier) Deduction(currentPoints int) int {
	if currentPoints <= 0 {
		return 0
	}

	raw := int(math.Round(float64(currentPoints) * t.Percentage / 100))

	bounded := raw
	if bounded > t.MaxPoints {
		bounded = t.MaxPoints
	}
	if bounded < t.MinPoints {
		bounded = t.MinPoints
	}

	if bounded > currentPoints {
		bounded = currentPoints
	}
	if bounded < 0 {
		bounded = 0
	}
	return bounded
}

func (t Tier) validate(name string) error {
	if t.Percentage < 0 {
		return fmt.Errorf("%s: percentage must not be negative", name)
	}
	if t.MinPoints < 0 || t.MaxPoints < 0 {
		return fmt.Errorf("%s: min/max points must not be negative", name)
	}
	if t.MinPoints > t.MaxPoints {
		return fmt.Errorf("%s: min_points %d exceeds max_points %d", name, t.MinPoints, t.MaxPoints)
	}
	return nil
}

// StreakBreakRule grows the percentage with repetition up to MaxPercentage.
type StreakBreakRule struct {
	BasePercentage float64 `toml:"base_percentage" json:"base_percentage"`
	MaxPercentage  float64 `toml:"max_percentage" json:"max_percentage"`
	MinPoints      int     `toml:"min_points" json:"min_points"`
	MaxPoints      int     `toml:"max_points" json:"max_points"`
}

// EscalatingRule has a first-offense tier and a tier for every repeat.
type EscalatingRule struct {
	First  Tier `toml:"first" json:"first"`
	Repeat Tier `toml:"repeat" json:"repeat"`
}

// LateHomeworkRule distinguishes a second offense before the repeat tier.
type LateHomeworkRule struct {
	First  Tier `toml:"first" json:"first"`
	Second Tier `toml:"second" json:"second"`
	Repeat Tier `toml:"repeat" json:"repeat"`
}

// PenaltyConfig holds the recognized options of every penalty kind.
type PenaltyConfig struct {
	StreakBreak        StreakBreakRule  `toml:"streak_break" json:"streak_break"`
	MissedSession      EscalatingRule   `toml:"missed_session" json:"missed_session"`
	LateHomework       LateHomeworkRule `toml:"late_homework" json:"late_homework"`
	NoHomework         EscalatingRule   `toml:"no_homework" json:"no_homework"`
	LowEngagement      EscalatingRule   `toml:"low_engagement" json:"low_engagement"`
	ConstellationDecay Tier             `toml:"constellation_decay" json:"constellation_decay"`
}

// DefaultPenaltyConfig returns the production defaults.
func DefaultPenaltyConfig() PenaltyConfig {
	return PenaltyConfig{
		StreakBreak: StreakBreakRule{
			BasePercentage: 1,
			MaxPercentage:  5,
			MinPoints:      5,
			MaxPoints:      50,
		},
		MissedSession: EscalatingRule{
			First:  Tier{Percentage: 5, MinPoints: 10, MaxPoints: 50},
			Repeat: Tier{Percentage: 10, MinPoints: 25, MaxPoints: 100},
		},
		LateHomework: LateHomeworkRule{
			First:  Tier{Percentage: 5, MinPoints: 20, MaxPoints: 50},
			Second: Tier{Percentage: 8, MinPoints: 30, MaxPoints: 75},
			Repeat: Tier{Percentage: 12, MinPoints: 40, MaxPoints: 100},
		},
		NoHomework: EscalatingRule{
			First:  Tier{Percentage: 8, MinPoints: 25, MaxPoints: 75},
			Repeat: Tier{Percentage: 15, MinPoints: 50, MaxPoints: 150},
		},
		LowEngagement: EscalatingRule{
			First:  Tier{Percentage: 3, MinPoints: 10, MaxPoints: 30},
			Repeat: Tier{Percentage: 6, MinPoints: 20, MaxPoints: 60},
		},
		ConstellationDecay: Tier{Percentage: 2, MinPoints: 5, MaxPoints: 25},
	}
}

// Validate checks that every tier is internally consistent.
func (c PenaltyConfig) Validate() error {
	sb := c.StreakBreak
	if sb.BasePercentage < 0 || sb.MaxPercentage < 0 {
		return fmt.Errorf("streak_break: percentages must not be negative")
	}
	if sb.MinPoints < 0 || sb.MinPoints > sb.MaxPoints {
		return fmt.Errorf("streak_break: invalid min/max points %d/%d", sb.MinPoints, sb.MaxPoints)
	}

	checks := []struct {
		name string
		tier Tier
	}{
		{"missed_session.first", c.MissedSession.First},
		{"missed_session.repeat", c.MissedSession.Repeat},
		{"late_homework.first", c.LateHomework.First},
		{"late_homework.second", c.LateHomework.Second},
		{"late_homework.repeat", c.LateHomework.Repeat},
		{"no_homework.first", c.NoHomework.First},
		{"no_homework.repeat", c.NoHomework.Repeat},
		{"low_engagement.first", c.LowEngagement.First},
		{"low_engagement.repeat", c.LowEngagement.Repeat},
		{"constellation_decay", c.ConstellationDecay},
	}
	for _, chk := range checks {
		if err := chk.tier.validate(chk.name); err != nil {
			return err
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TIER SELECTION
// ══════════════════════════════════════════════════════════════════════════════

// tierFunc picks the deduction tier of one penalty kind for an offense count.
type tierFunc func(cfg PenaltyConfig, offenseCount int) Tier

var tierSelectors = map[PenaltyType]tierFunc{
	PenaltyStreakBreak: func(cfg PenaltyConfig, n int) Tier {
		r := cfg.StreakBreak
		pct := r.BasePercentage + float64(min(n, 2))
		if pct > r.MaxPercentage {
			pct = r.MaxPercentage
		}
		return Tier{Percentage: pct, MinPoints: r.MinPoints, MaxPoints: r.MaxPoints}
	},
	PenaltyMissedSession: func(cfg PenaltyConfig, n int) Tier {
		return cfg.MissedSession.pick(n)
	},
	PenaltyLateHomework: func(cfg PenaltyConfig, n int) Tier {
		switch {
		case n <= 1:
			return cfg.LateHomework.First
		case n == 2:
			return cfg.LateHomework.Second
		default:
			return cfg.LateHomework.Repeat
		}
	},
	PenaltyNoHomework: func(cfg PenaltyConfig, n int) Tier {
		return cfg.NoHomework.pick(n)
	},
	PenaltyLowEngagement: func(cfg PenaltyConfig, n int) Tier {
		return cfg.LowEngagement.pick(n)
	},
	PenaltyConstellationDecay: func(cfg PenaltyConfig, _ int) Tier {
		return cfg.ConstellationDecay
	},
}

func (r EscalatingRule) pick(offenseCount int) Tier {
	if offenseCount <= 1 {
		return r.First
	}
	return r.Repeat
}

// TierFor returns the tier used for the given kind and offense count.
// ok is false for unknown kinds.
func TierFor(t PenaltyType, offenseCount int, cfg PenaltyConfig) (tier Tier, ok bool) {
	selectTier, ok := tierSelectors[t]
	if !ok {
		return Tier{}, false
	}
	return selectTier(cfg, normalizeOffenseCount(offenseCount)), true
}

// CalculatePenalty returns the number of points to deduct. The result is never
// negative and never larger than currentPoints. Unknown kinds deduct nothing.
func CalculatePenalty(currentPoints int, t PenaltyType, offenseCount int, cfg PenaltyConfig) int {
	tier, ok := TierFor(t, offenseCount, cfg)
	if !ok {
		return 0
	}
	return tier.Deduction(currentPoints)
}

// normalizeOffenseCount treats zero and negative counts as a first offense.
func normalizeOffenseCount(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
