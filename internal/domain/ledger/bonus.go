package ledger

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// BONUS CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BonusDefaults is the default award per bonus kind.
type BonusDefaults struct {
	PerfectSession  int `toml:"perfect_session" json:"perfect_session"`
	StreakMilestone int `toml:"streak_milestone" json:"streak_milestone"`
	CleanWeek       int `toml:"clean_week" json:"clean_week"`
	CleanMonth      int `toml:"clean_month" json:"clean_month"`
	HomeworkStreak  int `toml:"homework_streak" json:"homework_streak"`
	Improvement     int `toml:"improvement_bonus" json:"improvement_bonus"`
	Attendance      int `toml:"attendance_bonus" json:"attendance_bonus"`
}

// BonusConfig holds award amounts and the thresholds of the automatic rules.
type BonusConfig struct {
	Defaults BonusDefaults `toml:"defaults" json:"defaults"`

	// StreakMilestones are the streak lengths (days) that earn a milestone bonus.
	StreakMilestones []int `toml:"streak_milestones" json:"streak_milestones"`

	// HomeworkStreakEvery awards a bonus at every multiple of this many on-time homeworks.
	HomeworkStreakEvery int `toml:"homework_streak_every" json:"homework_streak_every"`

	// AttendanceThreshold is the sessions per month needed for the attendance bonus.
	AttendanceThreshold int `toml:"attendance_threshold" json:"attendance_threshold"`

	CleanWeekDays  int `toml:"clean_week_days" json:"clean_week_days"`
	CleanMonthDays int `toml:"clean_month_days" json:"clean_month_days"`
}

// DefaultBonusConfig returns the production defaults.
func DefaultBonusConfig() BonusConfig {
	return BonusConfig{
		Defaults: BonusDefaults{
			PerfectSession:  25,
			StreakMilestone: 50,
			CleanWeek:       30,
			CleanMonth:      100,
			HomeworkStreak:  40,
			Improvement:     35,
			Attendance:      20,
		},
		StreakMilestones:    []int{7, 30, 100},
		HomeworkStreakEvery: 5,
		AttendanceThreshold: 8,
		CleanWeekDays:       7,
		CleanMonthDays:      30,
	}
}

// DefaultAward returns the configured award for t, or 0 for unknown kinds.
func (c BonusConfig) DefaultAward(t BonusType) int {
	d := c.Defaults
	switch t {
	case BonusPerfectSession:
		return d.PerfectSession
	case BonusStreakMilestone:
		return d.StreakMilestone
	case BonusCleanWeek:
		return d.CleanWeek
	case BonusCleanMonth:
		return d.CleanMonth
	case BonusHomeworkStreak:
		return d.HomeworkStreak
	case BonusImprovement:
		return d.Improvement
	case BonusAttendance:
		return d.Attendance
	default:
		return 0
	}
}

// Validate checks the thresholds and awards.
func (c BonusConfig) Validate() error {
	for _, t := range BonusTypes() {
		if c.DefaultAward(t) < 0 {
			return fmt.Errorf("bonus %s: default award must not be negative", t)
		}
	}
	for _, m := range c.StreakMilestones {
		if m <= 0 {
			return fmt.Errorf("streak_milestones: %d is not a positive day count", m)
		}
	}
	if c.HomeworkStreakEvery <= 0 {
		return fmt.Errorf("homework_streak_every must be positive")
	}
	if c.CleanWeekDays <= 0 || c.CleanMonthDays <= 0 {
		return fmt.Errorf("clean_week_days and clean_month_days must be positive")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// CreateBonusRecord builds a bonus record. Points are not bounds checked.
// An empty reason falls back to the label of the bonus kind.
func (l *Ledger) CreateBonusRecord(t BonusType, points int, reason string, awardedBy Actor) BonusRecord {
	if reason == "" {
		reason = t.Label()
	}
	return BonusRecord{
		ID:            l.newID("bon"),
		Type:          t,
		PointsAwarded: points,
		Reason:        reason,
		AwardedAt:     l.now(),
		AwardedBy:     awardedBy,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTOMATIC BONUS RULES
// ══════════════════════════════════════════════════════════════════════════════

// RunAutomaticBonusChecks evaluates every automatic rule against the student's
// stats and returns the bonuses that fire. Rules are independent; any subset may
// fire in one pass. Nothing is applied to the student.
func (l *Ledger) RunAutomaticBonusChecks(student StudentProfile) []BonusRecord {
	cfg := l.cfg.Bonuses
	now := l.now()
	stats := student.Stats

	var awards []BonusRecord
	award := func(t BonusType, reason string) {
		awards = append(awards, l.CreateBonusRecord(t, cfg.DefaultAward(t), reason, ActorSystem))
	}

	// Streak milestones
	for _, milestone := range cfg.StreakMilestones {
		if stats.CurrentStreak != milestone {
			continue
		}
		reason := fmt.Sprintf("%d-day learning streak", milestone)
		if !hasBonusSince(stats.BonusHistory, BonusStreakMilestone, reason, windowStart(now, milestone)) {
			award(BonusStreakMilestone, reason)
		}
	}

	// Clean week / clean month
	cleanRules := []struct {
		t    BonusType
		days int
	}{
		{BonusCleanWeek, cfg.CleanWeekDays},
		{BonusCleanMonth, cfg.CleanMonthDays},
	}
	for _, rule := range cleanRules {
		since := windowStart(now, rule.days)
		if student.CreatedAt.IsZero() || student.CreatedAt.After(since) {
			continue
		}
		if TotalPenaltiesInPeriod(stats.PenaltyHistory, rule.days, now).Count > 0 {
			continue
		}
		if hasBonusSince(stats.BonusHistory, rule.t, "", since) {
			continue
		}
		award(rule.t, rule.t.Label())
	}

	// Homework streak
	if every := cfg.HomeworkStreakEvery; every > 0 &&
		stats.HomeworkStreak >= every && stats.HomeworkStreak%every == 0 {
		if !hasBonusSince(stats.BonusHistory, BonusHomeworkStreak, "", windowStart(now, 7)) {
			award(BonusHomeworkStreak, fmt.Sprintf("%d homework assignments on time", stats.HomeworkStreak))
		}
	}

	// Attendance
	if cfg.AttendanceThreshold > 0 &&
		stats.SessionsAttendedThisMonth >= cfg.AttendanceThreshold && stats.MissedSessions == 0 {
		if !hasBonusSince(stats.BonusHistory, BonusAttendance, "", windowStart(now, 30)) {
			award(BonusAttendance, fmt.Sprintf("Attended %d sessions this month", stats.SessionsAttendedThisMonth))
		}
	}

	return awards
}

// hasBonusSince reports whether a bonus of type t (and reason, when non-empty)
// was awarded at or after since.
func hasBonusSince(history []BonusRecord, t BonusType, reason string, since time.Time) bool {
	for _, b := range history {
		if b.Type != t || b.AwardedAt.Before(since) {
			continue
		}
		if reason == "" || b.Reason == reason {
			return true
		}
	}
	return false
}
