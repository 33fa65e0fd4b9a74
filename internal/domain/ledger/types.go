package ledger

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// PenaltyType is the closed set of penalty kinds.
type PenaltyType string

const (
	PenaltyStreakBreak        PenaltyType = "streak-break"
	PenaltyMissedSession      PenaltyType = "missed-session"
	PenaltyLateHomework       PenaltyType = "late-homework"
	PenaltyNoHomework         PenaltyType = "no-homework"
	PenaltyLowEngagement      PenaltyType = "low-engagement"
	PenaltyConstellationDecay PenaltyType = "constellation-decay"
)

// PenaltyTypes returns all penalty kinds in declaration order.
func PenaltyTypes() []PenaltyType {
	return []PenaltyType{
		PenaltyStreakBreak,
		PenaltyMissedSession,
		PenaltyLateHomework,
		PenaltyNoHomework,
		PenaltyLowEngagement,
		PenaltyConstellationDecay,
	}
}

// IsValid reports whether t is a known penalty kind.
func (t PenaltyType) IsValid() bool {
	switch t {
	case PenaltyStreakBreak, PenaltyMissedSession, PenaltyLateHomework,
		PenaltyNoHomework, PenaltyLowEngagement, PenaltyConstellationDecay:
		return true
	default:
		return false
	}
}

// Label returns the human readable description used in generated reasons.
func (t PenaltyType) Label() string {
	switch t {
	case PenaltyStreakBreak:
		return "Learning streak broken"
	case PenaltyMissedSession:
		return "Missed tutoring session"
	case PenaltyLateHomework:
		return "Late homework submission"
	case PenaltyNoHomework:
		return "Homework not submitted"
	case PenaltyLowEngagement:
		return "Low engagement during session"
	case PenaltyConstellationDecay:
		return "Constellation skill decay"
	default:
		return "Penalty"
	}
}

// BonusType is the closed set of bonus kinds.
type BonusType string

const (
	BonusPerfectSession  BonusType = "perfect-session"
	BonusStreakMilestone BonusType = "streak-milestone"
	BonusCleanWeek       BonusType = "clean-week"
	BonusCleanMonth      BonusType = "clean-month"
	BonusHomeworkStreak  BonusType = "homework-streak"
	BonusImprovement     BonusType = "improvement-bonus"
	BonusAttendance      BonusType = "attendance-bonus"
)

// BonusTypes returns all bonus kinds in declaration order.
func BonusTypes() []BonusType {
	return []BonusType{
		BonusPerfectSession,
		BonusStreakMilestone,
		BonusCleanWeek,
		BonusCleanMonth,
		BonusHomeworkStreak,
		BonusImprovement,
		BonusAttendance,
	}
}

// IsValid reports whether t is a known bonus kind.
func (t BonusType) IsValid() bool {
	switch t {
	case BonusPerfectSession, BonusStreakMilestone, BonusCleanWeek, BonusCleanMonth,
		BonusHomeworkStreak, BonusImprovement, BonusAttendance:
		return true
	default:
		return false
	}
}

// Label returns the human readable description used in generated reasons.
func (t BonusType) Label() string {
	switch t {
	case BonusPerfectSession:
		return "Perfect session"
	case BonusStreakMilestone:
		return "Streak milestone"
	case BonusCleanWeek:
		return "Clean week, no penalties"
	case BonusCleanMonth:
		return "Clean month, no penalties"
	case BonusHomeworkStreak:
		return "Homework on time streak"
	case BonusImprovement:
		return "Great improvement"
	case BonusAttendance:
		return "Perfect attendance"
	default:
		return "Bonus"
	}
}

// Actor identifies who created or waived a ledger record.
type Actor string

const (
	ActorSystem Actor = "system"
	ActorTutor  Actor = "tutor"
)

// IsValid reports whether a is a known actor.
func (a Actor) IsValid() bool {
	return a == ActorSystem || a == ActorTutor
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// PenaltyRecord is one penalty event. PointsDeducted is fixed at creation;
// waiving only touches the Waived* fields.
type PenaltyRecord struct {
	ID             string      `json:"id"`
	Type           PenaltyType `json:"type"`
	PointsDeducted int         `json:"points_deducted"`
	Reason         string      `json:"reason"`
	AppliedAt      time.Time   `json:"applied_at"`
	AppliedBy      Actor       `json:"applied_by"`

	Waived       bool       `json:"waived"`
	WaivedBy     string     `json:"waived_by,omitempty"`
	WaivedAt     *time.Time `json:"waived_at,omitempty"`
	WaivedReason string     `json:"waived_reason,omitempty"`
}

// IsActive reports whether the penalty still counts against the student.
func (p PenaltyRecord) IsActive() bool {
	return !p.Waived
}

// BonusRecord is one bonus event. Bonuses are permanent once recorded.
type BonusRecord struct {
	ID            string    `json:"id"`
	Type          BonusType `json:"type"`
	PointsAwarded int       `json:"points_awarded"`
	Reason        string    `json:"reason"`
	AwardedAt     time.Time `json:"awarded_at"`
	AwardedBy     Actor     `json:"awarded_by"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Stats holds the ledger history and the engagement counters the rules read.
type Stats struct {
	PenaltyHistory []PenaltyRecord `json:"penalty_history"`
	BonusHistory   []BonusRecord   `json:"bonus_history"`

	// CurrentStreak is the number of consecutive active learning days.
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`

	// HomeworkStreak counts consecutive homework assignments handed in on time.
	HomeworkStreak int `json:"homework_streak"`

	LowEngagementWeeks        int `json:"low_engagement_weeks"`
	MissedSessions            int `json:"missed_sessions"`
	SessionsAttendedThisMonth int `json:"sessions_attended_this_month"`
}

// StudentProfile is the subset of the student record the ledger works with.
type StudentProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`

	// Points is the current balance. It never goes below zero.
	Points int   `json:"points"`
	Stats  Stats `json:"stats"`

	// Version is the optimistic concurrency token. Ledger operations leave it
	// untouched; repositories compare and bump it on save.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so the caller can modify histories freely.
func (s StudentProfile) Clone() StudentProfile {
	out := s
	if s.Stats.PenaltyHistory != nil {
		out.Stats.PenaltyHistory = make([]PenaltyRecord, len(s.Stats.PenaltyHistory))
		copy(out.Stats.PenaltyHistory, s.Stats.PenaltyHistory)
		for i, p := range out.Stats.PenaltyHistory {
			if p.WaivedAt != nil {
				at := *p.WaivedAt
				out.Stats.PenaltyHistory[i].WaivedAt = &at
			}
		}
	}
	if s.Stats.BonusHistory != nil {
		out.Stats.BonusHistory = make([]BonusRecord, len(s.Stats.BonusHistory))
		copy(out.Stats.BonusHistory, s.Stats.BonusHistory)
	}
	return out
}

// FindPenalty returns the index of the penalty with the given id, or -1.
func (s StudentProfile) FindPenalty(id string) int {
	for i, p := range s.Stats.PenaltyHistory {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// ActiveOffenses counts non-waived penalties of type t.
func (s StudentProfile) ActiveOffenses(t PenaltyType) int {
	n := 0
	for _, p := range s.Stats.PenaltyHistory {
		if p.Type == t && !p.Waived {
			n++
		}
	}
	return n
}
