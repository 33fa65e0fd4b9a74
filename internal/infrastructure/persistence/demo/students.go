// Package demo provides seed students for local runs and the --demo mode of
// ledgerctl. Timestamps are relative to the supplied clock so the automatic
// rules and risk heuristic see the same picture on every run.
package demo

import (
	"time"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
)

const day = 24 * time.Hour

// Students returns three profiles: a steady learner, a student at high
// risk, and a newer student about to earn automatic bonuses.
func Students(now time.Time) []ledger.StudentProfile {
	now = now.UTC()

	waivedAt := now.Add(-9 * day)

	return []ledger.StudentProfile{
		{
			ID:          "stu-ada",
			DisplayName: "Ada Lovelace",
			Points:      1240,
			Stats: ledger.Stats{
				PenaltyHistory: []ledger.PenaltyRecord{
					{
						ID:             "pen_demo_ada_1",
						Type:           ledger.PenaltyLateHomework,
						PointsDeducted: 50,
						Reason:         "Late homework submission",
						AppliedAt:      now.Add(-40 * day),
						AppliedBy:      ledger.ActorSystem,
					},
				},
				BonusHistory: []ledger.BonusRecord{
					{
						ID:            "bon_demo_ada_1",
						Type:          ledger.BonusCleanWeek,
						PointsAwarded: 30,
						Reason:        "Clean week, no penalties",
						AwardedAt:     now.Add(-2 * day),
						AwardedBy:     ledger.ActorSystem,
					},
				},
				CurrentStreak:             12,
				LongestStreak:             30,
				HomeworkStreak:            4,
				SessionsAttendedThisMonth: 6,
			},
			Version:   1,
			CreatedAt: now.Add(-120 * day),
			UpdatedAt: now.Add(-2 * day),
		},
		{
			ID:          "stu-grace",
			DisplayName: "Grace Hopper",
			Points:      610,
			Stats: ledger.Stats{
				PenaltyHistory: []ledger.PenaltyRecord{
					{
						ID:             "pen_demo_grace_1",
						Type:           ledger.PenaltyMissedSession,
						PointsDeducted: 40,
						Reason:         "Missed tutoring session",
						AppliedAt:      now.Add(-12 * day),
						AppliedBy:      ledger.ActorTutor,
					},
					{
						ID:             "pen_demo_grace_2",
						Type:           ledger.PenaltyMissedSession,
						PointsDeducted: 70,
						Reason:         "Missed tutoring session (2x offense)",
						AppliedAt:      now.Add(-6 * day),
						AppliedBy:      ledger.ActorTutor,
					},
					{
						ID:             "pen_demo_grace_3",
						Type:           ledger.PenaltyLowEngagement,
						PointsDeducted: 20,
						Reason:         "Low engagement during session",
						AppliedAt:      now.Add(-3 * day),
						AppliedBy:      ledger.ActorSystem,
					},
					{
						ID:             "pen_demo_grace_4",
						Type:           ledger.PenaltyStreakBreak,
						PointsDeducted: 7,
						Reason:         "Learning streak broken",
						AppliedAt:      now.Add(-10 * day),
						AppliedBy:      ledger.ActorSystem,
						Waived:         true,
						WaivedBy:       "tutor-mei",
						WaivedAt:       &waivedAt,
						WaivedReason:   "Student was ill",
					},
				},
				CurrentStreak:             0,
				LongestStreak:             9,
				LowEngagementWeeks:        2,
				MissedSessions:            2,
				SessionsAttendedThisMonth: 2,
			},
			Version:   1,
			CreatedAt: now.Add(-90 * day),
			UpdatedAt: now.Add(-3 * day),
		},
		{
			ID:          "stu-alan",
			DisplayName: "Alan Turing",
			Points:      300,
			Stats: ledger.Stats{
				CurrentStreak:             7,
				LongestStreak:             7,
				HomeworkStreak:            5,
				SessionsAttendedThisMonth: 8,
			},
			Version:   1,
			CreatedAt: now.Add(-10 * day),
			UpdatedAt: now.Add(-1 * day),
		},
	}
}
