package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/persistence/demo"
)

var epoch = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *StudentRepository {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStudentRepository(db)
}

func newStudent(id string, points int) ledger.StudentProfile {
	return ledger.StudentProfile{
		ID:          id,
		DisplayName: "Student " + id,
		Points:      points,
		Version:     1,
		CreatedAt:   epoch,
		UpdatedAt:   epoch,
	}
}

func TestStudentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	s := newStudent("stu-1", 100)
	s.Stats.CurrentStreak = 3
	s.Stats.MissedSessions = 1
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByID(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Points)
	assert.Equal(t, "Student stu-1", got.DisplayName)
	assert.Equal(t, 3, got.Stats.CurrentStreak)
	assert.Equal(t, 1, got.Stats.MissedSessions)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, epoch.Equal(got.CreatedAt))

	err = repo.Create(ctx, newStudent("stu-1", 5))
	assert.True(t, shared.IsAlreadyExists(err))

	err = repo.Create(ctx, newStudent("", 5))
	assert.ErrorIs(t, err, shared.ErrInvalidStudentID)
}

func TestStudentRepository_GetByID_NotFound(t *testing.T) {
	_, err := openTestDB(t).GetByID(context.Background(), "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestStudentRepository_Save_PersistsLedgerChanges(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	require.NoError(t, repo.Create(ctx, newStudent("stu-1", 500)))

	l := ledger.New(ledger.DefaultConfig(), ledger.WithClock(func() time.Time { return epoch }))

	s, err := repo.GetByID(ctx, "stu-1")
	require.NoError(t, err)

	s, penalty := l.ApplyPenalty(s, ledger.PenaltyMissedSession, ledger.ActorTutor, "")
	s = l.ApplyBonus(s, l.CreateBonusRecord(ledger.BonusImprovement, 25, "Big improvement on quiz", ledger.ActorTutor))

	saved, err := repo.Save(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	got, err := repo.GetByID(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, s.Points, got.Points)
	require.Len(t, got.Stats.PenaltyHistory, 1)
	assert.Equal(t, penalty.ID, got.Stats.PenaltyHistory[0].ID)
	assert.Equal(t, penalty.PointsDeducted, got.Stats.PenaltyHistory[0].PointsDeducted)
	assert.Equal(t, ledger.ActorTutor, got.Stats.PenaltyHistory[0].AppliedBy)
	assert.False(t, got.Stats.PenaltyHistory[0].Waived)
	require.Len(t, got.Stats.BonusHistory, 1)
	assert.Equal(t, 25, got.Stats.BonusHistory[0].PointsAwarded)

	waived := l.WaivePenalty(got, penalty.ID, "tutor-7", "Doctor's note")
	_, err = repo.Save(ctx, waived)
	require.NoError(t, err)

	after, err := repo.GetByID(ctx, "stu-1")
	require.NoError(t, err)
	p := after.Stats.PenaltyHistory[0]
	assert.True(t, p.Waived)
	assert.Equal(t, "tutor-7", p.WaivedBy)
	assert.Equal(t, "Doctor's note", p.WaivedReason)
	require.NotNil(t, p.WaivedAt)
	assert.True(t, epoch.Equal(*p.WaivedAt))
	assert.Equal(t, 525, after.Points)
}

func TestStudentRepository_Save_RecordsAreNotRewritten(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	s := newStudent("stu-1", 100)
	s.Stats.PenaltyHistory = []ledger.PenaltyRecord{{
		ID: "pen_1", Type: ledger.PenaltyLateHomework, PointsDeducted: 10,
		Reason: "Late homework submission", AppliedAt: epoch, AppliedBy: ledger.ActorSystem,
	}}
	s.Stats.BonusHistory = []ledger.BonusRecord{{
		ID: "bon_1", Type: ledger.BonusCleanWeek, PointsAwarded: 30,
		Reason: "Clean week", AwardedAt: epoch, AwardedBy: ledger.ActorSystem,
	}}
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByID(ctx, "stu-1")
	require.NoError(t, err)
	got.Stats.PenaltyHistory[0].PointsDeducted = 999
	got.Stats.BonusHistory[0].PointsAwarded = 999
	_, err = repo.Save(ctx, got)
	require.NoError(t, err)

	again, err := repo.GetByID(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 10, again.Stats.PenaltyHistory[0].PointsDeducted)
	assert.Equal(t, 30, again.Stats.BonusHistory[0].PointsAwarded)
}

func TestStudentRepository_Save_StaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	require.NoError(t, repo.Create(ctx, newStudent("stu-1", 100)))

	first, _ := repo.GetByID(ctx, "stu-1")
	second, _ := repo.GetByID(ctx, "stu-1")

	first.Points = 90
	_, err := repo.Save(ctx, first)
	require.NoError(t, err)

	second.Points = 10
	_, err = repo.Save(ctx, second)
	assert.True(t, shared.IsConflict(err))

	stored, _ := repo.GetByID(ctx, "stu-1")
	assert.Equal(t, 90, stored.Points)
}

func TestStudentRepository_Save_Unknown(t *testing.T) {
	_, err := openTestDB(t).Save(context.Background(), newStudent("ghost", 1))
	assert.True(t, shared.IsNotFound(err))
}

func TestStudentRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	for _, id := range []string{"stu-c", "stu-a", "stu-b"} {
		require.NoError(t, repo.Create(ctx, newStudent(id, 1)))
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := repo.List(ctx, ledger.DefaultListOptions().WithLimit(2))
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "stu-a", page[0].ID)
	assert.Equal(t, "stu-b", page[1].ID)

	rest, err := repo.List(ctx, ledger.DefaultListOptions().WithOffset(2))
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "stu-c", rest[0].ID)

	past, err := repo.List(ctx, ledger.DefaultListOptions().WithOffset(10))
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestStudentRepository_DemoRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	seed := demo.Students(epoch)
	for _, s := range seed {
		require.NoError(t, repo.Create(ctx, s))
	}

	all, err := repo.List(ctx, ledger.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, all, len(seed))

	l := ledger.New(ledger.DefaultConfig(), ledger.WithClock(func() time.Time { return epoch }))
	for _, s := range all {
		if s.ID == "stu-grace" {
			risk := l.AssessRisk(s)
			assert.Equal(t, ledger.RiskHigh, risk.Level)
			assert.Equal(t, 7, risk.Score)
		}
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	n, err := NewStudentRepository(db).Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
