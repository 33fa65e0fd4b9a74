package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/persistence/demo"
)

func newStudent(id string, points int) ledger.StudentProfile {
	return ledger.StudentProfile{
		ID:        id,
		Points:    points,
		Version:   1,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStudentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewStudentRepository()

	require.NoError(t, repo.Create(ctx, newStudent("stu-1", 100)))

	got, err := repo.GetByID(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Points)

	err = repo.Create(ctx, newStudent("stu-1", 5))
	assert.True(t, shared.IsAlreadyExists(err))

	err = repo.Create(ctx, newStudent("", 5))
	assert.ErrorIs(t, err, shared.ErrInvalidStudentID)
}

func TestStudentRepository_GetByID_NotFound(t *testing.T) {
	_, err := NewStudentRepository().GetByID(context.Background(), "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestStudentRepository_Save_BumpsVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewStudentRepository(newStudent("stu-1", 100))

	s, err := repo.GetByID(ctx, "stu-1")
	require.NoError(t, err)
	s.Points = 80

	saved, err := repo.Save(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	assert.Equal(t, 80, saved.Points)

	again, err := repo.GetByID(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)
}

func TestStudentRepository_Save_StaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewStudentRepository(newStudent("stu-1", 100))

	first, _ := repo.GetByID(ctx, "stu-1")
	second, _ := repo.GetByID(ctx, "stu-1")

	first.Points = 90
	_, err := repo.Save(ctx, first)
	require.NoError(t, err)

	second.Points = 10
	_, err = repo.Save(ctx, second)
	assert.ErrorIs(t, err, shared.ErrOptimisticLock)
	assert.True(t, shared.IsConflict(err))

	stored, _ := repo.GetByID(ctx, "stu-1")
	assert.Equal(t, 90, stored.Points)
}

func TestStudentRepository_Save_Unknown(t *testing.T) {
	_, err := NewStudentRepository().Save(context.Background(), newStudent("ghost", 1))
	assert.True(t, shared.IsNotFound(err))
}

func TestStudentRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newStudent("stu-1", 100)
	s.Stats.PenaltyHistory = []ledger.PenaltyRecord{{ID: "pen_1", PointsDeducted: 10}}
	repo := NewStudentRepository(s)

	got, _ := repo.GetByID(ctx, "stu-1")
	got.Stats.PenaltyHistory[0].PointsDeducted = 999

	again, _ := repo.GetByID(ctx, "stu-1")
	assert.Equal(t, 10, again.Stats.PenaltyHistory[0].PointsDeducted)
}

func TestStudentRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewStudentRepository(
		newStudent("stu-c", 1),
		newStudent("stu-a", 1),
		newStudent("stu-b", 1),
	)

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

func TestStudentRepository_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStudentRepository().GetByID(ctx, "stu-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDemoStudents_RuleOutcomes(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l := ledger.New(ledger.DefaultConfig(), ledger.WithClock(func() time.Time { return now }))

	byID := make(map[string]ledger.StudentProfile)
	for _, s := range demo.Students(now) {
		byID[s.ID] = s
	}
	require.Len(t, byID, 3)

	risk := l.AssessRisk(byID["stu-grace"])
	assert.Equal(t, ledger.RiskHigh, risk.Level)
	assert.Equal(t, 7, risk.Score)

	assert.Equal(t, ledger.RiskLow, l.AssessRisk(byID["stu-ada"]).Level)

	_, alanBonuses := l.RunAndApplyAutomaticBonuses(byID["stu-alan"])
	assert.Len(t, alanBonuses, 4)

	adaBonuses := l.RunAutomaticBonusChecks(byID["stu-ada"])
	require.Len(t, adaBonuses, 1)
	assert.Equal(t, ledger.BonusCleanMonth, adaBonuses[0].Type)

	assert.Empty(t, l.RunAutomaticBonusChecks(byID["stu-grace"]))
}
