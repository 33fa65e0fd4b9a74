package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func newTestCLI(t *testing.T) *cli {
	t.Helper()
	c := newCLI()
	c.now = func() time.Time { return testNow }
	t.Cleanup(c.close)
	return c
}

// run executes one command line against c. The in-memory store survives
// between runs because c keeps the opened infrastructure.
func run(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(c)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCalc(t *testing.T) {
	c := newTestCLI(t)

	out, err := run(t, c, "calc", "--points", "1000", "--type", "missed-session", "-o", "json")
	require.NoError(t, err)

	var previews []struct {
		Deduction  int `json:"deduction"`
		NewBalance int `json:"new_balance"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &previews))
	require.Len(t, previews, 1)
	assert.Equal(t, 50, previews[0].Deduction)
	assert.Equal(t, 950, previews[0].NewBalance)
}

func TestCalc_AllKinds(t *testing.T) {
	c := newTestCLI(t)

	out, err := run(t, c, "calc", "--points", "1000")
	require.NoError(t, err)

	assert.Contains(t, out, "TYPE")
	for _, kind := range ledger.PenaltyTypes() {
		assert.Contains(t, out, string(kind))
	}
}

func TestCalc_RequiresPoints(t *testing.T) {
	c := newTestCLI(t)

	_, err := run(t, c, "calc", "--type", "missed-session")
	assert.Error(t, err)
}

func TestUnknownOutputFormat(t *testing.T) {
	c := newTestCLI(t)

	_, err := run(t, c, "calc", "--points", "10", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestPenaltyApplyAndWaive(t *testing.T) {
	c := newTestCLI(t)

	out, err := run(t, c, "--demo", "penalty", "apply", "stu-ada", "--type", "missed-session", "-o", "json")
	require.NoError(t, err)

	var applied ledger.PenaltyRecord
	require.NoError(t, json.Unmarshal([]byte(out), &applied))
	assert.Equal(t, ledger.PenaltyType("missed-session"), applied.Type)
	assert.Equal(t, 50, applied.PointsDeducted)
	assert.Equal(t, ledger.ActorTutor, applied.AppliedBy)
	assert.True(t, applied.AppliedAt.Equal(testNow))

	out, err = run(t, c, "--demo", "penalty", "waive", "stu-ada", applied.ID, "--by", "ms-lovelace", "--reason", "doctor's note")
	require.NoError(t, err)
	assert.Contains(t, out, "waived: +50 points restored")
	assert.Contains(t, out, "balance: 1240")

	out, err = run(t, c, "--demo", "penalty", "waive", "stu-ada", applied.ID, "--by", "someone-else", "--reason", "again")
	require.NoError(t, err)
	assert.Contains(t, out, "already waived by ms-lovelace")
	assert.Contains(t, out, "balance: 1240")
}

func TestPenaltyWaive_RequiresReason(t *testing.T) {
	c := newTestCLI(t)

	_, err := run(t, c, "--demo", "penalty", "waive", "stu-ada", "pen-1", "--by", "ms-lovelace")
	assert.Error(t, err)
}

func TestPenaltyApply_UnknownStudent(t *testing.T) {
	c := newTestCLI(t)

	_, err := run(t, c, "--demo", "penalty", "apply", "stu-nobody", "--type", "missed-session")
	assert.Error(t, err)
}

func TestBonusAward(t *testing.T) {
	c := newTestCLI(t)

	out, err := run(t, c, "--demo", "bonus", "award", "stu-ada", "--type", "perfect-session")
	require.NoError(t, err)
	assert.Contains(t, out, "+25 points")
	assert.Contains(t, out, "balance: 1265")

	out, err = run(t, c, "--demo", "bonus", "award", "stu-ada", "--type", "perfect-session", "--points", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "+10 points")
	assert.Contains(t, out, "balance: 1275")

	_, err = run(t, c, "--demo", "bonus", "award", "stu-ada", "--type", "perfect-session", "--points", "-5")
	assert.Error(t, err)
}

func TestBonusCheck(t *testing.T) {
	c := newTestCLI(t)

	out, err := run(t, c, "--demo", "bonus", "check", "stu-alan", "-o", "json")
	require.NoError(t, err)

	var awarded []ledger.BonusRecord
	require.NoError(t, json.Unmarshal([]byte(out), &awarded))
	total := 0
	for _, b := range awarded {
		total += b.PointsAwarded
		assert.Equal(t, ledger.ActorSystem, b.AwardedBy)
	}
	assert.Len(t, awarded, 4)
	assert.Equal(t, 140, total)

	out, err = run(t, c, "--demo", "bonus", "check", "stu-alan")
	require.NoError(t, err)
	assert.Contains(t, out, "no automatic bonus applies")
	assert.Contains(t, out, "balance: 440")
}

func TestRisk(t *testing.T) {
	c := newTestCLI(t)

	out, err := run(t, c, "--demo", "risk", "stu-grace", "-o", "json")
	require.NoError(t, err)

	var risk struct {
		StudentID string `json:"student_id"`
		AtRisk    bool   `json:"at_risk"`
		Level     string `json:"risk_level"`
		Score     int    `json:"score"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &risk))
	assert.Equal(t, "stu-grace", risk.StudentID)
	assert.True(t, risk.AtRisk)
	assert.Equal(t, "high", risk.Level)
	assert.Equal(t, 7, risk.Score)
}

func TestSummary(t *testing.T) {
	c := newTestCLI(t)

	out, err := run(t, c, "--demo", "summary", "stu-grace")
	require.NoError(t, err)
	assert.Contains(t, out, "2 penalties, 90 points in the last 7 days")

	out, err = run(t, c, "--demo", "summary", "stu-grace", "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "3 penalties, 130 points in the last 30 days")

	_, err = run(t, c, "--demo", "summary", "stu-grace", "--days", "0")
	assert.Error(t, err)
}

func TestStudents(t *testing.T) {
	c := newTestCLI(t)

	out, err := run(t, c, "--demo", "students", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "stu-ada")
	assert.Contains(t, out, "stu-alan")
	assert.Contains(t, out, "stu-grace")

	out, err = run(t, c, "--demo", "students", "list", "--limit", "1", "-o", "json")
	require.NoError(t, err)
	var page []ledger.StudentProfile
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page, 1)
	assert.Equal(t, "stu-ada", page[0].ID)

	out, err = run(t, c, "--demo", "students", "show", "stu-grace")
	require.NoError(t, err)
	assert.Contains(t, out, "penalties:")
	assert.Contains(t, out, "waived by")
}

func TestMigrate_MemoryDriver(t *testing.T) {
	c := newTestCLI(t)

	out, err := run(t, c, "--demo", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "has no schema to migrate")
}
