package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPenalty(t *testing.T) {
	before := testutil.ToFloat64(PointsDeducted.WithLabelValues("late-homework"))
	applied := testutil.ToFloat64(PenaltiesApplied.WithLabelValues("late-homework", "tutor"))

	RecordPenalty("late-homework", "tutor", 50)

	assert.Equal(t, before+50, testutil.ToFloat64(PointsDeducted.WithLabelValues("late-homework")))
	assert.Equal(t, applied+1, testutil.ToFloat64(PenaltiesApplied.WithLabelValues("late-homework", "tutor")))
}

func TestRecordBonus(t *testing.T) {
	before := testutil.ToFloat64(BonusesAwarded.WithLabelValues("clean-week", SourceAutomatic))

	RecordBonus("clean-week", SourceAutomatic, 30)

	assert.Equal(t, before+1, testutil.ToFloat64(BonusesAwarded.WithLabelValues("clean-week", SourceAutomatic)))
}

func TestObserveJob(t *testing.T) {
	ok := testutil.ToFloat64(JobRuns.WithLabelValues("metrics_test", "success"))
	failed := testutil.ToFloat64(JobRuns.WithLabelValues("metrics_test", "failure"))

	ObserveJob("metrics_test", time.Second, nil)
	ObserveJob("metrics_test", time.Second, errors.New("boom"))

	assert.Equal(t, ok+1, testutil.ToFloat64(JobRuns.WithLabelValues("metrics_test", "success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(JobRuns.WithLabelValues("metrics_test", "failure")))
}

func TestObserveHTTP_UnmatchedRoute(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "unmatched", "404"))

	ObserveHTTP("GET", "", 404, time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestObserveCircuitBreaker(t *testing.T) {
	tests := []struct {
		state string
		want  float64
	}{
		{"closed", 0},
		{"half-open", 1},
		{"open", 2},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			ObserveCircuitBreaker("test-breaker", tt.state)
			assert.Equal(t, tt.want, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test-breaker")))
		})
	}
}

func TestSetRiskLevels(t *testing.T) {
	SetRiskLevels(map[string]int{"medium": 3, "high": 1})

	assert.Equal(t, 0.0, testutil.ToFloat64(StudentsAtRisk.WithLabelValues("low")))
	assert.Equal(t, 3.0, testutil.ToFloat64(StudentsAtRisk.WithLabelValues("medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(StudentsAtRisk.WithLabelValues("high")))
}
