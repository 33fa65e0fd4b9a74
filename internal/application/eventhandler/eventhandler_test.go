package eventhandler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, a Alert) error {
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, a)
	return nil
}

// payloadEvent mimics an event that arrived over Redis.
type payloadEvent struct {
	typ     shared.EventType
	id      string
	payload map[string]interface{}
}

func (e payloadEvent) EventType() shared.EventType     { return e.typ }
func (e payloadEvent) AggregateID() string             { return e.id }
func (e payloadEvent) OccurredAt() time.Time           { return time.Time{} }
func (e payloadEvent) Payload() map[string]interface{} { return e.payload }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newAtRiskHandler(n Notifier) (*OnStudentAtRiskHandler, *clock) {
	c := &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	h := NewOnStudentAtRiskHandler(n, DefaultRiskAlertConfig(), logger.Discard()).WithClock(c.now)
	return h, c
}

func atRisk(id, level string, score int) shared.Event {
	return shared.NewStudentAtRiskEvent(id, level, score, []string{"3 penalties in the last 14 days"})
}

func TestOnStudentAtRisk_Notifies(t *testing.T) {
	n := &recordingNotifier{}
	h, c := newAtRiskHandler(n)

	require.NoError(t, h.Handle(atRisk("stu-grace", "high", 7)))

	require.Len(t, n.alerts, 1)
	a := n.alerts[0]
	assert.Equal(t, "stu-grace", a.StudentID)
	assert.Equal(t, ledger.RiskHigh, a.Level)
	assert.Equal(t, 7, a.Score)
	assert.Equal(t, []string{"3 penalties in the last 14 days"}, a.Reasons)
	assert.Equal(t, c.now(), a.RaisedAt)
}

func TestOnStudentAtRisk_IgnoresLowRiskAndOtherEvents(t *testing.T) {
	n := &recordingNotifier{}
	h, _ := newAtRiskHandler(n)

	require.NoError(t, h.Handle(atRisk("stu-ada", "low", 1)))
	require.NoError(t, h.Handle(shared.NewPenaltyAppliedEvent("stu-ada", "pen-1", "missed-session", 50, 1190, "tutor")))

	assert.Empty(t, n.alerts)
}

func TestOnStudentAtRisk_Cooldown(t *testing.T) {
	n := &recordingNotifier{}
	h, c := newAtRiskHandler(n)

	require.NoError(t, h.Handle(atRisk("stu-grace", "medium", 2)))
	c.advance(time.Hour)
	require.NoError(t, h.Handle(atRisk("stu-grace", "medium", 3)))
	assert.Len(t, n.alerts, 1, "repeat within cooldown is suppressed")

	require.NoError(t, h.Handle(atRisk("stu-grace", "high", 5)))
	assert.Len(t, n.alerts, 2, "escalation bypasses cooldown")

	c.advance(2 * time.Hour)
	require.NoError(t, h.Handle(atRisk("stu-grace", "medium", 3)))
	assert.Len(t, n.alerts, 2)

	c.advance(24 * time.Hour)
	require.NoError(t, h.Handle(atRisk("stu-grace", "medium", 3)))
	assert.Len(t, n.alerts, 3)

	require.NoError(t, h.Handle(atRisk("stu-alan", "medium", 2)))
	assert.Len(t, n.alerts, 4, "cooldown is per student")
}

func TestOnStudentAtRisk_DecodedPayload(t *testing.T) {
	n := &recordingNotifier{}
	h, _ := newAtRiskHandler(n)

	err := h.Handle(payloadEvent{
		typ: shared.EventStudentAtRisk,
		id:  "stu-grace",
		payload: map[string]interface{}{
			"student_id": "stu-grace",
			"risk_level": "high",
			"score":      float64(7),
			"reasons":    []interface{}{"streak broken", "missed 2 sessions"},
		},
	})
	require.NoError(t, err)

	require.Len(t, n.alerts, 1)
	assert.Equal(t, 7, n.alerts[0].Score)
	assert.Equal(t, []string{"streak broken", "missed 2 sessions"}, n.alerts[0].Reasons)
}

func TestOnStudentAtRisk_NotifyFailureAllowsRetry(t *testing.T) {
	n := &recordingNotifier{err: errors.New("smtp down")}
	h, _ := newAtRiskHandler(n)

	err := h.Handle(atRisk("stu-grace", "high", 7))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stu-grace")

	n.err = nil
	require.NoError(t, h.Handle(atRisk("stu-grace", "high", 7)))
	assert.Len(t, n.alerts, 1)
}

func TestOnStudentAtRisk_FailedEscalationKeepsEarlierCooldown(t *testing.T) {
	n := &recordingNotifier{}
	h, c := newAtRiskHandler(n)

	require.NoError(t, h.Handle(atRisk("stu-grace", "medium", 4)))
	require.Len(t, n.alerts, 1)

	c.advance(time.Hour)
	n.err = errors.New("smtp down")
	require.Error(t, h.Handle(atRisk("stu-grace", "high", 7)))

	// The medium alert that went out is still in its cooldown.
	n.err = nil
	c.advance(time.Hour)
	require.NoError(t, h.Handle(atRisk("stu-grace", "medium", 4)))
	assert.Len(t, n.alerts, 1)

	require.NoError(t, h.Handle(atRisk("stu-grace", "high", 7)))
	require.Len(t, n.alerts, 2)
	assert.Equal(t, ledger.RiskHigh, n.alerts[1].Level)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Format: logger.FormatJSON, Output: &buf})

	err := LogNotifier{Logger: log}.Notify(context.Background(), Alert{
		StudentID: "stu-grace",
		Level:     ledger.RiskHigh,
		Score:     7,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"risk_level":"high"`)
}

func TestAuditLogHandler(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Format: logger.FormatJSON, Output: &buf})

	e := shared.NewPenaltyWaivedEvent("stu-ada", "pen-1", 50, 1240, "ms-lovelace", "doctor's note")
	require.NoError(t, NewAuditLogHandler(log).Handle(e))

	out := buf.String()
	assert.Contains(t, out, `"msg":"ledger event"`)
	assert.Contains(t, out, `"event_type":"ledger.penalty_waived"`)
	assert.Contains(t, out, `"student_id":"stu-ada"`)
	assert.Contains(t, out, `"penalty_id":"pen-1"`)
	assert.Contains(t, out, `"handler":"audit_log"`)
}
