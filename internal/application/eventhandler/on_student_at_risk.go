package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STUDENT AT RISK HANDLER
// Turns ledger.student_at_risk events into tutor alerts. The detection job
// reports every at-risk student on every run, so alerts are rate limited per
// student: a repeat is only sent after the cooldown or when the level rises.
// ═══════════════════════════════════════════════════════════════════════════

// Alert asks a tutor to follow up with a student.
type Alert struct {
	StudentID string
	Level     ledger.RiskLevel
	Score     int
	Reasons   []string
	RaisedAt  time.Time
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log at warn level.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, alert Alert) error {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Warn("student needs tutor attention",
		logger.StudentID(alert.StudentID),
		"risk_level", string(alert.Level),
		"score", alert.Score,
		"reasons", alert.Reasons,
	)
	return nil
}

// RiskAlertConfig configures OnStudentAtRiskHandler.
type RiskAlertConfig struct {
	// MinLevel is the lowest risk level that raises an alert.
	MinLevel ledger.RiskLevel

	// Cooldown is the minimum time between two alerts for the same student
	// at the same or a lower level.
	Cooldown time.Duration
}

// DefaultRiskAlertConfig alerts on medium risk and up, at most once a day.
func DefaultRiskAlertConfig() RiskAlertConfig {
	return RiskAlertConfig{
		MinLevel: ledger.RiskMedium,
		Cooldown: 24 * time.Hour,
	}
}

const notifyTimeout = 30 * time.Second

type sentAlert struct {
	level ledger.RiskLevel
	at    time.Time
}

// OnStudentAtRiskHandler handles shared.EventStudentAtRisk.
type OnStudentAtRiskHandler struct {
	notifier Notifier
	config   RiskAlertConfig
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	sent map[string]sentAlert
}

// NewOnStudentAtRiskHandler creates a new OnStudentAtRiskHandler.
func NewOnStudentAtRiskHandler(notifier Notifier, config RiskAlertConfig, logger *slog.Logger) *OnStudentAtRiskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if config.MinLevel == "" {
		config.MinLevel = ledger.RiskMedium
	}
	return &OnStudentAtRiskHandler{
		notifier: notifier,
		config:   config,
		logger:   logger.With("handler", "on_student_at_risk"),
		now:      time.Now,
		sent:     make(map[string]sentAlert),
	}
}

// WithClock replaces the handler's clock.
func (h *OnStudentAtRiskHandler) WithClock(now func() time.Time) *OnStudentAtRiskHandler {
	h.now = now
	return h
}

// Handle implements shared.EventHandler. Events that arrived over Redis carry
// only their payload, so fields are read from Payload rather than by type.
func (h *OnStudentAtRiskHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventStudentAtRisk {
		return nil
	}

	payload := event.Payload()
	alert := Alert{
		StudentID: event.AggregateID(),
		Level:     ledger.RiskLevel(stringField(payload, "risk_level")),
		Score:     intField(payload, "score"),
		Reasons:   stringsField(payload, "reasons"),
		RaisedAt:  h.now(),
	}
	if alert.StudentID == "" {
		return fmt.Errorf("at-risk event without student id")
	}

	if levelRank(alert.Level) < levelRank(h.config.MinLevel) {
		return nil
	}
	prev, ok := h.reserve(alert)
	if !ok {
		h.logger.Debug("alert suppressed by cooldown",
			logger.StudentID(alert.StudentID),
			"risk_level", string(alert.Level),
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := h.notifier.Notify(ctx, alert); err != nil {
		h.release(alert, prev)
		return fmt.Errorf("notify at-risk student %s: %w", alert.StudentID, err)
	}
	return nil
}

// reserve records the alert as sent unless one at the same or a higher level
// went out within the cooldown. It returns the record it replaced.
func (h *OnStudentAtRiskHandler) reserve(a Alert) (sentAlert, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev, had := h.sent[a.StudentID]
	if had && a.RaisedAt.Sub(prev.at) < h.config.Cooldown && levelRank(a.Level) <= levelRank(prev.level) {
		return prev, false
	}
	h.sent[a.StudentID] = sentAlert{level: a.Level, at: a.RaisedAt}
	return prev, true
}

// release undoes a reservation whose alert was not delivered. The earlier
// alert, if any, still counts towards the cooldown.
func (h *OnStudentAtRiskHandler) release(a Alert, prev sentAlert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur := h.sent[a.StudentID]; cur.level != a.Level || !cur.at.Equal(a.RaisedAt) {
		return
	}
	if prev.at.IsZero() {
		delete(h.sent, a.StudentID)
		return
	}
	h.sent[a.StudentID] = prev
}

func levelRank(l ledger.RiskLevel) int {
	switch l {
	case ledger.RiskLow:
		return 1
	case ledger.RiskMedium:
		return 2
	case ledger.RiskHigh:
		return 3
	default:
		return 0
	}
}

func stringField(p map[string]interface{}, key string) string {
	s, _ := p[key].(string)
	return s
}

// intField accepts float64 because JSON decoding produces it.
func intField(p map[string]interface{}, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func stringsField(p map[string]interface{}, key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
