package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Ledger event types. Every balance change produces exactly one event.
const (
	EventPenaltyApplied EventType = "ledger.penalty_applied"
	EventPenaltyWaived  EventType = "ledger.penalty_waived"
	EventBonusAwarded   EventType = "ledger.bonus_awarded"
	EventStudentAtRisk  EventType = "ledger.student_at_risk"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// PenaltyAppliedEvent is emitted after a penalty is persisted.
type PenaltyAppliedEvent struct {
	BaseEvent
	StudentID      string `json:"student_id"`
	PenaltyID      string `json:"penalty_id"`
	PenaltyType    string `json:"penalty_type"`
	PointsDeducted int    `json:"points_deducted"`
	NewBalance     int    `json:"new_balance"`
	AppliedBy      string `json:"applied_by"`
}

// Payload implements Event interface.
func (e PenaltyAppliedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"penalty_id":      e.PenaltyID,
		"penalty_type":    e.PenaltyType,
		"points_deducted": e.PointsDeducted,
		"new_balance":     e.NewBalance,
		"applied_by":      e.AppliedBy,
	}
}

// NewPenaltyAppliedEvent creates a new PenaltyAppliedEvent.
func NewPenaltyAppliedEvent(studentID, penaltyID, penaltyType string, deducted, newBalance int, appliedBy string) PenaltyAppliedEvent {
	return PenaltyAppliedEvent{
		BaseEvent:      NewBaseEvent(EventPenaltyApplied, studentID),
		StudentID:      studentID,
		PenaltyID:      penaltyID,
		PenaltyType:    penaltyType,
		PointsDeducted: deducted,
		NewBalance:     newBalance,
		AppliedBy:      appliedBy,
	}
}

// PenaltyWaivedEvent is emitted after a penalty is waived and points restored.
type PenaltyWaivedEvent struct {
	BaseEvent
	StudentID      string `json:"student_id"`
	PenaltyID      string `json:"penalty_id"`
	PointsRestored int    `json:"points_restored"`
	NewBalance     int    `json:"new_balance"`
	WaivedBy       string `json:"waived_by"`
	Reason         string `json:"reason"`
}

// Payload implements Event interface.
func (e PenaltyWaivedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"penalty_id":      e.PenaltyID,
		"points_restored": e.PointsRestored,
		"new_balance":     e.NewBalance,
		"waived_by":       e.WaivedBy,
		"reason":          e.Reason,
	}
}

// NewPenaltyWaivedEvent creates a new PenaltyWaivedEvent.
func NewPenaltyWaivedEvent(studentID, penaltyID string, restored, newBalance int, waivedBy, reason string) PenaltyWaivedEvent {
	return PenaltyWaivedEvent{
		BaseEvent:      NewBaseEvent(EventPenaltyWaived, studentID),
		StudentID:      studentID,
		PenaltyID:      penaltyID,
		PointsRestored: restored,
		NewBalance:     newBalance,
		WaivedBy:       waivedBy,
		Reason:         reason,
	}
}

// BonusAwardedEvent is emitted after a bonus is persisted.
type BonusAwardedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	BonusID       string `json:"bonus_id"`
	BonusType     string `json:"bonus_type"`
	PointsAwarded int    `json:"points_awarded"`
	NewBalance    int    `json:"new_balance"`
	AwardedBy     string `json:"awarded_by"`
	Automatic     bool   `json:"automatic"`
}

// Payload implements Event interface.
func (e BonusAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"bonus_id":       e.BonusID,
		"bonus_type":     e.BonusType,
		"points_awarded": e.PointsAwarded,
		"new_balance":    e.NewBalance,
		"awarded_by":     e.AwardedBy,
		"automatic":      e.Automatic,
	}
}

// NewBonusAwardedEvent creates a new BonusAwardedEvent.
func NewBonusAwardedEvent(studentID, bonusID, bonusType string, awarded, newBalance int, awardedBy string) BonusAwardedEvent {
	return BonusAwardedEvent{
		BaseEvent:     NewBaseEvent(EventBonusAwarded, studentID),
		StudentID:     studentID,
		BonusID:       bonusID,
		BonusType:     bonusType,
		PointsAwarded: awarded,
		NewBalance:    newBalance,
		AwardedBy:     awardedBy,
	}
}

// AsAutomatic marks the bonus as produced by the automatic rules.
func (e BonusAwardedEvent) AsAutomatic() BonusAwardedEvent {
	e.Automatic = true
	return e
}

// StudentAtRiskEvent is emitted by the risk detection job.
type StudentAtRiskEvent struct {
	BaseEvent
	StudentID string   `json:"student_id"`
	RiskLevel string   `json:"risk_level"`
	Score     int      `json:"score"`
	Reasons   []string `json:"reasons"`
}

// Payload implements Event interface.
func (e StudentAtRiskEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"risk_level": e.RiskLevel,
		"score":      e.Score,
		"reasons":    e.Reasons,
	}
}

// NewStudentAtRiskEvent creates a new StudentAtRiskEvent.
func NewStudentAtRiskEvent(studentID, level string, score int, reasons []string) StudentAtRiskEvent {
	return StudentAtRiskEvent{
		BaseEvent: NewBaseEvent(EventStudentAtRisk, studentID),
		StudentID: studentID,
		RiskLevel: level,
		Score:     score,
		Reasons:   reasons,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
