package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config groups every rule the ledger evaluates.
type Config struct {
	Penalties PenaltyConfig `toml:"penalties" json:"penalties"`
	Bonuses   BonusConfig   `toml:"bonuses" json:"bonuses"`
}

// DefaultConfig returns the production rule set.
func DefaultConfig() Config {
	return Config{
		Penalties: DefaultPenaltyConfig(),
		Bonuses:   DefaultBonusConfig(),
	}
}

// Validate checks both rule sets.
func (c Config) Validate() error {
	if err := c.Penalties.Validate(); err != nil {
		return fmt.Errorf("penalties: %w", err)
	}
	if err := c.Bonuses.Validate(); err != nil {
		return fmt.Errorf("bonuses: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger applies penalties and bonuses to student profiles.
// It is safe for concurrent use; it holds no mutable state.
type Ledger struct {
	cfg   Config
	clock func() time.Time
	ids   func(prefix string) string
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(gen func(prefix string) string) Option {
	return func(l *Ledger) {
		if gen != nil {
			l.ids = gen
		}
	}
}

// New creates a Ledger evaluating cfg.
func New(cfg Config, opts ...Option) *Ledger {
	l := &Ledger{
		cfg:   cfg,
		clock: func() time.Time { return time.Now().UTC() },
	}
	l.ids = l.defaultID
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the rule set this ledger evaluates.
func (l *Ledger) Config() Config {
	return l.cfg
}

func (l *Ledger) now() time.Time {
	return l.clock()
}

func (l *Ledger) newID(prefix string) string {
	return l.ids(prefix)
}

// defaultID derives an opaque id from the current time and a random suffix.
func (l *Ledger) defaultID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", prefix, l.now().UnixMilli(), suffix)
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// CalculatePenalty evaluates the configured penalty rules.
func (l *Ledger) CalculatePenalty(currentPoints int, t PenaltyType, offenseCount int) int {
	return CalculatePenalty(currentPoints, t, offenseCount, l.cfg.Penalties)
}

// ApplyPenalty records a penalty of type t and deducts its points.
// The offense count is one more than the student's active penalties of the
// same type. The input profile is not modified.
func (l *Ledger) ApplyPenalty(student StudentProfile, t PenaltyType, appliedBy Actor, customReason string) (StudentProfile, PenaltyRecord) {
	offense := student.ActiveOffenses(t) + 1
	deduction := l.CalculatePenalty(student.Points, t, offense)

	reason := customReason
	if reason == "" {
		reason = PenaltyReason(t, offense)
	}

	penalty := PenaltyRecord{
		ID:             l.newID("pen"),
		Type:           t,
		PointsDeducted: deduction,
		Reason:         reason,
		AppliedAt:      l.now(),
		AppliedBy:      appliedBy,
	}

	updated := student.Clone()
	updated.Stats.PenaltyHistory = append(updated.Stats.PenaltyHistory, penalty)
	updated.Points = max(0, student.Points-deduction)
	updated.UpdatedAt = penalty.AppliedAt

	return updated, penalty
}

// ApplyBonus appends the bonus and adds its points. There is no upper bound.
func (l *Ledger) ApplyBonus(student StudentProfile, bonus BonusRecord) StudentProfile {
	updated := student.Clone()
	updated.Stats.BonusHistory = append(updated.Stats.BonusHistory, bonus)
	updated.Points = student.Points + bonus.PointsAwarded
	updated.UpdatedAt = l.now()
	return updated
}

// WaivePenalty marks a penalty waived and restores its points. Unknown or
// already waived ids return the student unchanged.
func (l *Ledger) WaivePenalty(student StudentProfile, penaltyID, waivedBy, reason string) StudentProfile {
	idx := student.FindPenalty(penaltyID)
	if idx < 0 || student.Stats.PenaltyHistory[idx].Waived {
		return student
	}

	now := l.now()
	updated := student.Clone()

	p := &updated.Stats.PenaltyHistory[idx]
	p.Waived = true
	p.WaivedBy = waivedBy
	p.WaivedAt = &now
	p.WaivedReason = reason

	updated.Points = student.Points + p.PointsDeducted
	updated.UpdatedAt = now
	return updated
}

// RunAndApplyAutomaticBonuses evaluates the automatic rules and applies every
// bonus that fires.
func (l *Ledger) RunAndApplyAutomaticBonuses(student StudentProfile) (StudentProfile, []BonusRecord) {
	awards := l.RunAutomaticBonusChecks(student)
	updated := student
	for _, b := range awards {
		updated = l.ApplyBonus(updated, b)
	}
	return updated, awards
}

// PenaltyReason builds the default reason text, e.g.
// "Missed tutoring session (2x offense)".
func PenaltyReason(t PenaltyType, offenseCount int) string {
	if offenseCount > 1 {
		return fmt.Sprintf("%s (%dx offense)", t.Label(), offenseCount)
	}
	return t.Label()
}
