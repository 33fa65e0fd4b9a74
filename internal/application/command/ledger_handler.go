// Package command contains the ledger write operations (CQRS - Commands).
//
// Every command follows the same shape: load the student, run the pure ledger
// function, save with the version the student was loaded at, then publish
// events and record metrics. A lost optimistic-lock race reloads and reapplies.
package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/observability"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
	"github.com/starboard-tutoring/pointsledger/pkg/retry"
)

// DefaultMaxSaveAttempts bounds the load-apply-save loop.
const DefaultMaxSaveAttempts = 5

// FeatureGate reports whether a feature is enabled for a student.
// *config.FeatureFlags satisfies it.
type FeatureGate interface {
	IsEnabledFor(featureName, studentID string) bool
}

// HandlerConfig holds the collaborators shared by all ledger commands.
type HandlerConfig struct {
	Repo   ledger.StudentRepository
	Ledger *ledger.Ledger

	// Publisher is optional. Events are dropped when nil.
	Publisher shared.EventPublisher

	// Features is optional. Every feature is enabled when nil.
	Features FeatureGate

	MaxSaveAttempts int
	Logger          *slog.Logger
}

// base implements the load-apply-save loop.
type base struct {
	repo      ledger.StudentRepository
	ledger    *ledger.Ledger
	publisher shared.EventPublisher
	features  FeatureGate
	retrier   *retry.Retrier
	logger    *slog.Logger
}

func newBase(cfg HandlerConfig, name string) base {
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New(ledger.DefaultConfig())
	}
	if cfg.MaxSaveAttempts <= 0 {
		cfg.MaxSaveAttempts = DefaultMaxSaveAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return base{
		repo:      cfg.Repo,
		ledger:    cfg.Ledger,
		publisher: cfg.Publisher,
		features:  cfg.Features,
		retrier:   retry.ConflictRetrier(cfg.MaxSaveAttempts, shared.IsConflict),
		logger:    cfg.Logger.With(logger.Component("command"), slog.String("command", name)),
	}
}

// mutation applies a ledger change to a freshly loaded student. Returning
// changed=false skips the save.
type mutation func(student ledger.StudentProfile) (updated ledger.StudentProfile, changed bool, err error)

// update loads the student, applies fn and saves. On a version conflict the
// whole sequence runs again against the reloaded student.
func (b base) update(ctx context.Context, op, studentID string, fn mutation) (ledger.StudentProfile, bool, error) {
	var (
		result  ledger.StudentProfile
		changed bool
	)

	err := b.retrier.Do(ctx, func(ctx context.Context) error {
		student, err := b.repo.GetByID(ctx, studentID)
		if err != nil {
			return err
		}

		updated, ok, err := fn(student)
		if err != nil {
			return err
		}
		if !ok {
			result, changed = student, false
			return nil
		}

		saved, err := b.repo.Save(ctx, updated)
		if err != nil {
			if shared.IsConflict(err) {
				observability.OptimisticConflicts.WithLabelValues(op).Inc()
				b.logger.Debug("version conflict, reloading", logger.Operation(op), logger.StudentID(studentID), "version", updated.Version)
			}
			return err
		}

		result, changed = saved, true
		return nil
	})
	if err != nil {
		return ledger.StudentProfile{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return result, changed, nil
}

func (b base) enabled(feature, studentID string) bool {
	return b.features == nil || b.features.IsEnabledFor(feature, studentID)
}

func (b base) publish(ctx context.Context, events ...shared.Event) {
	if b.publisher == nil {
		return
	}
	for _, event := range events {
		if err := b.publisher.Publish(event); err != nil {
			b.logger.WarnContext(ctx, "failed to publish event",
				"event_type", event.EventType(),
				logger.StudentID(event.AggregateID()),
				logger.Err(err),
			)
		}
	}
}
