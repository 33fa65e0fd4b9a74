// Package jobs contains the ledger's scheduled jobs.
package jobs

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
)

// FeatureGate reports whether a feature is enabled for a student.
type FeatureGate interface {
	IsEnabledFor(featureName, studentID string) bool
}

// BatchConfig controls how a job walks the student table.
type BatchConfig struct {
	// PageSize is the number of students loaded per List call.
	PageSize int

	// Workers bounds students processed concurrently within a page.
	Workers int
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// batchStats counts the outcome of a full pass.
type batchStats struct {
	processed atomic.Int64
	failed    atomic.Int64
}

// forEachStudent pages through every student and calls fn for each one.
// A failure for one student is counted and does not stop the pass; a
// cancelled context or a List error does.
func forEachStudent(
	ctx context.Context,
	repo ledger.StudentRepository,
	cfg BatchConfig,
	fn func(ctx context.Context, student ledger.StudentProfile) error,
) (*batchStats, error) {
	cfg = cfg.withDefaults()
	stats := &batchStats{}

	for offset := 0; ; offset += cfg.PageSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		page, err := repo.List(ctx, ledger.ListOptions{Offset: offset, Limit: cfg.PageSize})
		if err != nil {
			return stats, err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Workers)
		for _, student := range page {
			g.Go(func() error {
				if err := fn(gctx, student); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					stats.failed.Add(1)
					return nil
				}
				stats.processed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}

		if len(page) < cfg.PageSize {
			return stats, nil
		}
	}
}
