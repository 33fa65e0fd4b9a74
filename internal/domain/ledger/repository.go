package ledger

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository loads and stores student profiles together with their
// penalty and bonus histories.
type StudentRepository interface {
	// Create stores a new profile. Returns ErrStudentAlreadyExists on duplicates.
	Create(ctx context.Context, student StudentProfile) error

	// GetByID returns the profile with its full history.
	// Returns ErrStudentNotFound if the student does not exist.
	GetByID(ctx context.Context, id string) (StudentProfile, error)

	// Save persists the profile if the stored version equals student.Version
	// and returns the profile with the bumped version. A mismatch returns
	// shared.ErrOptimisticLock and stores nothing.
	//
	// Penalty records are append-only; for existing records only the waive
	// fields are written. Bonus records are insert-only.
	Save(ctx context.Context, student StudentProfile) (StudentProfile, error)

	// List returns profiles ordered by id.
	List(ctx context.Context, opts ListOptions) ([]StudentProfile, error)

	// Count returns the number of students.
	Count(ctx context.Context) (int, error)
}

// ListOptions controls pagination.
type ListOptions struct {
	Offset int
	Limit  int
}

// DefaultListOptions returns the default page.
func DefaultListOptions() ListOptions {
	return ListOptions{Offset: 0, Limit: 100}
}

// WithOffset sets the offset.
func (o ListOptions) WithOffset(offset int) ListOptions {
	o.Offset = offset
	return o
}

// WithLimit sets the limit.
func (o ListOptions) WithLimit(limit int) ListOptions {
	o.Limit = limit
	return o
}

// Cache keeps hot profiles for read paths.
type Cache interface {
	Get(ctx context.Context, studentID string) (StudentProfile, error)
	Set(ctx context.Context, student StudentProfile, ttl time.Duration) error
	Invalidate(ctx context.Context, studentID string) error
}
