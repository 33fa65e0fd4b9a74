// Package memory implements an in-process StudentRepository. It backs the
// demo mode and the application and HTTP tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
)

// StudentRepository keeps profiles in a map guarded by a mutex. Profiles are
// cloned on the way in and out so callers never share history slices.
type StudentRepository struct {
	mu       sync.RWMutex
	students map[string]ledger.StudentProfile
}

// Compile-time check.
var _ ledger.StudentRepository = (*StudentRepository)(nil)

// NewStudentRepository creates a repository pre-filled with seed.
func NewStudentRepository(seed ...ledger.StudentProfile) *StudentRepository {
	r := &StudentRepository{
		students: make(map[string]ledger.StudentProfile, len(seed)),
	}
	for _, s := range seed {
		r.students[s.ID] = s.Clone()
	}
	return r
}

// Create stores a new profile.
func (r *StudentRepository) Create(ctx context.Context, student ledger.StudentProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if student.ID == "" {
		return shared.ErrInvalidStudentID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.students[student.ID]; ok {
		return shared.ErrStudentAlreadyExists
	}
	stored := student.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	r.students[student.ID] = stored
	return nil
}

// GetByID returns a copy of the stored profile.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (ledger.StudentProfile, error) {
	if err := ctx.Err(); err != nil {
		return ledger.StudentProfile{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.students[id]
	if !ok {
		return ledger.StudentProfile{}, shared.ErrStudentNotFound
	}
	return s.Clone(), nil
}

// Save replaces the stored profile if the versions match.
func (r *StudentRepository) Save(ctx context.Context, student ledger.StudentProfile) (ledger.StudentProfile, error) {
	if err := ctx.Err(); err != nil {
		return ledger.StudentProfile{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.students[student.ID]
	if !ok {
		return ledger.StudentProfile{}, shared.ErrStudentNotFound
	}
	if stored.Version != student.Version {
		return ledger.StudentProfile{}, shared.ErrStudentVersionStale
	}

	saved := student.Clone()
	saved.Version = stored.Version + 1
	r.students[saved.ID] = saved
	return saved.Clone(), nil
}

// List returns profiles ordered by id.
func (r *StudentRepository) List(ctx context.Context, opts ledger.ListOptions) ([]ledger.StudentProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	ids := make([]string, 0, len(r.students))
	for id := range r.students {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := min(max(opts.Offset, 0), len(ids))
	end := len(ids)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, len(ids))
	}

	out := make([]ledger.StudentProfile, 0, end-start)
	for _, id := range ids[start:end] {
		out = append(out, r.students[id].Clone())
	}
	r.mu.RUnlock()

	return out, nil
}

// Count returns the number of stored profiles.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students), nil
}
