package redis

import (
	"context"
	"time"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
)

// jsonStore is the part of Cache the student cache uses.
type jsonStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// StudentCache implements ledger.Cache on top of the JSON cache.
type StudentCache struct {
	store jsonStore
}

// NewStudentCache creates a new StudentCache.
func NewStudentCache(cache *Cache) *StudentCache {
	return &StudentCache{store: cache}
}

// Get returns the cached profile or ErrCacheMiss.
func (s *StudentCache) Get(ctx context.Context, studentID string) (ledger.StudentProfile, error) {
	var profile ledger.StudentProfile
	if err := s.store.Get(ctx, StudentKey(studentID), &profile); err != nil {
		return ledger.StudentProfile{}, err
	}
	return profile, nil
}

// Set caches the profile. A zero ttl means TTLStudentCache.
func (s *StudentCache) Set(ctx context.Context, student ledger.StudentProfile, ttl time.Duration) error {
	if ttl == 0 {
		ttl = TTLStudentCache
	}
	return s.store.Set(ctx, StudentKey(student.ID), student, ttl)
}

// Invalidate drops the cached profile.
func (s *StudentCache) Invalidate(ctx context.Context, studentID string) error {
	return s.store.Delete(ctx, StudentKey(studentID))
}
