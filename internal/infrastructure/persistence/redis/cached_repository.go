package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/observability"
	"github.com/starboard-tutoring/pointsledger/pkg/circuitbreaker"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// CachedRepository is a cache-aside decorator over a StudentRepository.
// Reads try the cache first; saves write through to the database and then
// refresh the cache. All cache calls go through a circuit breaker, and any
// cache failure falls back to the database without surfacing an error.
type CachedRepository struct {
	repo    ledger.StudentRepository
	cache   ledger.Cache
	breaker *circuitbreaker.CircuitBreaker
	ttl     time.Duration
	logger  *slog.Logger
}

// CachedRepositoryConfig configures the decorator.
type CachedRepositoryConfig struct {
	TTL time.Duration

	// Breaker defaults to circuitbreaker.CacheBreaker.
	Breaker *circuitbreaker.CircuitBreaker

	Logger *slog.Logger
}

// NewCachedRepository wraps repo with cache.
func NewCachedRepository(repo ledger.StudentRepository, cache ledger.Cache, cfg CachedRepositoryConfig) *CachedRepository {
	if cfg.TTL <= 0 {
		cfg.TTL = TTLStudentCache
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With(logger.Component("cached_repository"))
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			observability.ObserveCircuitBreaker(name, to.String())
			log.Warn("cache circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}

	return &CachedRepository{
		repo:    repo,
		cache:   cache,
		breaker: cfg.Breaker,
		ttl:     cfg.TTL,
		logger:  log,
	}
}

// Create stores the profile in the database only.
func (r *CachedRepository) Create(ctx context.Context, student ledger.StudentProfile) error {
	return r.repo.Create(ctx, student)
}

// GetByID reads through the cache.
func (r *CachedRepository) GetByID(ctx context.Context, id string) (ledger.StudentProfile, error) {
	var (
		cached ledger.StudentProfile
		hit    bool
	)
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		profile, err := r.cache.Get(ctx, id)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		if err != nil {
			return err
		}
		cached, hit = profile, true
		return nil
	})

	switch {
	case circuitbreaker.IsRejected(err):
		observability.CacheRequests.WithLabelValues(observability.CacheBypass).Inc()
	case err != nil:
		observability.CacheRequests.WithLabelValues(observability.CacheError).Inc()
		r.logger.Warn("cache read failed", logger.StudentID(id), logger.Err(err))
	case hit:
		observability.CacheRequests.WithLabelValues(observability.CacheHit).Inc()
		return cached, nil
	default:
		observability.CacheRequests.WithLabelValues(observability.CacheMiss).Inc()
	}

	profile, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return ledger.StudentProfile{}, err
	}
	r.store(ctx, profile)
	return profile, nil
}

// Save writes to the database, then refreshes the cache. If the refresh
// fails the entry is invalidated so stale versions are not served.
func (r *CachedRepository) Save(ctx context.Context, student ledger.StudentProfile) (ledger.StudentProfile, error) {
	saved, err := r.repo.Save(ctx, student)
	if err != nil {
		// A conflict means our cached copy may be behind.
		r.invalidate(ctx, student.ID)
		return ledger.StudentProfile{}, err
	}
	r.store(ctx, saved)
	return saved, nil
}

// List always reads from the database.
func (r *CachedRepository) List(ctx context.Context, opts ledger.ListOptions) ([]ledger.StudentProfile, error) {
	return r.repo.List(ctx, opts)
}

// Count always reads from the database.
func (r *CachedRepository) Count(ctx context.Context) (int, error) {
	return r.repo.Count(ctx)
}

func (r *CachedRepository) store(ctx context.Context, profile ledger.StudentProfile) {
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.cache.Set(ctx, profile, r.ttl)
	})
	if err != nil && !circuitbreaker.IsRejected(err) {
		r.logger.Warn("cache write failed", logger.StudentID(profile.ID), logger.Err(err))
		r.invalidate(ctx, profile.ID)
	}
}

func (r *CachedRepository) invalidate(ctx context.Context, id string) {
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.cache.Invalidate(ctx, id)
	})
	if err != nil && !circuitbreaker.IsRejected(err) {
		r.logger.Warn("cache invalidate failed", logger.StudentID(id), logger.Err(err))
	}
}
