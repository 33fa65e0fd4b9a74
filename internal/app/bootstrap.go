// Package app wires configuration into the storage, cache, event bus and
// ledger shared by the server, the worker and ledgerctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/starboard-tutoring/pointsledger/config"
	"github.com/starboard-tutoring/pointsledger/internal/application/command"
	"github.com/starboard-tutoring/pointsledger/internal/application/eventhandler"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/messaging"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/persistence/demo"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/persistence/memory"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/persistence/postgres"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/persistence/redis"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/persistence/sqlite"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
	"github.com/starboard-tutoring/pointsledger/pkg/retry"
)

// NewLogger builds the process logger from the observability settings and
// installs it as the slog default.
func NewLogger(cfg *config.Config, service string) *slog.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.Observability.LogFormat == string(logger.FormatJSON) {
		opts.Format = logger.FormatJSON
	}
	opts.Attrs = []slog.Attr{
		slog.String("service", service),
		slog.String("version", cfg.App.Version),
		slog.String("env", string(cfg.App.Environment)),
	}

	log := logger.New(opts)
	slog.SetDefault(log)
	return log
}

// EventBus is the bus the application publishes to.
type EventBus interface {
	shared.EventBus
	Close() error
}

// Infrastructure holds everything built from configuration.
type Infrastructure struct {
	Config   *config.Config
	Logger   *slog.Logger
	Ledger   *ledger.Ledger
	Repo     ledger.StudentRepository
	Bus      EventBus
	Features *config.FeatureFlags

	// Checks are named dependency pings for the health endpoint.
	Checks map[string]func(ctx context.Context) error

	closers []func()
}

// Options adjust Build.
type Options struct {
	// Clock overrides the ledger clock. Used by tests and ledgerctl --demo.
	Clock func() time.Time

	// SkipRedis builds without cache and Pub/Sub even when configured.
	SkipRedis bool

	// AlertAtRisk subscribes the tutor alert handler to at-risk events. Only
	// one process per deployment should set it, or alerts repeat per process.
	AlertAtRisk bool

	// Notifier receives the alerts. Nil logs them.
	Notifier eventhandler.Notifier
}

// Build connects to the configured store, optionally wraps it with the Redis
// cache and picks the event bus. Close must be called on success.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*Infrastructure, error) {
	if log == nil {
		log = slog.Default()
	}

	var ledgerOpts []ledger.Option
	if opts.Clock != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithClock(opts.Clock))
	}

	infra := &Infrastructure{
		Config:   cfg,
		Logger:   log,
		Ledger:   ledger.New(cfg.Ledger.Rules, ledgerOpts...),
		Features: cfg.Features,
		Checks:   make(map[string]func(ctx context.Context) error),
	}
	if infra.Features == nil {
		infra.Features = config.LoadFeatureFlags()
	}

	if err := infra.openStore(ctx); err != nil {
		infra.Close()
		return nil, err
	}

	if cfg.Database.SeedDemo {
		now := time.Now
		if opts.Clock != nil {
			now = opts.Clock
		}
		if err := SeedDemo(ctx, infra.Repo, now()); err != nil {
			infra.Close()
			return nil, err
		}
	}

	if err := infra.openRedis(opts.SkipRedis); err != nil {
		infra.Close()
		return nil, err
	}

	_ = infra.Bus.SubscribeAll(eventhandler.NewAuditLogHandler(log).Handle)

	if opts.AlertAtRisk {
		alerts := eventhandler.DefaultRiskAlertConfig()
		if cfg.Scheduler.RiskAlertCooldown > 0 {
			alerts.Cooldown = cfg.Scheduler.RiskAlertCooldown
		}
		atRisk := eventhandler.NewOnStudentAtRiskHandler(opts.Notifier, alerts, log)
		if opts.Clock != nil {
			atRisk.WithClock(opts.Clock)
		}
		_ = infra.Bus.Subscribe(shared.EventStudentAtRisk, atRisk.Handle)
	}

	return infra, nil
}

func (i *Infrastructure) openStore(ctx context.Context) error {
	db := i.Config.Database

	switch db.Driver {
	case config.DriverMemory:
		i.Repo = memory.NewStudentRepository()
		i.Logger.Info("using in-memory student store")

	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(db.URL)
		if db.MaxOpenConns > 0 {
			pgCfg.MaxConns = int32(db.MaxOpenConns)
		}
		if db.MinConns > 0 {
			pgCfg.MinConns = int32(db.MinConns)
		}
		pgCfg.MaxConnLifetime = db.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = db.ConnMaxIdleTime

		var conn *postgres.Connection
		err := retry.DatabaseRetrier().Do(ctx, func(ctx context.Context) error {
			var err error
			conn, err = postgres.NewConnection(ctx, pgCfg)
			if err != nil {
				i.Logger.Warn("postgres not reachable yet", "error", err)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		i.closers = append(i.closers, conn.Close)
		i.Checks["postgres"] = conn.Ping

		if db.AutoMigrate {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
			i.Logger.Info("postgres schema is up to date", "applied", applied)
		}
		i.Repo = postgres.NewStudentRepository(conn)

	case config.DriverSQLite:
		sdb, err := sqlite.Open(ctx, db.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		i.closers = append(i.closers, func() { _ = sdb.Close() })
		i.Checks["sqlite"] = sdb.PingContext
		i.Repo = sqlite.NewStudentRepository(sdb)
		i.Logger.Info("using sqlite student store", "path", sdb.Path())

	default:
		return fmt.Errorf("unknown database driver %q", db.Driver)
	}
	return nil
}

func (i *Infrastructure) openRedis(skip bool) error {
	rc := i.Config.Redis
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = i.Logger

	if skip || rc.Disabled {
		i.Bus = messaging.NewInMemoryEventBus(busCfg)
		i.closers = append(i.closers, func() { _ = i.Bus.Close() })
		return nil
	}

	cacheCfg := redis.Config{
		URL:          rc.URL,
		Host:         rc.Host,
		Port:         rc.Port,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		MaxRetries:   3,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	}
	cache, err := redis.NewCache(cacheCfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	i.closers = append(i.closers, func() { _ = cache.Close() })
	i.Checks["redis"] = cache.Ping

	if i.Features.IsEnabled(config.FeatureRedisCache, nil) {
		i.Repo = redis.NewCachedRepository(i.Repo, redis.NewStudentCache(cache), redis.CachedRepositoryConfig{
			TTL:    rc.CacheTTL,
			Logger: i.Logger,
		})
		i.Logger.Info("student profile cache enabled", "ttl", rc.CacheTTL.String())
	}

	if !i.Features.IsEnabled(config.FeatureEventPublishing, nil) {
		i.Bus = messaging.NewInMemoryEventBus(busCfg)
		i.closers = append(i.closers, func() { _ = i.Bus.Close() })
		return nil
	}

	// Pub/Sub holds its own connections; keep them out of the cache pool.
	opts, err := cacheCfg.Options()
	if err != nil {
		return err
	}
	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         messaging.NewGoRedisClient(goredis.NewClient(opts)),
		ChannelName:    rc.EventChannel,
		LocalBusConfig: busCfg,
		Logger:         i.Logger,
	})
	if err != nil {
		return fmt.Errorf("start redis event bus: %w", err)
	}
	i.Bus = bus
	i.closers = append(i.closers, func() { _ = bus.Close() })
	i.Logger.Info("publishing ledger events to redis", "channel", rc.EventChannel)
	return nil
}

// HandlerConfig returns the command handler configuration for this
// infrastructure.
func (i *Infrastructure) HandlerConfig() command.HandlerConfig {
	return command.HandlerConfig{
		Repo:            i.Repo,
		Ledger:          i.Ledger,
		Publisher:       i.Bus,
		Features:        i.Features,
		MaxSaveAttempts: i.Config.Ledger.MaxSaveAttempts,
		Logger:          i.Logger,
	}
}

// Close releases resources in reverse order of acquisition.
func (i *Infrastructure) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
	i.closers = nil
}

// SeedDemo inserts the demo students into an empty store.
func SeedDemo(ctx context.Context, repo ledger.StudentRepository, now time.Time) error {
	n, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count students: %w", err)
	}
	if n > 0 {
		return nil
	}
	for _, s := range demo.Students(now) {
		if err := repo.Create(ctx, s); err != nil && !errors.Is(err, shared.ErrAlreadyExists) {
			return fmt.Errorf("seed %s: %w", s.ID, err)
		}
	}
	return nil
}
