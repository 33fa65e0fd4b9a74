// Package main is the entry point of the points ledger background worker.
//
// The worker runs two interval jobs over every student:
//   - automatic_bonuses awards streak, clean record, homework and attendance
//     bonuses through the same command the API uses;
//   - detect_at_risk scores disengagement risk, publishes an event for each
//     student at medium or high risk and refreshes the at-risk gauges.
//
// At-risk events become tutor alerts, sent to Telegram when
// TELEGRAM_BOT_TOKEN is set and logged otherwise. Either job can be put on a
// cron schedule with SCHEDULER_BONUS_CRON or SCHEDULER_RISK_CRON.
//
// Job metrics and a health endpoint are served on SCHEDULER_METRICS_ADDR.
// With SCHEDULER_ADMIN_ENABLED the same listener also serves /admin, which
// pauses, resumes and triggers jobs and changes feature flags at runtime.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starboard-tutoring/pointsledger/config"
	"github.com/starboard-tutoring/pointsledger/internal/app"
	"github.com/starboard-tutoring/pointsledger/internal/application/command"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/external/telegram"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/scheduler"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/starboard-tutoring/pointsledger/internal/interface/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Scheduler.Enabled {
		return errors.New("scheduler is disabled (SCHEDULER_ENABLED=false)")
	}

	log := app.NewLogger(cfg, "pointsledger-worker")
	log.Info("starting points ledger worker",
		"env", cfg.App.Environment,
		"driver", cfg.Database.Driver,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE, CACHE AND EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	opts := app.Options{AlertAtRisk: true}
	if cfg.Telegram.Enabled() {
		tg := telegram.DefaultClientConfig(cfg.Telegram.BotToken)
		if cfg.Telegram.BaseURL != "" {
			tg.BaseURL = cfg.Telegram.BaseURL
		}
		tg.Logger = log
		opts.Notifier = telegram.NewAlertNotifier(telegram.NewClient(tg), cfg.Telegram.AlertChatID)
		log.Info("tutor alerts go to telegram", "chat_id", cfg.Telegram.AlertChatID)
	}

	infra, err := app.Build(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing infrastructure...")
		infra.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. JOBS
	// ─────────────────────────────────────────────────────────────────────────
	batch := jobs.BatchConfig{PageSize: cfg.Scheduler.BatchSize}

	bonusChecks := command.NewRunBonusChecksHandler(infra.HandlerConfig())
	runBonuses := func(ctx context.Context, studentID string) (int, error) {
		res, err := bonusChecks.Handle(ctx, command.RunBonusChecksCommand{StudentID: studentID})
		if err != nil {
			return 0, err
		}
		return len(res.Awarded), nil
	}

	// The job checks the feature per student; the command checks it again.
	bonusJob := jobs.NewAutomaticBonusesJob(infra.Repo, runBonuses, infra.Features, batch, log)
	riskJob := jobs.NewDetectAtRiskJob(infra.Repo, infra.Ledger, infra.Bus, infra.Features, batch, log)

	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	schedCfg.MaxConcurrentJobs = cfg.Scheduler.MaxConcurrentJobs
	schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	sched := scheduler.NewScheduler(schedCfg)

	if err := register(sched, bonusJob, cfg.Scheduler.AutomaticBonusesCron, cfg.Scheduler.AutomaticBonusesInterval); err != nil {
		return err
	}
	if err := register(sched, riskJob, cfg.Scheduler.DetectAtRiskCron, cfg.Scheduler.DetectAtRiskInterval); err != nil {
		return err
	}

	sched.OnJobComplete(func(r scheduler.JobResult) {
		if !r.Success {
			log.Warn("job failed", "job", r.JobName, "duration", r.Duration.String(), "error", r.Error)
		}
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. METRICS ENDPOINT
	// ─────────────────────────────────────────────────────────────────────────
	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !sched.IsRunning() {
			http.Error(w, "scheduler stopped", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Observability.MetricsEnabled {
		router.Handle(cfg.Observability.MetricsPath, promhttp.Handler())
	}
	if cfg.Scheduler.AdminEnabled {
		router.Mount("/admin", httpserver.NewAdminHandler(httpserver.AdminDependencies{
			Jobs:     sched,
			Features: infra.Features,
			Logger:   log,
		}))
		log.Warn("admin API enabled", "address", cfg.Scheduler.MetricsAddr)
	}
	metricsServer := &http.Server{
		Addr:              cfg.Scheduler.MetricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("serving worker metrics", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. RUN UNTIL SIGNAL
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, info := range sched.ListJobs() {
		log.Info("job scheduled", "job", info.Name, "schedule", info.Schedule, "next_run", info.NextRun)
	}

	<-ctx.Done()
	log.Info("received shutdown signal", "timeout", cfg.App.ShutdownTimeout.String())

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop metrics server", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// register schedules job by cron expression when one is configured and by
// interval otherwise.
func register(s *scheduler.Scheduler, job scheduler.Job, cron string, every time.Duration) error {
	var (
		schedule scheduler.Schedule
		err      error
	)
	if cron != "" {
		schedule, err = scheduler.ParseSchedule(cron)
	} else {
		schedule, err = scheduler.NewIntervalSchedule(every)
	}
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	if err := s.Register(job, schedule); err != nil {
		return fmt.Errorf("register %s: %w", job.Name(), err)
	}
	return nil
}
