// Package main is the entry point of the points ledger API server.
//
// The server exposes the ledger over HTTP: penalties, waivers, manual and
// automatic bonuses, risk assessments and penalty summaries. Storage is
// selected by DATABASE_DRIVER (memory, postgres or sqlite); Redis adds a
// profile cache and Pub/Sub fan-out of ledger events when enabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/starboard-tutoring/pointsledger/config"
	"github.com/starboard-tutoring/pointsledger/internal/app"
	"github.com/starboard-tutoring/pointsledger/internal/application/command"
	"github.com/starboard-tutoring/pointsledger/internal/application/query"
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

	log := app.NewLogger(cfg, "pointsledger-server")
	log.Info("starting points ledger server",
		"env", cfg.App.Environment,
		"driver", cfg.Database.Driver,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE, CACHE AND EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing infrastructure...")
		infra.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	handlerCfg := infra.HandlerConfig()

	health := httpserver.NewHealthChecker(cfg.App.Version)
	for name, check := range infra.Checks {
		health.AddCheck(name, check)
	}

	serverCfg := httpserver.Config{
		Addr:           cfg.HTTP.Addr(),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}
	if cfg.Observability.MetricsEnabled {
		serverCfg.MetricsPath = cfg.Observability.MetricsPath
	}

	server := httpserver.NewServer(serverCfg, httpserver.Dependencies{
		ApplyPenalty:      command.NewApplyPenaltyHandler(handlerCfg),
		WaivePenalty:      command.NewWaivePenaltyHandler(handlerCfg),
		AwardBonus:        command.NewAwardBonusHandler(handlerCfg),
		RunBonusChecks:    command.NewRunBonusChecksHandler(handlerCfg),
		GetStudent:        query.NewGetStudentHandler(infra.Repo),
		GetRisk:           query.NewGetRiskHandler(infra.Repo, infra.Ledger),
		GetPenaltySummary: query.NewGetPenaltySummaryHandler(infra.Repo, infra.Ledger),
		PreviewPenalty:    query.NewPreviewPenaltyHandler(infra.Ledger),
		Health:            health,
		Logger:            log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. SERVE UNTIL SIGNAL
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.Error("server error", "error", err)
			return err
		}
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}
