package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/starboard-tutoring/pointsledger/config"
	"github.com/starboard-tutoring/pointsledger/internal/app"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// cli holds the global flags and the lazily built infrastructure.
type cli struct {
	rulesFile string
	demo      bool
	output    string
	verbose   bool

	now func() time.Time

	cfg   *config.Config
	infra *app.Infrastructure
	log   *slog.Logger
}

func newCLI() *cli {
	return &cli{now: time.Now}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Administer the student points ledger",
		Long: `ledgerctl applies penalties and bonuses, waives penalties and inspects
students against the configured store.

The store is chosen by DATABASE_DRIVER exactly as for the server. Use --demo
to work against an in-memory store seeded with demo students instead.

Examples:
  ledgerctl calc --points 1240 --type missed-session --offense 2
  ledgerctl --demo penalty apply stu-ada --type late-homework
  ledgerctl --demo risk stu-grace -o json
  ledgerctl --rules rules.toml summary stu-ada --days 30`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.configure(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.rulesFile, "rules", "", "TOML rules file merged over the default rules")
	flags.BoolVar(&c.demo, "demo", false, "Use an in-memory store seeded with demo students")
	flags.StringVarP(&c.output, "output", "o", "text", "Output format (text, json)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newMigrateCmd(c),
		newCalcCmd(c),
		newPenaltyCmd(c),
		newBonusCmd(c),
		newRiskCmd(c),
		newSummaryCmd(c),
		newStudentsCmd(c),
	)
	return root
}

// configure loads configuration. --demo ignores the environment's store
// settings; --rules overrides LEDGER_RULES_FILE.
func (c *cli) configure(cmd *cobra.Command) error {
	if c.output != "text" && c.output != "json" {
		return fmt.Errorf("unknown output format %q (want text or json)", c.output)
	}

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	c.log = logger.New(logger.Options{
		Level:  level,
		Format: logger.FormatText,
		Output: cmd.ErrOrStderr(),
	})

	if c.demo {
		c.cfg = &config.Config{
			App:      config.AppConfig{Name: "ledgerctl", Environment: config.EnvDevelopment},
			Database: config.DatabaseConfig{Driver: config.DriverMemory, SeedDemo: true},
			Redis:    config.RedisConfig{Disabled: true},
			Ledger: config.LedgerConfig{
				Rules:           ledger.DefaultConfig(),
				MaxSaveAttempts: 5,
			},
			Features: config.LoadFeatureFlags(),
		}
	} else {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		c.cfg = cfg
	}

	if c.rulesFile != "" {
		rules, err := config.LoadRules(c.rulesFile)
		if err != nil {
			return err
		}
		c.cfg.Ledger.RulesFile = c.rulesFile
		c.cfg.Ledger.Rules = rules
	}
	return nil
}

// ledger returns a ledger for commands that do not touch the store.
func (c *cli) ledger() *ledger.Ledger {
	return ledger.New(c.cfg.Ledger.Rules, ledger.WithClock(c.now))
}

// open builds the store on first use. Redis is skipped; the CLI reads and
// writes through to the database.
func (c *cli) open(ctx context.Context) (*app.Infrastructure, error) {
	if c.infra != nil {
		return c.infra, nil
	}
	infra, err := app.Build(ctx, c.cfg, c.log, app.Options{Clock: c.now, SkipRedis: true})
	if err != nil {
		return nil, err
	}
	c.infra = infra
	return infra, nil
}

func (c *cli) close() {
	if c.infra != nil {
		c.infra.Close()
		c.infra = nil
	}
}

// print writes v as indented JSON, or calls text for the text format.
func (c *cli) print(w io.Writer, v interface{}, text func(w io.Writer)) error {
	if c.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
