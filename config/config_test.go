package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.True(t, cfg.Database.SeedDemo)
	assert.True(t, cfg.Redis.Disabled)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, 5, cfg.Ledger.MaxSaveAttempts)
	assert.Equal(t, ledger.DefaultConfig(), cfg.Ledger.Rules)
	assert.True(t, cfg.Features.IsEnabled(FeatureAutomaticBonuses, nil))
	assert.False(t, cfg.Scheduler.AdminEnabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://ledger:secret@db:5432/ledger")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("SCHEDULER_RISK_INTERVAL", "30m")
	t.Setenv("SCHEDULER_ADMIN_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.False(t, cfg.Database.SeedDemo)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.DetectAtRiskInterval)
	assert.True(t, cfg.Scheduler.AdminEnabled)
	assert.Equal(t, time.UTC, cfg.App.Location)
}

func TestLoad_ValidationErrorsAreAggregated(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("HTTP_PORT", "70000")
	t.Setenv("LEDGER_MAX_SAVE_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "HTTP_PORT")
	assert.Contains(t, err.Error(), "LEDGER_MAX_SAVE_ATTEMPTS")
}

func TestLoad_Telegram(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_ALERT_CHAT_ID", "-100200300")
	t.Setenv("SCHEDULER_RISK_CRON", "0 6 * * *")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Telegram.Enabled())
	assert.Equal(t, int64(-100200300), cfg.Telegram.AlertChatID)
	assert.Equal(t, "0 6 * * *", cfg.Scheduler.DetectAtRiskCron)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.RiskAlertCooldown)
}

func TestLoad_TelegramNeedsChatID(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_ALERT_CHAT_ID")

	t.Setenv("TELEGRAM_ALERT_CHAT_ID", "general")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_MemoryDriverRejectedInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory")
}

func TestLoadRules_EmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultConfig(), rules)
}

func TestLoadRules_MergesOverDefaults(t *testing.T) {
	path := writeRules(t, `
[penalties.missed_session.first]
percentage = 7.0
min_points = 15
max_points = 60

[penalties.streak_break]
max_percentage = 3.0

[bonuses]
streak_milestones = [5, 14]

[bonuses.defaults]
clean_week = 45
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, ledger.Tier{Percentage: 7, MinPoints: 15, MaxPoints: 60}, rules.Penalties.MissedSession.First)
	assert.Equal(t, 3.0, rules.Penalties.StreakBreak.MaxPercentage)
	assert.Equal(t, 5, rules.Penalties.StreakBreak.MinPoints)
	assert.Equal(t, ledger.DefaultPenaltyConfig().MissedSession.Repeat, rules.Penalties.MissedSession.Repeat)
	assert.Equal(t, []int{5, 14}, rules.Bonuses.StreakMilestones)
	assert.Equal(t, 45, rules.Bonuses.Defaults.CleanWeek)
	assert.Equal(t, 100, rules.Bonuses.Defaults.CleanMonth)
}

func TestLoadRules_RejectsUnknownKeys(t *testing.T) {
	path := writeRules(t, `
[penalties.missed_sesion.first]
percentage = 7.0
`)

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}

func TestLoadRules_RejectsInvalidTiers(t *testing.T) {
	path := writeRules(t, `
[penalties.no_homework.first]
min_points = 500
max_points = 10
`)

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_homework.first")
}

func TestLoad_RulesFileFromEnvironment(t *testing.T) {
	t.Setenv("LEDGER_RULES_FILE", writeRules(t, "[bonuses.defaults]\nperfect_session = 10\n"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Ledger.Rules.Bonuses.Defaults.PerfectSession)
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_LEDGER_RISK_DETECTION", "false")
	t.Setenv("FEATURE_LEDGER_EVENT_PUBLISHING", "true")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureRiskDetection, nil))
	assert.True(t, ff.IsEnabled(FeatureEventPublishing, nil))
	assert.True(t, ff.IsEnabled(FeatureRiskDetection, &FeatureContext{IsAdmin: true}))
	assert.False(t, ff.IsEnabled("ledger.unknown", nil))

	ff.SetStudentOverride("stu-1", FeatureRiskDetection, true)
	assert.True(t, ff.IsEnabledFor(FeatureRiskDetection, "stu-1"))
	ff.ClearStudentOverrides("stu-1")
	assert.False(t, ff.IsEnabledFor(FeatureRiskDetection, "stu-1"))
}

func TestFeatureFlags_RolloutIsStable(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureAutomaticBonuses, 50))

	enabled := 0
	for i := 0; i < 200; i++ {
		id := "stu-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		first := ff.IsEnabledFor(FeatureAutomaticBonuses, id)
		assert.Equal(t, first, ff.IsEnabledFor(FeatureAutomaticBonuses, id))
		if first {
			enabled++
		}
	}
	assert.Greater(t, enabled, 0)
	assert.Less(t, enabled, 200)

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureAutomaticBonuses, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.EnableFeature("ledger.unknown"), ErrFeatureNotFound)
	assert.Len(t, ff.GetAllFeatures(), 4)
}
