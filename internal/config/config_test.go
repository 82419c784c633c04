package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MATCHCORE_ADDR", "")
	t.Setenv("MATCHCORE_ALLOWED_ORIGINS", "")
	t.Setenv("MATCHCORE_TICK_RATE", "")
	t.Setenv("MATCHCORE_MATCH_DURATION", "")
	t.Setenv("MATCHCORE_GRACE_PERIOD", "")
	t.Setenv("MATCHCORE_MAX_SESSIONS", "")
	t.Setenv("MATCHCORE_TIE_POLICY", "")
	t.Setenv("MATCHCORE_AUDIT_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Address != DefaultAddr {
		t.Fatalf("expected default addr %q, got %q", DefaultAddr, cfg.Address)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins, got %#v", cfg.AllowedOrigins)
	}
	if cfg.TickRate != DefaultTickRate {
		t.Fatalf("expected default tick rate %d, got %d", DefaultTickRate, cfg.TickRate)
	}
	if cfg.MatchDuration != DefaultMatchDuration {
		t.Fatalf("expected default match duration %v, got %v", DefaultMatchDuration, cfg.MatchDuration)
	}
	if cfg.GracePeriod != DefaultGracePeriod {
		t.Fatalf("expected default grace period %v, got %v", DefaultGracePeriod, cfg.GracePeriod)
	}
	if cfg.MaxSessions != DefaultMaxSessions {
		t.Fatalf("expected default max sessions %d, got %d", DefaultMaxSessions, cfg.MaxSessions)
	}
	if cfg.Field.Width != DefaultFieldWidth || cfg.Field.Height != DefaultFieldHeight {
		t.Fatalf("unexpected field size %vx%v", cfg.Field.Width, cfg.Field.Height)
	}
	if cfg.Field.GoalMargin != DefaultGoalMargin {
		t.Fatalf("expected default goal margin %v, got %v", DefaultGoalMargin, cfg.Field.GoalMargin)
	}
	if cfg.Cheat.FlagLimit != DefaultFlagLimit || cfg.Cheat.FlagWindow != DefaultFlagWindow {
		t.Fatalf("unexpected cheat defaults limit=%d window=%v", cfg.Cheat.FlagLimit, cfg.Cheat.FlagWindow)
	}
	if cfg.TiePolicy != DefaultTiePolicy {
		t.Fatalf("expected default tie policy %q, got %q", DefaultTiePolicy, cfg.TiePolicy)
	}
	if cfg.AuditDir != "" {
		t.Fatalf("expected audit dir disabled by default, got %q", cfg.AuditDir)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Path != DefaultLogPath {
		t.Fatalf("unexpected logging defaults level=%q path=%q", cfg.Logging.Level, cfg.Logging.Path)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MATCHCORE_ADDR", "127.0.0.1:9000")
	t.Setenv("MATCHCORE_ALLOWED_ORIGINS", "https://example.com, https://demo.local")
	t.Setenv("MATCHCORE_TICK_RATE", "30")
	t.Setenv("MATCHCORE_MATCH_DURATION", "5m")
	t.Setenv("MATCHCORE_GRACE_PERIOD", "10s")
	t.Setenv("MATCHCORE_MAX_SESSIONS", "12")
	t.Setenv("MATCHCORE_FIELD_WIDTH", "1000")
	t.Setenv("MATCHCORE_GOAL_MARGIN", "25")
	t.Setenv("MATCHCORE_FLAG_LIMIT", "5")
	t.Setenv("MATCHCORE_FLAG_WINDOW", "30s")
	t.Setenv("MATCHCORE_TIE_POLICY", "void")
	t.Setenv("MATCHCORE_AUDIT_DIR", "/tmp/audit")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Address != "127.0.0.1:9000" {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://example.com" || cfg.AllowedOrigins[1] != "https://demo.local" {
		t.Fatalf("unexpected allowed origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.TickRate != 30 {
		t.Fatalf("expected tick rate 30, got %d", cfg.TickRate)
	}
	if cfg.MatchDuration != 5*time.Minute {
		t.Fatalf("expected match duration 5m, got %v", cfg.MatchDuration)
	}
	if cfg.GracePeriod != 10*time.Second {
		t.Fatalf("expected grace period 10s, got %v", cfg.GracePeriod)
	}
	if cfg.MaxSessions != 12 {
		t.Fatalf("expected max sessions 12, got %d", cfg.MaxSessions)
	}
	if cfg.Field.Width != 1000 {
		t.Fatalf("expected field width 1000, got %v", cfg.Field.Width)
	}
	if cfg.Field.GoalMargin != 25 {
		t.Fatalf("expected goal margin 25, got %v", cfg.Field.GoalMargin)
	}
	if cfg.Cheat.FlagLimit != 5 || cfg.Cheat.FlagWindow != 30*time.Second {
		t.Fatalf("unexpected cheat overrides limit=%d window=%v", cfg.Cheat.FlagLimit, cfg.Cheat.FlagWindow)
	}
	if cfg.TiePolicy != "void" {
		t.Fatalf("expected tie policy void, got %q", cfg.TiePolicy)
	}
	if cfg.AuditDir != "/tmp/audit" {
		t.Fatalf("expected audit dir override, got %q", cfg.AuditDir)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("MATCHCORE_TICK_RATE", "300")
	t.Setenv("MATCHCORE_MATCH_DURATION", "abc")
	t.Setenv("MATCHCORE_GRACE_PERIOD", "-5s")
	t.Setenv("MATCHCORE_MAX_SESSIONS", "-1")
	t.Setenv("MATCHCORE_FIELD_WIDTH", "0")
	t.Setenv("MATCHCORE_TIE_POLICY", "replay")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{
		"MATCHCORE_TICK_RATE",
		"MATCHCORE_MATCH_DURATION",
		"MATCHCORE_GRACE_PERIOD",
		"MATCHCORE_MAX_SESSIONS",
		"MATCHCORE_FIELD_WIDTH",
		"MATCHCORE_TIE_POLICY",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadIgnoresEmptyAllowedOrigins(t *testing.T) {
	t.Setenv("MATCHCORE_ALLOWED_ORIGINS", " , ,https://ok.example, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://ok.example" {
		t.Fatalf("expected single cleaned origin, got %#v", cfg.AllowedOrigins)
	}
}

func TestLoadAllowsUnlimitedSessions(t *testing.T) {
	t.Setenv("MATCHCORE_MAX_SESSIONS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.MaxSessions != 0 {
		t.Fatalf("expected zero to disable limit, got %d", cfg.MaxSessions)
	}
}

func TestTickInterval(t *testing.T) {
	cfg := &Config{TickRate: 60}
	if got := cfg.TickInterval(); got != time.Second/60 {
		t.Fatalf("expected %v, got %v", time.Second/60, got)
	}

	var nilCfg *Config
	if got := nilCfg.TickInterval(); got != time.Second/DefaultTickRate {
		t.Fatalf("expected default interval for nil config, got %v", got)
	}
}
