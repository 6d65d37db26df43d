package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"db_path": "/tmp/lobby.db",
		"listen_addr": "127.0.0.1:7000",
		"minimum_participants": 4,
		"countdown": {"total_sec": 30, "far_step_sec": 10, "near_step_sec": 1, "near_from_sec": 5},
		"rearm_on_join": true,
		"abilities": {"firespit": 1500},
		"log_format": "json"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/lobby.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ListenAddr != "127.0.0.1:7000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.MinimumParticipants != 4 {
		t.Errorf("MinimumParticipants = %d, want 4", cfg.MinimumParticipants)
	}
	if cfg.Countdown.TotalSec != 30 || cfg.Countdown.NearFromSec != 5 {
		t.Errorf("Countdown = %+v", cfg.Countdown)
	}
	if !cfg.RearmOnJoin {
		t.Error("RearmOnJoin should be true")
	}
	if got := cfg.AbilityCooldowns()["firespit"]; got != 1500*time.Millisecond {
		t.Errorf("firespit cooldown = %v", got)
	}
	// untouched fields keep their defaults
	if cfg.TickIntervalMS != 50 || cfg.StartingDelaySec != 3 {
		t.Errorf("defaults lost: tick=%d delay=%d", cfg.TickIntervalMS, cfg.StartingDelaySec)
	}
}

func TestLoadValidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
db_path: lobby.db
minimum_participants: 2
starting_delay_sec: 5
messages:
  started: "Go!"
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinimumParticipants != 2 {
		t.Errorf("MinimumParticipants = %d", cfg.MinimumParticipants)
	}
	if cfg.StartingDelay() != 5*time.Second {
		t.Errorf("StartingDelay = %v", cfg.StartingDelay())
	}
	if cfg.Messages.Started != "Go!" {
		t.Errorf("Messages.Started = %q", cfg.Messages.Started)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v", cfg.SlogLevel())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty db path", `{"db_path": ""}`},
		{"negative minimum", `{"minimum_participants": -1}`},
		{"zero countdown step", `{"countdown": {"total_sec": 20, "far_step_sec": 0, "near_step_sec": 1, "near_from_sec": 4}}`},
		{"near window too wide", `{"countdown": {"total_sec": 4, "far_step_sec": 2, "near_step_sec": 1, "near_from_sec": 4}}`},
		{"negative starting delay", `{"starting_delay_sec": -2}`},
		{"zero ability wait", `{"abilities": {"leap": 0}}`},
		{"unknown log level", `{"log_level": "chatty"}`},
		{"unknown log format", `{"log_format": "xml"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "config.json", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestLoadExplicitZeroMinimum(t *testing.T) {
	path := writeFile(t, "config.json", `{"minimum_participants": 0}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinimumParticipants != 0 {
		t.Errorf("MinimumParticipants = %d, want 0", cfg.MinimumParticipants)
	}
}

func TestLoadAppliesDefaultsForBlankFields(t *testing.T) {
	path := writeFile(t, "config.json", `{"listen_addr": "", "log_level": "", "tick_interval_ms": 0}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9810" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.TickInterval() != 50*time.Millisecond {
		t.Errorf("TickInterval = %v", cfg.TickInterval())
	}
	if cfg.NotifyTimeout() != 2*time.Second {
		t.Errorf("NotifyTimeout = %v", cfg.NotifyTimeout())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"minimum_participants": 2}`)
	t.Setenv("LOBBYD_MINIMUM_PARTICIPANTS", "6")
	t.Setenv("LOBBYD_COUNTDOWN_TOTAL_SEC", "40")
	t.Setenv("LOBBYD_ABILITIES", "firespit:500,leap:9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinimumParticipants != 6 {
		t.Errorf("MinimumParticipants = %d, want 6", cfg.MinimumParticipants)
	}
	if cfg.Countdown.TotalSec != 40 {
		t.Errorf("Countdown.TotalSec = %d, want 40", cfg.Countdown.TotalSec)
	}
	waits := cfg.AbilityCooldowns()
	if waits["firespit"] != 500*time.Millisecond || waits["leap"] != 9*time.Second {
		t.Errorf("AbilityCooldowns = %v", waits)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LOBBYD_DB_PATH", "env.db")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DBPath != "env.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Countdown.TotalSec != 20 {
		t.Errorf("Countdown.TotalSec = %d, want 20", cfg.Countdown.TotalSec)
	}
}

func TestFromEnvMalformedValue(t *testing.T) {
	t.Setenv("LOBBYD_TICK_INTERVAL_MS", "fast")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected env parse error")
	}
}

func TestResolveOrder(t *testing.T) {
	t.Setenv(EnvConfigPath, "/from/env.json")
	if got := Resolve("/explicit.json"); got != "/explicit.json" {
		t.Errorf("explicit: got %q", got)
	}
	if got := Resolve(""); got != "/from/env.json" {
		t.Errorf("env: got %q", got)
	}
}
