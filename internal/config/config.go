// Package config loads lobbyd settings from a JSON or YAML file and the
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/arenahall/lobbyd/internal/domain"
)

// EnvConfigPath names the variable holding an explicit config file path.
const EnvConfigPath = "LOBBYD_CONFIG"

// CountdownConfig is the start countdown cadence in seconds.
type CountdownConfig struct {
	TotalSec    int `json:"total_sec" yaml:"total_sec" env:"TOTAL_SEC"`
	FarStepSec  int `json:"far_step_sec" yaml:"far_step_sec" env:"FAR_STEP_SEC"`
	NearStepSec int `json:"near_step_sec" yaml:"near_step_sec" env:"NEAR_STEP_SEC"`
	NearFromSec int `json:"near_from_sec" yaml:"near_from_sec" env:"NEAR_FROM_SEC"`
}

// MessagesConfig overrides participant-facing texts. Empty fields keep the
// built-in text.
type MessagesConfig struct {
	Countdown    string `json:"countdown" yaml:"countdown" env:"COUNTDOWN"`
	Joined       string `json:"joined" yaml:"joined" env:"JOINED"`
	Quit         string `json:"quit" yaml:"quit" env:"QUIT"`
	InProgress   string `json:"in_progress" yaml:"in_progress" env:"IN_PROGRESS"`
	LoginLoading string `json:"login_loading" yaml:"login_loading" env:"LOGIN_LOADING"`
	Started      string `json:"started" yaml:"started" env:"STARTED"`
}

// Config holds the daemon's runtime configuration. Abilities maps a
// capability id to its wait in milliseconds. A RateLimitPerMinute of 0
// disables ingress throttling.
type Config struct {
	DBPath              string          `json:"db_path" yaml:"db_path" env:"LOBBYD_DB_PATH"`
	ListenAddr          string          `json:"listen_addr" yaml:"listen_addr" env:"LOBBYD_LISTEN_ADDR"`
	TickIntervalMS      int             `json:"tick_interval_ms" yaml:"tick_interval_ms" env:"LOBBYD_TICK_INTERVAL_MS"`
	MinimumParticipants int             `json:"minimum_participants" yaml:"minimum_participants" env:"LOBBYD_MINIMUM_PARTICIPANTS"`
	Countdown           CountdownConfig `json:"countdown" yaml:"countdown" envPrefix:"LOBBYD_COUNTDOWN_"`
	StartingDelaySec    int             `json:"starting_delay_sec" yaml:"starting_delay_sec" env:"LOBBYD_STARTING_DELAY_SEC"`
	RearmOnJoin         bool            `json:"rearm_on_join" yaml:"rearm_on_join" env:"LOBBYD_REARM_ON_JOIN"`
	Abilities           map[string]int  `json:"abilities" yaml:"abilities" env:"LOBBYD_ABILITIES" envKeyValSeparator:":"`
	Messages            MessagesConfig  `json:"messages" yaml:"messages" envPrefix:"LOBBYD_MESSAGES_"`
	LogLevel            string          `json:"log_level" yaml:"log_level" env:"LOBBYD_LOG_LEVEL"`
	LogFormat           string          `json:"log_format" yaml:"log_format" env:"LOBBYD_LOG_FORMAT"`
	NotifyTimeoutMS     int             `json:"notify_timeout_ms" yaml:"notify_timeout_ms" env:"LOBBYD_NOTIFY_TIMEOUT_MS"`
	RateLimitPerMinute  int             `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute" env:"LOBBYD_RATE_LIMIT_PER_MINUTE"`
	OTelEndpoint        string          `json:"otel_endpoint" yaml:"otel_endpoint" env:"LOBBYD_OTEL_ENDPOINT"`
}

// Default returns a runnable configuration.
func Default() Config {
	return Config{
		DBPath:              "lobbyd.db",
		ListenAddr:          ":9810",
		TickIntervalMS:      50,
		MinimumParticipants: 1,
		Countdown: CountdownConfig{
			TotalSec:    20,
			FarStepSec:  5,
			NearStepSec: 1,
			NearFromSec: 4,
		},
		StartingDelaySec:   3,
		LogLevel:           "info",
		LogFormat:          "text",
		NotifyTimeoutMS:    2000,
		RateLimitPerMinute: 120,
	}
}

// Load reads a JSON or YAML config file over the defaults, applies
// environment overrides, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config JSON: %w", err)
		}
	}
	return finish(&cfg)
}

// FromEnv builds a configuration from defaults and the environment only.
func FromEnv() (*Config, error) {
	cfg := Default()
	return finish(&cfg)
}

// Resolve picks the config file: explicit path, then LOBBYD_CONFIG, then
// config.json or config.yaml next to the executable or in the working
// directory. It returns "" when nothing is found.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	dirs = append(dirs, ".")
	for _, dir := range dirs {
		for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

func finish(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.TickIntervalMS == 0 {
		c.TickIntervalMS = d.TickIntervalMS
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.NotifyTimeoutMS == 0 {
		c.NotifyTimeoutMS = d.NotifyTimeoutMS
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.TickIntervalMS < 0 {
		problems = append(problems, "tick_interval_ms must be positive")
	}
	if c.MinimumParticipants < 0 {
		problems = append(problems, "minimum_participants must be >= 0")
	}
	cd := c.Countdown
	if cd.TotalSec <= 0 || cd.FarStepSec <= 0 || cd.NearStepSec <= 0 || cd.NearFromSec <= 0 {
		problems = append(problems, "countdown values must be positive")
	} else if cd.NearFromSec >= cd.TotalSec {
		problems = append(problems, "countdown.near_from_sec must be below total_sec")
	}
	if c.RateLimitPerMinute < 0 {
		problems = append(problems, "rate_limit_per_minute must be >= 0")
	}
	if c.StartingDelaySec < 0 {
		problems = append(problems, "starting_delay_sec must be >= 0")
	}
	for id, ms := range c.Abilities {
		if ms <= 0 {
			problems = append(problems, fmt.Sprintf("abilities.%s must be positive", id))
		}
	}
	if _, ok := levels[strings.ToLower(c.LogLevel)]; !ok {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log_format %q is not text or json", c.LogFormat))
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	return levels[strings.ToLower(c.LogLevel)]
}

// TickInterval returns the scheduler tick length.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// StartingDelay returns the pause between starting and playing.
func (c *Config) StartingDelay() time.Duration {
	return time.Duration(c.StartingDelaySec) * time.Second
}

// NotifyTimeout bounds one notice delivery to a slow listener.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutMS) * time.Millisecond
}

// AbilityCooldowns returns the configured per-capability waits.
func (c *Config) AbilityCooldowns() map[domain.CapabilityID]time.Duration {
	out := make(map[domain.CapabilityID]time.Duration, len(c.Abilities))
	for id, ms := range c.Abilities {
		out[domain.CapabilityID(id)] = time.Duration(ms) * time.Millisecond
	}
	return out
}
