package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

const defaultBackendURL = "http://localhost:5000"

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Env        string `yaml:"env"`
	LogLevel   string `yaml:"log_level"`

	BackendURL            string `yaml:"backend_url"`
	BackendTimeoutSeconds int    `yaml:"backend_timeout_seconds"` // 0 keeps transport defaults

	DBPath             string `yaml:"db_path"`
	StateRetentionDays int    `yaml:"state_retention_days"`

	CSRFKey            string `yaml:"csrf_key"`
	SessionTTLHours    int    `yaml:"session_ttl_hours"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	RateBurst          int    `yaml:"rate_burst"`

	HousekeepingSchedule string `yaml:"housekeeping_schedule"`
}

// LoadConfig reads config.yaml (or CONFIG_PATH), applies environment
// overrides and fills defaults. A missing file is not an error.
func LoadConfig() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		logging.LogInfo("Loaded config", "path", configPath)
	}

	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.Env, "ENV")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.BackendURL, "BACKEND_URL")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.CSRFKey, "CSRF_KEY")
	envOverride(&cfg.HousekeepingSchedule, "HOUSEKEEPING_SCHEDULE")
	for _, o := range []struct {
		field *int
		key   string
	}{
		{&cfg.BackendTimeoutSeconds, "BACKEND_TIMEOUT_SECONDS"},
		{&cfg.StateRetentionDays, "STATE_RETENTION_DAYS"},
		{&cfg.SessionTTLHours, "SESSION_TTL_HOURS"},
		{&cfg.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE"},
		{&cfg.RateBurst, "RATE_BURST"},
	} {
		if err := envOverrideInt(o.field, o.key); err != nil {
			return Config{}, err
		}
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.BackendURL == "" {
		cfg.BackendURL = defaultBackendURL
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	if cfg.DBPath == "" {
		cfg.DBPath = "./raidsplit.db"
	}
	if cfg.StateRetentionDays == 0 {
		cfg.StateRetentionDays = 30
	}
	if cfg.SessionTTLHours == 0 {
		cfg.SessionTTLHours = models.SessionTimeout / 3600
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = models.RateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = models.RateBurst
	}
	if cfg.HousekeepingSchedule == "" {
		cfg.HousekeepingSchedule = "*/15 * * * *"
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BackendTimeoutSeconds < 0 {
		return fmt.Errorf("invalid backend_timeout_seconds '%d': must be >= 0", c.BackendTimeoutSeconds)
	}
	if c.StateRetentionDays < 1 {
		return fmt.Errorf("invalid state_retention_days '%d': must be >= 1", c.StateRetentionDays)
	}
	if c.SessionTTLHours < 1 {
		return fmt.Errorf("invalid session_ttl_hours '%d': must be >= 1", c.SessionTTLHours)
	}
	if c.RateLimitPerMinute < 1 || c.RateBurst < 1 {
		return fmt.Errorf("invalid rate limit %d/min burst %d: both must be >= 1", c.RateLimitPerMinute, c.RateBurst)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.HousekeepingSchedule); err != nil {
		return fmt.Errorf("invalid housekeeping_schedule '%s': %w", c.HousekeepingSchedule, err)
	}
	if c.IsProduction() && len(c.CSRFKey) < 32 {
		return fmt.Errorf("csrf_key must be at least 32 bytes when env=production")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c Config) StateRetention() time.Duration {
	return time.Duration(c.StateRetentionDays) * 24 * time.Hour
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
