// Package config handles application configuration from an optional YAML file
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string  `yaml:"telegram_bot_token"`
	DatabasePath     string  `yaml:"database_path"`
	LogLevel         string  `yaml:"log_level"`
	AllowedUsers     []int64 `yaml:"allowed_users"`

	AnalyzerURL     string `yaml:"analyzer_url"`
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseAnonKey string `yaml:"supabase_anon_key"`
	IPLookupURL     string `yaml:"ip_lookup_url"`

	AdminDigestCron string `yaml:"admin_digest_cron"`
	AdminDigestTZ   string `yaml:"admin_digest_tz"`
}

// Load reads configuration. When CONTXTRA_CONFIG names a YAML file it is read
// first; environment variables override its values.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("CONTXTRA_CONFIG"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := applyEnvironment(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required")
	}

	return cfg, nil
}

func applyEnvironment(cfg *Config) error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.AnalyzerURL, "ANALYZER_URL")
	setString(&cfg.SupabaseURL, "SUPABASE_URL")
	setString(&cfg.SupabaseAnonKey, "SUPABASE_ANON_KEY")
	setString(&cfg.IPLookupURL, "IP_LOOKUP_URL")
	setString(&cfg.AdminDigestCron, "ADMIN_DIGEST_CRON")
	setString(&cfg.AdminDigestTZ, "ADMIN_DIGEST_TZ")

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		var allowed []int64
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowed = append(allowed, uid)
		}
		cfg.AllowedUsers = allowed
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./data/contxtra.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AnalyzerURL == "" {
		cfg.AnalyzerURL = "https://contxtra-api-267101235988.us-central1.run.app"
	}
	if cfg.IPLookupURL == "" {
		cfg.IPLookupURL = "https://api.ipify.org?format=json"
	}
	if cfg.AdminDigestTZ == "" {
		cfg.AdminDigestTZ = "UTC"
	}
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
