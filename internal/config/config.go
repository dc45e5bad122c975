package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds server settings. Values come from an optional TOML file and are
// overridden by MARKETPLACE_* environment variables.
type Config struct {
	ListenAddress  string        `toml:"ListenAddress"`
	DatabaseURL    string        `toml:"DatabaseURL"`
	JWTSecret      string        `toml:"JWTSecret"`
	TokenTTL       time.Duration `toml:"TokenTTL"`
	PlatformOwner  string        `toml:"PlatformOwner"`
	CommissionRate uint8         `toml:"CommissionRate"`
	LogLevel       string        `toml:"LogLevel"`
	Environment    string        `toml:"Environment"`
	AllowedOrigins []string      `toml:"AllowedOrigins"`
	StatsInterval  time.Duration `toml:"StatsInterval"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddress:  ":8080",
		TokenTTL:       24 * time.Hour,
		CommissionRate: 2,
		LogLevel:       "info",
		Environment:    "development",
		AllowedOrigins: []string{"*"},
		StatsInterval:  5 * time.Second,
	}
}

// Load reads path (if it exists), applies environment overrides and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			meta, err := toml.DecodeFile(path, cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
			}
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("config %s has unknown keys: %v", path, undecoded)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("MARKETPLACE_LISTEN_ADDRESS", &c.ListenAddress)
	str("MARKETPLACE_DATABASE_URL", &c.DatabaseURL)
	str("MARKETPLACE_JWT_SECRET", &c.JWTSecret)
	str("MARKETPLACE_PLATFORM_OWNER", &c.PlatformOwner)
	str("MARKETPLACE_LOG_LEVEL", &c.LogLevel)
	str("MARKETPLACE_ENV", &c.Environment)
	if v, ok := lookup("MARKETPLACE_ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("MARKETPLACE_COMMISSION_RATE"); ok {
		rate, err := strconv.ParseUint(strings.TrimSpace(v), 10, 8)
		if err != nil {
			return fmt.Errorf("invalid MARKETPLACE_COMMISSION_RATE: %w", err)
		}
		c.CommissionRate = uint8(rate)
	}
	if err := dur("MARKETPLACE_TOKEN_TTL", &c.TokenTTL); err != nil {
		return err
	}
	return dur("MARKETPLACE_STATS_INTERVAL", &c.StatsInterval)
}

// Validate checks required fields and bounds.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress is required")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWTSecret must be at least 16 characters")
	}
	if strings.TrimSpace(c.PlatformOwner) == "" {
		return fmt.Errorf("PlatformOwner is required")
	}
	if c.CommissionRate > 10 {
		return fmt.Errorf("CommissionRate cannot exceed 10, got %d", c.CommissionRate)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TokenTTL must be positive")
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("StatsInterval must be positive")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
