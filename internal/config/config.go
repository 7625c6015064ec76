// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/splitopus/splitopus/internal/settlement"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"

	minJWTLength = 32
)

// Config holds every setting of the server.
type Config struct {
	Environment   Environment `mapstructure:"ENVIRONMENT"`
	Port          int         `mapstructure:"PORT"`
	DBPath        string      `mapstructure:"DB_PATH"`
	AllowedOrigin string      `mapstructure:"ALLOWED_ORIGIN"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	TelegramBotToken string        `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIURL   string        `mapstructure:"TELEGRAM_API_URL"`
	InitDataMaxAge   time.Duration `mapstructure:"INIT_DATA_MAX_AGE"`

	// RedisAddr enables the notification cooldown when set.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	NotifyCooldown time.Duration `mapstructure:"NOTIFY_COOLDOWN"`

	// ReminderSchedule is a cron spec for debtor reminders. Empty disables them.
	ReminderSchedule string `mapstructure:"REMINDER_SCHEDULE"`

	EmptySplitPolicy string `mapstructure:"EMPTY_SPLIT_POLICY"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SplitPolicy returns the parsed empty split policy.
func (c *Config) SplitPolicy() settlement.EmptySplitPolicy {
	p, err := settlement.ParseEmptySplitPolicy(c.EmptySplitPolicy)
	if err != nil {
		return settlement.EmptySplitPayer
	}
	return p
}

var keys = []string{
	"ENVIRONMENT", "PORT", "DB_PATH", "ALLOWED_ORIGIN",
	"JWT_SECRET", "JWT_TTL",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_API_URL", "INIT_DATA_MAX_AGE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"NOTIFY_COOLDOWN", "REMINDER_SCHEDULE", "EMPTY_SPLIT_POLICY",
	"LOG_LEVEL", "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", string(EnvDevelopment))
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "./data/splitopus.db")
	v.SetDefault("ALLOWED_ORIGIN", "*")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "720h")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	v.SetDefault("INIT_DATA_MAX_AGE", "24h")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NOTIFY_COOLDOWN", "1h")
	v.SetDefault("REMINDER_SCHEDULE", "")
	v.SetDefault("EMPTY_SPLIT_POLICY", string(settlement.EmptySplitPayer))
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Environment = Environment(strings.ToLower(string(cfg.Environment)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.NotifyCooldown < 0 {
		errs = append(errs, errors.New("NOTIFY_COOLDOWN cannot be negative"))
	}
	if _, err := settlement.ParseEmptySplitPolicy(c.EmptySplitPolicy); err != nil {
		errs = append(errs, fmt.Errorf("EMPTY_SPLIT_POLICY: %w", err))
	}
	if c.ReminderSchedule != "" {
		if _, err := cron.ParseStandard(c.ReminderSchedule); err != nil {
			errs = append(errs, fmt.Errorf("REMINDER_SCHEDULE: %w", err))
		}
	}

	if c.IsProduction() {
		if len(c.JWTSecret) < minJWTLength {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters in production", minJWTLength))
		}
		if c.TelegramBotToken == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required in production"))
		}
	}

	return errors.Join(errs...)
}
