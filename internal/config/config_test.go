package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitopus/splitopus/internal/settlement"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 720*time.Hour, cfg.JWTTTL)
	assert.Equal(t, time.Hour, cfg.NotifyCooldown)
	assert.Equal(t, settlement.EmptySplitPayer, cfg.SplitPolicy())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("EMPTY_SPLIT_POLICY", "everyone")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REMINDER_SCHEDULE", "0 10 * * *")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.Equal(t, settlement.EmptySplitEveryone, cfg.SplitPolicy())
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "0 10 * * *", cfg.ReminderSchedule)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\nDB_PATH=/tmp/x.db\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("DB_PATH")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Environment:      EnvDevelopment,
			Port:             8080,
			DBPath:           "x.db",
			JWTTTL:           time.Hour,
			NotifyCooldown:   time.Hour,
			EmptySplitPolicy: "payer",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: "PORT"},
		{name: "unknown policy", mutate: func(c *Config) { c.EmptySplitPolicy = "random" }, wantErr: "EMPTY_SPLIT_POLICY"},
		{name: "bad cron", mutate: func(c *Config) { c.ReminderSchedule = "every day" }, wantErr: "REMINDER_SCHEDULE"},
		{
			name: "production needs secrets",
			mutate: func(c *Config) {
				c.Environment = EnvProduction
				c.JWTSecret = "short"
			},
			wantErr: "JWT_SECRET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
