package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost:6379", cfg.RedisAddr)
				assert.Equal(t, 60*time.Minute, cfg.DefaultCheckInterval)
				assert.Equal(t, 5, cfg.FailureStreakLimit)
				assert.Equal(t, 20.0, cfg.MaxChangePct)
				assert.Equal(t, 0.6, cfg.CompetitiveWeight)
				assert.Equal(t, 14*24*time.Hour, cfg.HistoryWindow)
				assert.False(t, cfg.DomainAllowlistEnabled)
				assert.Nil(t, cfg.DomainAllowlist)
				assert.Equal(t, "info", cfg.LogLevel)
			},
		},
		{
			name: "load custom scheduling configuration",
			envVars: map[string]string{
				"DEFAULT_CHECK_INTERVAL_MINUTES": "15",
				"FAILURE_STREAK_LIMIT":           "3",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 15*time.Minute, cfg.DefaultCheckInterval)
				assert.Equal(t, 3, cfg.FailureStreakLimit)
			},
		},
		{
			name: "load domain allowlist",
			envVars: map[string]string{
				"DOMAIN_ALLOWLIST_ENABLED": "true",
				"DOMAIN_ALLOWLIST":         "Shop.Example.com, other.example.com",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.DomainAllowlistEnabled)
				assert.Equal(t, []string{"shop.example.com", "other.example.com"}, cfg.DomainAllowlist)
			},
		},
		{
			name: "load custom backoff configuration",
			envVars: map[string]string{
				"BASE_BACKOFF_SECONDS": "1",
				"MAX_BACKOFF_SECONDS":  "60",
				"MAX_ATTEMPTS":         "10",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 1*time.Second, cfg.BaseBackoff)
				assert.Equal(t, 60*time.Second, cfg.MaxBackoff)
				assert.Equal(t, 10, cfg.MaxAttempts)
			},
		},
		{
			name: "load custom log level",
			envVars: map[string]string{
				"LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()

			for key, value := range tt.envVars {
				err := os.Setenv(key, value)
				require.NoError(t, err)
			}

			cfg := Load()
			tt.validate(t, cfg)
		})
	}
}
