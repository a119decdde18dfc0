package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                 "development",
		Port:                "8080",
		JWTSecret:           "secure-secret-at-least-32-chars-long",
		DBDriver:            "postgres",
		DBPassword:          "secure-password",
		DBSSLMode:           "require",
		LockBackend:         "local",
		LockWaitTimeoutMS:   100,
		StoreOpTimeoutMS:    1000,
		HistoryDefaultLimit: 50,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"unknown lock backend", func(c *Config) { c.LockBackend = "etcd" }, true},
		{"zero lock wait", func(c *Config) { c.LockWaitTimeoutMS = 0 }, true},
		{"zero store timeout", func(c *Config) { c.StoreOpTimeoutMS = 0 }, true},
		{"negative sweep", func(c *Config) { c.ExpirySweepIntervalSecs = -1 }, true},
		{"history limit too large", func(c *Config) { c.HistoryDefaultLimit = 500 }, true},
		{"production default secret", func(c *Config) { c.Env = "production"; c.JWTSecret = defaultJWTSecret }, true},
		{"production sqlite", func(c *Config) { c.Env = "production"; c.DBDriver = "sqlite" }, true},
		{"production ssl disabled", func(c *Config) { c.Env = "prod"; c.DBSSLMode = "disable" }, true},
		{"production ok", func(c *Config) { c.Env = "production" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	c := validConfig()
	c.ExpirySweepIntervalSecs = 30
	c.PostCacheTTLSeconds = 10

	assert.Equal(t, 100*time.Millisecond, c.LockWaitTimeout())
	assert.Equal(t, time.Second, c.StoreOpTimeout())
	assert.Equal(t, 30*time.Second, c.ExpirySweepInterval())
	assert.Equal(t, 10*time.Second, c.PostCacheTTL())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_DRIVER", "  SQLite ")
	t.Setenv("LOCK_BACKEND", "Redis")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, "redis", c.LockBackend)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, 50, c.HistoryDefaultLimit)
}
