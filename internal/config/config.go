// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	DBDriver       string `mapstructure:"DB_DRIVER"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	SQLitePath     string `mapstructure:"SQLITE_PATH"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	Env            string `mapstructure:"APP_ENV"`

	// Reaction engine
	LockBackend              string `mapstructure:"LOCK_BACKEND"`
	LockWaitTimeoutMS        int    `mapstructure:"LOCK_WAIT_TIMEOUT_MS"`
	StoreOpTimeoutMS         int    `mapstructure:"STORE_OP_TIMEOUT_MS"`
	ExpirySweepIntervalSecs  int    `mapstructure:"EXPIRY_SWEEP_INTERVAL_SECONDS"`
	HistoryDefaultLimit      int    `mapstructure:"HISTORY_DEFAULT_LIMIT"`
	PostCacheTTLSeconds      int    `mapstructure:"POST_CACHE_TTL_SECONDS"`
	PublishEngagementEvents  bool   `mapstructure:"PUBLISH_ENGAGEMENT_EVENTS"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	// Tracing
	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

const defaultJWTSecret = "your-secret-key-change-in-production"

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))
	config.DBDriver = strings.ToLower(strings.TrimSpace(config.DBDriver))
	config.LockBackend = strings.ToLower(strings.TrimSpace(config.LockBackend))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "pulse")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "pulse.db")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOCK_BACKEND", "local")
	viper.SetDefault("LOCK_WAIT_TIMEOUT_MS", 2000)
	viper.SetDefault("STORE_OP_TIMEOUT_MS", 5000)
	viper.SetDefault("EXPIRY_SWEEP_INTERVAL_SECONDS", 60)
	viper.SetDefault("HISTORY_DEFAULT_LIMIT", 50)
	viper.SetDefault("POST_CACHE_TTL_SECONDS", 30)
	viper.SetDefault("PUBLISH_ENGAGEMENT_EVENTS", true)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

// IsProduction reports whether the app runs with production safeguards.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// LockWaitTimeout bounds how long a reaction waits for its post's critical section.
func (c *Config) LockWaitTimeout() time.Duration {
	return time.Duration(c.LockWaitTimeoutMS) * time.Millisecond
}

// StoreOpTimeout bounds a single store operation.
func (c *Config) StoreOpTimeout() time.Duration {
	return time.Duration(c.StoreOpTimeoutMS) * time.Millisecond
}

// ExpirySweepInterval is zero when the sweeper is disabled.
func (c *Config) ExpirySweepInterval() time.Duration {
	return time.Duration(c.ExpirySweepIntervalSecs) * time.Second
}

// PostCacheTTL is how long a post snapshot stays in Redis.
func (c *Config) PostCacheTTL() time.Duration {
	return time.Duration(c.PostCacheTTLSeconds) * time.Second
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	switch c.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("LOCK_BACKEND must be local or redis, got %q", c.LockBackend)
	}
	if c.LockWaitTimeoutMS <= 0 {
		return errors.New("LOCK_WAIT_TIMEOUT_MS must be positive")
	}
	if c.StoreOpTimeoutMS <= 0 {
		return errors.New("STORE_OP_TIMEOUT_MS must be positive")
	}
	if c.ExpirySweepIntervalSecs < 0 {
		return errors.New("EXPIRY_SWEEP_INTERVAL_SECONDS cannot be negative")
	}
	if c.HistoryDefaultLimit <= 0 || c.HistoryDefaultLimit > 100 {
		return errors.New("HISTORY_DEFAULT_LIMIT must be between 1 and 100")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver == "sqlite" {
			return errors.New("DB_DRIVER sqlite is not supported in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable SSL in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
