package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Membership MembershipConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AdminAPIKey guards directory and management routes; empty disables it.
	AdminAPIKey string
}

type MongoDBConfig struct {
	// URI empty selects the in-memory store.
	URI         string
	Database    string
	Timeout     time.Duration
	MaxAttempts int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	Window  time.Duration
}

type MembershipConfig struct {
	ApplicationName                      string
	MinRequiredPasswordLength            int
	MinRequiredNonAlphanumericCharacters int
	PasswordStrengthRegularExpression    string
	RequiresUniqueEmail                  bool
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("MEMBERSHIP_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5002")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "membership")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_MAX_ATTEMPTS", 5)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("MEMBERSHIP_APPLICATION_NAME", "/")
	v.SetDefault("MEMBERSHIP_MIN_PASSWORD_LENGTH", 7)
	v.SetDefault("MEMBERSHIP_MIN_NON_ALPHANUMERIC", 0)
	v.SetDefault("MEMBERSHIP_REQUIRES_UNIQUE_EMAIL", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			AdminAPIKey:  os.Getenv("ADMIN_API_KEY"),
		},
		MongoDB: MongoDBConfig{
			URI:         strings.TrimSpace(v.GetString("MONGODB_URI")),
			Database:    v.GetString("MONGODB_DATABASE"),
			Timeout:     time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			MaxAttempts: v.GetInt("MONGODB_MAX_ATTEMPTS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:     v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:   v.GetInt("RATE_LIMIT_BURST"),
			Window:  time.Duration(v.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		},
		Membership: MembershipConfig{
			ApplicationName:                      v.GetString("MEMBERSHIP_APPLICATION_NAME"),
			MinRequiredPasswordLength:            v.GetInt("MEMBERSHIP_MIN_PASSWORD_LENGTH"),
			MinRequiredNonAlphanumericCharacters: v.GetInt("MEMBERSHIP_MIN_NON_ALPHANUMERIC"),
			PasswordStrengthRegularExpression:    v.GetString("MEMBERSHIP_PASSWORD_STRENGTH_REGEX"),
			RequiresUniqueEmail:                  v.GetBool("MEMBERSHIP_REQUIRES_UNIQUE_EMAIL"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Membership.MinRequiredPasswordLength < 1 || c.Membership.MinRequiredPasswordLength > 128 {
		return fmt.Errorf("MEMBERSHIP_MIN_PASSWORD_LENGTH must be between 1 and 128, got %d", c.Membership.MinRequiredPasswordLength)
	}
	if c.Membership.MinRequiredNonAlphanumericCharacters < 0 || c.Membership.MinRequiredNonAlphanumericCharacters > 128 {
		return fmt.Errorf("MEMBERSHIP_MIN_NON_ALPHANUMERIC must be between 0 and 128, got %d", c.Membership.MinRequiredNonAlphanumericCharacters)
	}
	if c.Membership.MinRequiredNonAlphanumericCharacters > c.Membership.MinRequiredPasswordLength {
		return fmt.Errorf("MEMBERSHIP_MIN_NON_ALPHANUMERIC (%d) exceeds MEMBERSHIP_MIN_PASSWORD_LENGTH (%d)",
			c.Membership.MinRequiredNonAlphanumericCharacters, c.Membership.MinRequiredPasswordLength)
	}
	if c.Membership.ApplicationName == "" {
		return fmt.Errorf("MEMBERSHIP_APPLICATION_NAME must not be empty")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limiting is enabled but RATE_LIMIT_RPS and RATE_LIMIT_BURST allow nothing")
	}
	return nil
}
