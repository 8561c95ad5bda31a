// Package config provides configuration management for the carbon tracker API.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Auth        AuthConfig
	Email       EmailConfig
	Upload      UploadConfig
	Frontend    FrontendConfig
	Carbon      CarbonConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration.
// URL takes precedence over the individual fields when set.
type PostgresConfig struct {
	URL            string
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
}

// DSN returns the connection string for the pool and the migrator
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Host + ":" + p.Port,
		Path:     p.Database,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// AuthConfig holds token and OTP settings
type AuthConfig struct {
	JWTSecret        string
	JWTTTL           time.Duration
	OTPTTL           time.Duration
	OTPMaxAttempts   int
	OTPSweepInterval time.Duration
}

// EmailConfig holds outbound SMTP settings
type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	User     string
	Password string
	FromName string
}

// Enabled reports whether SMTP credentials are configured
func (e EmailConfig) Enabled() bool {
	return e.User != "" && e.Password != ""
}

// UploadConfig holds profile picture storage settings.
// S3 is used when Bucket is set, local disk otherwise.
type UploadConfig struct {
	Dir         string
	MaxBytes    int64
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

// FrontendConfig holds the browser client settings
type FrontendConfig struct {
	URL string
}

// CarbonConfig holds domain defaults
type CarbonConfig struct {
	DefaultWeeklyGoal   float64
	WeekTimezone        string
	EmissionFactorsFile string
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	RPS     float64
	AuthRPS float64
	Burst   int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", getEnv("PORT", "5000")),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				URL:            getEnv("DATABASE_URL", ""),
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "carbon_tracker"),
				User:           getEnv("POSTGRES_USER", "carbon"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				SSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:        getEnv("JWT_SECRET", ""),
			JWTTTL:           getEnvAsDuration("JWT_TTL", 24*time.Hour),
			OTPTTL:           getEnvAsDuration("OTP_TTL", 10*time.Minute),
			OTPMaxAttempts:   getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			OTPSweepInterval: getEnvAsDuration("OTP_SWEEP_INTERVAL", 10*time.Minute),
		},
		Email: EmailConfig{
			SMTPHost: getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort: getEnvAsInt("SMTP_PORT", 587),
			User:     getEnv("EMAIL_USER", ""),
			Password: getEnv("EMAIL_PASS", ""),
			FromName: getEnv("EMAIL_FROM_NAME", "Carbon Tracker"),
		},
		Upload: UploadConfig{
			Dir:         getEnv("UPLOAD_DIR", "uploads"),
			MaxBytes:    int64(getEnvAsInt("UPLOAD_MAX_BYTES", 5<<20)),
			S3Bucket:    getEnv("S3_BUCKET", ""),
			S3Region:    getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:  getEnv("S3_ENDPOINT", ""),
			S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("S3_SECRET_KEY", ""),
			S3PublicURL: getEnv("S3_PUBLIC_URL", ""),
		},
		Frontend: FrontendConfig{
			URL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		Carbon: CarbonConfig{
			DefaultWeeklyGoal:   getEnvAsFloat("DEFAULT_WEEKLY_GOAL", 50),
			WeekTimezone:        getEnv("WEEK_TIMEZONE", "UTC"),
			EmissionFactorsFile: getEnv("EMISSION_FACTORS_FILE", ""),
		},
		RateLimit: RateLimitConfig{
			RPS:     getEnvAsFloat("RATE_LIMIT_RPS", 20),
			AuthRPS: getEnvAsFloat("RATE_LIMIT_AUTH_RPS", 2),
			Burst:   getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate checks settings that would otherwise fail at request time
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" && c.Environment != "development" {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if c.Auth.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.Auth.JWTTTL)
	}
	if c.Auth.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive, got %s", c.Auth.OTPTTL)
	}
	if c.Auth.OTPMaxAttempts <= 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive, got %d", c.Auth.OTPMaxAttempts)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.Carbon.DefaultWeeklyGoal <= 0 {
		return fmt.Errorf("DEFAULT_WEEKLY_GOAL must be positive, got %v", c.Carbon.DefaultWeeklyGoal)
	}
	if _, err := time.LoadLocation(c.Carbon.WeekTimezone); err != nil {
		return fmt.Errorf("invalid WEEK_TIMEZONE %q: %w", c.Carbon.WeekTimezone, err)
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.AuthRPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
