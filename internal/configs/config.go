package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage and session drivers
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Session  SessionConfig
	JWT      JWTConfig
	Consent  ConsentConfig
	Sweeper  SweeperConfig
	SMTP     SMTPConfig
	Limit    RateLimitConfig

	// External login service used to resume a suspended login
	SSOBaseURL string

	DefaultLangcode string

	// Logging
	LogLevel string
	LogEnv   string
}

type ServerConfig struct {
	HTTPPort int
	GRPCPort int
}

// HTTPAddr returns the HTTP listen address in format ":port"
func (s ServerConfig) HTTPAddr() string {
	return fmt.Sprintf(":%d", s.HTTPPort)
}

// GRPCAddr returns the gRPC listen address in format ":port"
func (s ServerConfig) GRPCAddr() string {
	return fmt.Sprintf(":%d", s.GRPCPort)
}

type DatabaseConfig struct {
	Driver      string
	URL         string
	MaxConn     int
	AutoMigrate bool
}

type SessionConfig struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type JWTConfig struct {
	Secret string
}

type ConsentConfig struct {
	ExemptRoles    []string
	DefaultLanding string
}

type SweeperConfig struct {
	GracePeriod time.Duration
	Interval    time.Duration
	Batch       int
}

// SMTPConfig is optional; mail notifications are off when Host is empty.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

func Load() (*Config, error) {
	// Load .env file (optional - for local development)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			HTTPPort: getEnvAsInt("HTTP_PORT", 8080),
			GRPCPort: getEnvAsInt("GRPC_PORT", 50054),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("STORAGE_DRIVER", DriverPostgres),
			URL:         getEnv("DATABASE_URL", ""),
			MaxConn:     getEnvAsInt("DB_MAX_CONN", 10),
			AutoMigrate: getEnvAsBool("AUTO_MIGRATE", true),
		},
		Session: SessionConfig{
			Driver:        getEnv("SESSION_DRIVER", DriverRedis),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			TTL:           getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Consent: ConsentConfig{
			ExemptRoles:    getEnvAsSlice("EXEMPT_ROLES", []string{"administrator"}),
			DefaultLanding: getEnv("DEFAULT_LANDING", "/"),
		},
		Sweeper: SweeperConfig{
			GracePeriod: getEnvAsDuration("GRACE_PERIOD", 7*24*time.Hour),
			Interval:    getEnvAsDuration("SWEEPER_INTERVAL", time.Minute),
			Batch:       getEnvAsInt("SWEEPER_BATCH", 20),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		Limit: RateLimitConfig{
			RPS:   getEnvAsFloat("RATE_LIMIT_RPS", 5),
			Burst: getEnvAsInt("RATE_LIMIT_BURST", 10),
		},

		SSOBaseURL:      getEnv("SSO_BASE_URL", ""),
		DefaultLangcode: getEnv("DEFAULT_LANGCODE", "en"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogEnv:   getEnv("LOG_ENV", "dev"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	// Validate required fields
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=%s", DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver)
	}

	switch c.Session.Driver {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("SESSION_DRIVER must be %q or %q, got %q", DriverRedis, DriverMemory, c.Session.Driver)
	}

	if c.Sweeper.GracePeriod < 0 {
		return fmt.Errorf("GRACE_PERIOD must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// Split by comma and trim spaces
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, item := range parts {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
