package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port        int
	LogLevel    string
	Env         string
	StoreDriver string
	DB          DBConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
	Outbox      OutboxConfig
	RateLimit   RateLimitConfig
	Export      ExportConfig
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// KafkaConfig controls event publishing. With Enabled=false outbox events are only logged.
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	EventsTopic   string
	ConsumerGroup string
}

// AuthConfig holds token signing and session cache settings
type AuthConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	SessionTTL  time.Duration
}

type OutboxConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
}

type RateLimitConfig struct {
	IPMaxTokens       float64
	IPRefillRate      float64
	TrustForwardedFor bool
}

// ExportConfig points at the external document renderer; empty URL disables it
type ExportConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

// getEnv retrieves the value of an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(defaultValue, 'f', -1, 64)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, err := time.ParseDuration(getEnv(key, defaultValue.String()))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// Load reads .env (when present) and then the process environment.
// Variables already set in the environment win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	return FromEnv()
}

// FromEnv builds a Config from the environment only
func FromEnv() (*Config, error) {
	var (
		cfg Config
		err error
	)

	if cfg.Port, err = getEnvInt("PORT", 8080); err != nil {
		return nil, err
	}
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.Env = getEnv("APP_ENV", "development")
	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	cfg.DB = DBConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Name:     getEnv("DB_NAME", "freight"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
	if cfg.DB.Port, err = getEnvInt("DB_PORT", 5432); err != nil {
		return nil, err
	}

	if cfg.Kafka.Enabled, err = getEnvBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", "localhost:9092"))
	cfg.Kafka.EventsTopic = getEnv("KAFKA_EVENTS_TOPIC", "marketplace.events")
	cfg.Kafka.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", "freight-exchange")

	cfg.Auth.TokenSecret = getEnv("AUTH_TOKEN_SECRET", "")
	if cfg.Auth.TokenSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("AUTH_TOKEN_SECRET is required in production")
		}
		cfg.Auth.TokenSecret = "dev-secret-change-me"
	}
	if cfg.Auth.TokenTTL, err = getEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Auth.SessionTTL, err = getEnvDuration("AUTH_SESSION_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Outbox.PollingInterval, err = getEnvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Outbox.BatchSize, err = getEnvInt("OUTBOX_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.Outbox.MaxRetries, err = getEnvInt("OUTBOX_MAX_RETRIES", 3); err != nil {
		return nil, err
	}

	if cfg.RateLimit.IPMaxTokens, err = getEnvFloat("RATE_LIMIT_IP_TOKENS", 60); err != nil {
		return nil, err
	}
	if cfg.RateLimit.IPRefillRate, err = getEnvFloat("RATE_LIMIT_IP_RATE", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimit.TrustForwardedFor, err = getEnvBool("RATE_LIMIT_TRUST_FORWARDED_FOR", false); err != nil {
		return nil, err
	}

	cfg.Export.ServiceURL = strings.TrimRight(getEnv("EXPORT_SERVICE_URL", ""), "/")
	if cfg.Export.Timeout, err = getEnvDuration("EXPORT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
