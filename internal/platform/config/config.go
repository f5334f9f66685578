package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr                   string
	DatabaseURL            string
	JWTSecret              string
	DataEncryptionKey      string
	Environment            string
	SeedTenantName         string
	SeedTenantTaxID        string
	EmailFrom              string
	EmailEnabled           bool
	SMTPHost               string
	SMTPPort               int
	SMTPUser               string
	SMTPPassword           string
	SMTPUseTLS             bool
	AlertEmailTo           string
	RunMigrations          bool
	RunSeed                bool
	MigrationsDir          string
	MaxBodyBytes           int64
	RateLimitPerMinute     int
	MetricsEnabled         bool
	AuthorityURL           string
	AuthorityTimeout       time.Duration
	AuthoritySoftwareID    string
	AuthorityProviderID    string
	AuthorityEnvironment   string
	RetryMaxAttempts       int
	RetryBackoff           time.Duration
	RetryBackoffStrategy   string
	RetrySweepInterval     time.Duration
	StaleTransmissionAfter time.Duration
	ComplianceCalendarFile string
	EnforceCompliance      bool
	DocumentTimezone       string
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, is applied first without overriding real variables.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:                   getEnv("APP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		DataEncryptionKey:      getEnv("DATA_ENCRYPTION_KEY", ""),
		Environment:            getEnv("APP_ENV", "development"),
		SeedTenantName:         getEnv("SEED_TENANT_NAME", "Default Tenant"),
		SeedTenantTaxID:        getEnv("SEED_TENANT_TAX_ID", ""),
		EmailFrom:              getEnv("EMAIL_FROM", "no-reply@example.com"),
		EmailEnabled:           getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:               getEnv("SMTP_HOST", ""),
		SMTPPort:               getEnvInt("SMTP_PORT", 587),
		SMTPUser:               getEnv("SMTP_USER", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:             getEnvBool("SMTP_USE_TLS", true),
		AlertEmailTo:           getEnv("ALERT_EMAIL_TO", ""),
		RunMigrations:          getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:                getEnvBool("RUN_SEED", true),
		MigrationsDir:          getEnv("MIGRATIONS_DIR", "migrations"),
		MaxBodyBytes:           int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		MetricsEnabled:         getEnvBool("METRICS_ENABLED", true),
		AuthorityURL:           getEnv("AUTHORITY_URL", ""),
		AuthorityTimeout:       getEnvDuration("AUTHORITY_TIMEOUT", 30*time.Second),
		AuthoritySoftwareID:    getEnv("AUTHORITY_SOFTWARE_ID", ""),
		AuthorityProviderID:    getEnv("AUTHORITY_PROVIDER_ID", ""),
		AuthorityEnvironment:   getEnv("AUTHORITY_ENVIRONMENT", "test"),
		RetryMaxAttempts:       getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBackoff:           getEnvDuration("RETRY_BACKOFF", 24*time.Hour),
		RetryBackoffStrategy:   getEnv("RETRY_BACKOFF_STRATEGY", "fixed"),
		RetrySweepInterval:     getEnvDuration("RETRY_SWEEP_INTERVAL", time.Hour),
		StaleTransmissionAfter: getEnvDuration("STALE_TRANSMISSION_AFTER", 15*time.Minute),
		ComplianceCalendarFile: getEnv("COMPLIANCE_CALENDAR_FILE", ""),
		EnforceCompliance:      getEnvBool("EPAYROLL_ENFORCE_COMPLIANCE", false),
		DocumentTimezone:       getEnv("DOCUMENT_TIMEZONE", "America/Bogota"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production to protect stored signing keys")
		}
		if strings.TrimSpace(c.AuthorityURL) == "" {
			return fmt.Errorf("AUTHORITY_URL must be set in production; the simulated authority is for development only")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if c.AuthorityTimeout <= 0 {
		return fmt.Errorf("AUTHORITY_TIMEOUT must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("RETRY_BACKOFF must be positive")
	}
	switch c.RetryBackoffStrategy {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("RETRY_BACKOFF_STRATEGY must be fixed or exponential")
	}
	return nil
}
