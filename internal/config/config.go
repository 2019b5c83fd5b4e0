package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const PROD_STRING = "prod"

// Config holds all application configuration loaded from environment.
// It is immutable after Load; components receive it (or slices of it) at
// construction time instead of reading ambient globals.
type Config struct {
	IsProduction      bool
	ProdOrigins       string
	HTTPAddr          string
	LogLevel          string
	DBDSN             string
	JWTSecret         string
	JWTAccessTokenTTL time.Duration

	// OAuth client used for calendar provider token refresh.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Calendar sync behavior.
	ProviderTimeout      time.Duration
	SyncInterval         time.Duration
	SyncBatchSize        int
	SyncMaxAttempts      int
	SyncRetryBaseDelay   time.Duration
	SyncRetryWindow      time.Duration
	ConflictMode         string
	WebhookSecret        string
	PendingConnectionTTL time.Duration
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}

	// Production origin (default: empty)
	cfg.ProdOrigins = getEnv("PROD_ORIGINS", "")

	// Application environment (default: dev)
	appEnvStr := getEnv("APP_ENV", "dev")
	cfg.IsProduction = appEnvStr == PROD_STRING

	// HTTP listen address (default: :8080)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// Database DSN is required
	cfg.DBDSN = os.Getenv("DB_DSN")
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}

	// JWT secret is required for signing tokens
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg.JWTAccessTokenTTL, err = getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	// OAuth client credentials; empty means calendar connections are disabled.
	cfg.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", "")
	cfg.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", "")
	cfg.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", "")

	cfg.ProviderTimeout, err = getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	// Sync cadence defaults differ per environment: short for dev, 15 minutes
	// in production.
	defaultInterval := time.Minute
	if cfg.IsProduction {
		defaultInterval = 15 * time.Minute
	}
	cfg.SyncInterval, err = getEnvAsDuration("SYNC_INTERVAL", defaultInterval)
	if err != nil {
		return nil, err
	}

	cfg.SyncBatchSize, err = getEnvAsInt("SYNC_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}

	cfg.SyncMaxAttempts, err = getEnvAsInt("SYNC_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}

	cfg.SyncRetryBaseDelay, err = getEnvAsDuration("SYNC_RETRY_BASE_DELAY", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.SyncRetryWindow, err = getEnvAsDuration("SYNC_RETRY_WINDOW", time.Hour)
	if err != nil {
		return nil, err
	}

	cfg.ConflictMode = getEnv("CONFLICT_MODE", "database_wins")
	switch cfg.ConflictMode {
	case "database_wins", "provider_wins", "manual":
	default:
		return nil, fmt.Errorf("invalid CONFLICT_MODE: %q", cfg.ConflictMode)
	}

	// Empty secret disables signature verification (dev only).
	cfg.WebhookSecret = getEnv("WEBHOOK_SECRET", "")
	if cfg.IsProduction && cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required in production")
	}

	cfg.PendingConnectionTTL, err = getEnvAsDuration("PENDING_CONNECTION_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable if set,
// otherwise returns the provided default value.
func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer.
// It returns the default value if the variable is not set.
// It returns an error if the variable is set but is not a valid integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q is not a valid integer: %w", key, valStr, err)
	}

	return val, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration
// (e.g. "15m", "1h"). It returns the default value if the variable is not set.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q is not a valid duration: %w", key, valStr, err)
	}

	return val, nil
}
