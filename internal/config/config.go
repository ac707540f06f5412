package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	// Server
	Port            string
	Environment     string
	BaseURL         string
	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Storage
	StoreDriver   string
	DatabaseURL   string
	SeedData      bool
	DefaultUserID int64

	// Generation
	GenerationWorkers         int
	GenerationProcessingDelay time.Duration
	GenerationCompletionDelay time.Duration
	GenerationTimeout         time.Duration

	// External render service
	RenderAPIBaseURL   string
	RenderAPIKey       string
	RenderPollInterval time.Duration

	// Supabase
	SupabaseURL           string
	SupabaseKey           string
	SupabaseStorageBucket string
	SupabaseEventsTable   string

	// Auth
	AuthJWTSecret string
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SeedData:      getEnvBool("SEED_DATA", true),
		DefaultUserID: getEnvInt64("DEFAULT_USER_ID", 1),

		GenerationWorkers:         int(getEnvInt64("GENERATION_WORKERS", 4)),
		GenerationProcessingDelay: getEnvDuration("GENERATION_PROCESSING_DELAY", time.Second),
		GenerationCompletionDelay: getEnvDuration("GENERATION_COMPLETION_DELAY", 5*time.Second),
		GenerationTimeout:         getEnvDuration("GENERATION_TIMEOUT", 10*time.Minute),

		RenderAPIBaseURL:   getEnv("RENDER_API_BASE_URL", ""),
		RenderAPIKey:       getEnv("RENDER_API_KEY", ""),
		RenderPollInterval: getEnvDuration("RENDER_POLL_INTERVAL", 2*time.Second),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseKey:           getEnv("SUPABASE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "mulmocast-outputs"),
		SupabaseEventsTable:   getEnv("SUPABASE_EVENTS_TABLE", "generation_events"),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres, StoreSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, postgres, sqlite (got %q)", c.StoreDriver)
	}
	if c.GenerationWorkers <= 0 {
		return fmt.Errorf("GENERATION_WORKERS must be positive")
	}
	if c.GenerationProcessingDelay < 0 || c.GenerationCompletionDelay < 0 {
		return fmt.Errorf("generation delays must not be negative")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}
	if c.RenderAPIBaseURL != "" && c.RenderPollInterval <= 0 {
		return fmt.Errorf("RENDER_POLL_INTERVAL must be positive")
	}
	if (c.SupabaseURL == "") != (c.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY must be set together")
	}
	return nil
}

// SupabaseEnabled reports whether Supabase publishing and storage are configured.
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
