package config

import (
	"os"
	"strconv"
	"time"

	apperr "formascrape/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Storage
	DBPath     string
	DBPageSize int

	// Browser
	Headless   bool
	SlowMo     time.Duration
	NavTimeout time.Duration

	// List extraction
	SearchBaseURL string
	MaxPages      int
	PageSize      int
	DelayMin      time.Duration
	DelayMax      time.Duration

	// Detail enrichment
	DetailBatchSize int
	DetailWorkers   int
	DetailStatic    bool

	// Persister policy
	OneTrainingPerCenter bool

	// Open-data registry
	RegistryBaseURL string
	RegistryRows    int
	RegistryRetries int

	// Export
	ExportDir      string
	ExportMaxBytes int64

	// Block cache (optional)
	MemcacheAddr string
	BlockTime    time.Duration

	// Stream notifications (optional)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	return Config{
		DBPath:     getEnv("DB_PATH", "formascrape.db"),
		DBPageSize: getEnvInt("DB_PAGE_SIZE", 500),

		Headless:   getEnvBool("HEADLESS", true),
		SlowMo:     getEnvMillis("SLOWMO_MS", 0),
		NavTimeout: getEnvMillis("NAV_TIMEOUT_MS", 45000),

		SearchBaseURL: getEnv("SEARCH_BASE_URL", "https://www.moncompteformation.gouv.fr/espace-prive/html/#/formation/recherche"),
		MaxPages:      getEnvInt("MAX_PAGES", 20),
		PageSize:      getEnvInt("PAGE_SIZE", 12),
		DelayMin:      getEnvMillis("DELAY_MIN_MS", 1500),
		DelayMax:      getEnvMillis("DELAY_MAX_MS", 4500),

		DetailBatchSize: getEnvInt("DETAIL_BATCH_SIZE", 0),
		DetailWorkers:   getEnvInt("DETAIL_WORKERS", 1),
		DetailStatic:    getEnvBool("DETAIL_STATIC", false),

		OneTrainingPerCenter: getEnvBool("ONE_TRAINING_PER_CENTER", false),

		RegistryBaseURL: getEnv("REGISTRY_BASE_URL", "https://tabular-api.data.gouv.fr/api/resources/organismes-de-formation/data"),
		RegistryRows:    getEnvInt("REGISTRY_ROWS", 20),
		RegistryRetries: getEnvInt("REGISTRY_RETRIES", 3),

		ExportDir:      getEnv("EXPORT_DIR", "exports"),
		ExportMaxBytes: int64(getEnvInt("EXPORT_MAX_BYTES", 8*1024*1024)),

		MemcacheAddr: getEnv("MEMCACHE_ADDR", ""),
		BlockTime:    time.Duration(getEnvInt("BLOCK_SECONDS", 300)) * time.Second,

		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "trainings"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 500),

		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for nonsensical combinations
func (c Config) Validate() error {
	if c.DBPath == "" {
		return apperr.NewConfiguration("DB_PATH must not be empty", nil)
	}
	if c.DelayMax < c.DelayMin {
		return apperr.NewConfiguration("DELAY_MAX_MS must be >= DELAY_MIN_MS", nil)
	}
	if c.PageSize <= 0 {
		return apperr.NewConfiguration("PAGE_SIZE must be positive", nil)
	}
	if c.MaxPages <= 0 {
		return apperr.NewConfiguration("MAX_PAGES must be positive", nil)
	}
	if c.DetailBatchSize < 0 {
		return apperr.NewConfiguration("DETAIL_BATCH_SIZE must be >= 0", nil)
	}
	if c.DetailWorkers <= 0 {
		return apperr.NewConfiguration("DETAIL_WORKERS must be positive", nil)
	}
	if c.RegistryRows <= 0 {
		return apperr.NewConfiguration("REGISTRY_ROWS must be positive", nil)
	}
	if c.ExportMaxBytes <= 0 {
		return apperr.NewConfiguration("EXPORT_MAX_BYTES must be positive", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvMillis(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
