package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderHiggsfield = "higgsfield"
	ProviderGoogle     = "google"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // empty disables auth
	CorsAllowedOrigins string // comma separated, empty allows any origin
	LogLevel           string

	// Database (optional: runs are kept in memory without it)
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase (optional: run manifests are skipped without it)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Generation provider
	Provider string

	HiggsfieldAPIKey            string
	HiggsfieldAPISecret         string
	HiggsfieldBaseURL           string
	HiggsfieldRequestsPerSecond float64

	OpenAIKey string // image step of the google provider
	GeminiKey string // Veo video steps of the google provider
	VeoModel  string

	// Budget in dollars
	TotalBudget      float64
	CostImage        float64
	CostImageToVideo float64
	CostTextToVideo  float64
	CostDefault      float64

	// Polling
	PollMaxAttempts    int
	PollInterval       time.Duration
	PollErrorBackoff   time.Duration
	PollUnknownBackoff time.Duration

	// Orchestration
	SceneCap               int
	SpecialEnergyThreshold float64

	// Worker
	MaxConcurrentRuns int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:                     getEnv("API_PORT", "8080"),
		WorkerEnabled:               getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:               getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:          getEnv("CORS_ALLOWED_ORIGINS", ""),
		LogLevel:                    getEnv("LOG_LEVEL", "info"),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		RedisURL:                    getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:                 getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:          getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket:       getEnv("SUPABASE_STORAGE_BUCKET", "beatreel-runs"),
		Provider:                    getEnv("GENERATION_PROVIDER", ProviderHiggsfield),
		HiggsfieldAPIKey:            getEnv("HIGGSFIELD_API_KEY", ""),
		HiggsfieldAPISecret:         getEnv("HIGGSFIELD_API_SECRET", ""),
		HiggsfieldBaseURL:           getEnv("HIGGSFIELD_BASE_URL", "https://platform.higgsfield.ai"),
		HiggsfieldRequestsPerSecond: getEnvFloat("HIGGSFIELD_REQUESTS_PER_SECOND", 1),
		OpenAIKey:                   getEnv("OPENAI_API_KEY", ""),
		GeminiKey:                   getEnv("GEMINI_API_KEY", ""),
		VeoModel:                    getEnv("VEO_MODEL", "veo-3.1-generate-preview"),
		TotalBudget:                 getEnvFloat("TOTAL_BUDGET", 100),
		CostImage:                   getEnvFloat("COST_IMAGE", 0.09),
		CostImageToVideo:            getEnvFloat("COST_IMAGE_TO_VIDEO", 0.25),
		CostTextToVideo:             getEnvFloat("COST_TEXT_TO_VIDEO", 0.50),
		CostDefault:                 getEnvFloat("COST_DEFAULT", 0.10),
		PollMaxAttempts:             getEnvInt("POLL_MAX_ATTEMPTS", 40),
		PollInterval:                getEnvDuration("POLL_INTERVAL", 2*time.Second),
		PollErrorBackoff:            getEnvDuration("POLL_ERROR_BACKOFF", 3*time.Second),
		PollUnknownBackoff:          getEnvDuration("POLL_UNKNOWN_BACKOFF", 5*time.Second),
		SceneCap:                    getEnvInt("SCENE_CAP", 2),
		SpecialEnergyThreshold:      getEnvFloat("SPECIAL_ENERGY_THRESHOLD", 0.7),
		MaxConcurrentRuns:           getEnvInt("MAX_CONCURRENT_RUNS", 1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider credentials and numeric limits.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderHiggsfield:
		if c.HiggsfieldAPIKey == "" || c.HiggsfieldAPISecret == "" {
			return fmt.Errorf("HIGGSFIELD_API_KEY and HIGGSFIELD_API_SECRET are required")
		}
		if c.HiggsfieldRequestsPerSecond <= 0 {
			return fmt.Errorf("HIGGSFIELD_REQUESTS_PER_SECOND must be positive")
		}
	case ProviderGoogle:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown GENERATION_PROVIDER %q (want %s or %s)", c.Provider, ProviderHiggsfield, ProviderGoogle)
	}

	if c.TotalBudget <= 0 {
		return fmt.Errorf("TOTAL_BUDGET must be positive")
	}
	for name, cost := range map[string]float64{
		"COST_IMAGE":          c.CostImage,
		"COST_IMAGE_TO_VIDEO": c.CostImageToVideo,
		"COST_TEXT_TO_VIDEO":  c.CostTextToVideo,
		"COST_DEFAULT":        c.CostDefault,
	} {
		if cost < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.PollMaxAttempts <= 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}
	if c.SceneCap <= 0 {
		return fmt.Errorf("SCENE_CAP must be positive")
	}
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1500ms") or plain seconds ("2").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
