package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"API_PORT", "WORKER_ENABLED", "BACKEND_API_KEY", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL",
		"DATABASE_URL", "REDIS_URL", "SUPABASE_URL", "SUPABASE_SERVICE_KEY", "SUPABASE_STORAGE_BUCKET",
		"GENERATION_PROVIDER", "HIGGSFIELD_API_KEY", "HIGGSFIELD_API_SECRET", "HIGGSFIELD_BASE_URL",
		"HIGGSFIELD_REQUESTS_PER_SECOND", "OPENAI_API_KEY", "GEMINI_API_KEY", "VEO_MODEL",
		"TOTAL_BUDGET", "COST_IMAGE", "COST_IMAGE_TO_VIDEO", "COST_TEXT_TO_VIDEO", "COST_DEFAULT",
		"POLL_MAX_ATTEMPTS", "POLL_INTERVAL", "POLL_ERROR_BACKOFF", "POLL_UNKNOWN_BACKOFF",
		"SCENE_CAP", "SPECIAL_ENERGY_THRESHOLD", "MAX_CONCURRENT_RUNS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HIGGSFIELD_API_KEY", "key")
	t.Setenv("HIGGSFIELD_API_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Provider != ProviderHiggsfield {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.TotalBudget != 100 {
		t.Errorf("TotalBudget = %v, want 100", cfg.TotalBudget)
	}
	if cfg.PollMaxAttempts != 40 || cfg.PollInterval != 2*time.Second {
		t.Errorf("poll defaults = %d/%v", cfg.PollMaxAttempts, cfg.PollInterval)
	}
	if cfg.PollErrorBackoff != 3*time.Second || cfg.PollUnknownBackoff != 5*time.Second {
		t.Errorf("backoff defaults = %v/%v", cfg.PollErrorBackoff, cfg.PollUnknownBackoff)
	}
	if cfg.SceneCap != 2 || cfg.SpecialEnergyThreshold != 0.7 {
		t.Errorf("orchestration defaults = %d/%v", cfg.SceneCap, cfg.SpecialEnergyThreshold)
	}
	if cfg.MaxConcurrentRuns != 1 || !cfg.WorkerEnabled {
		t.Errorf("worker defaults = %d/%v", cfg.MaxConcurrentRuns, cfg.WorkerEnabled)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL should be optional, got %q", cfg.DatabaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENERATION_PROVIDER", "google")
	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("GEMINI_API_KEY", "gm")
	t.Setenv("TOTAL_BUDGET", "0.4")
	t.Setenv("POLL_INTERVAL", "1500ms")
	t.Setenv("POLL_ERROR_BACKOFF", "4")
	t.Setenv("POLL_UNKNOWN_BACKOFF", "soon")
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("MAX_CONCURRENT_RUNS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Provider != ProviderGoogle || cfg.TotalBudget != 0.4 {
		t.Errorf("unexpected provider/budget: %q/%v", cfg.Provider, cfg.TotalBudget)
	}
	if cfg.PollInterval != 1500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.PollErrorBackoff != 4*time.Second {
		t.Errorf("PollErrorBackoff = %v", cfg.PollErrorBackoff)
	}
	if cfg.PollUnknownBackoff != 5*time.Second {
		t.Errorf("unparseable duration should fall back, got %v", cfg.PollUnknownBackoff)
	}
	if cfg.WorkerEnabled || cfg.MaxConcurrentRuns != 3 {
		t.Errorf("worker = %v/%d", cfg.WorkerEnabled, cfg.MaxConcurrentRuns)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Provider:                    ProviderHiggsfield,
			HiggsfieldAPIKey:            "k",
			HiggsfieldAPISecret:         "s",
			HiggsfieldRequestsPerSecond: 2,
			TotalBudget:                 100,
			PollMaxAttempts:             40,
			SceneCap:                    2,
			MaxConcurrentRuns:           1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing secret", func(c *Config) { c.HiggsfieldAPISecret = "" }, "HIGGSFIELD_API_SECRET"},
		{"zero rps", func(c *Config) { c.HiggsfieldRequestsPerSecond = 0 }, "REQUESTS_PER_SECOND"},
		{"google without openai", func(c *Config) { c.Provider = ProviderGoogle; c.GeminiKey = "g" }, "OPENAI_API_KEY"},
		{"google without gemini", func(c *Config) { c.Provider = ProviderGoogle; c.OpenAIKey = "o" }, "GEMINI_API_KEY"},
		{"unknown provider", func(c *Config) { c.Provider = "runway" }, "GENERATION_PROVIDER"},
		{"zero budget", func(c *Config) { c.TotalBudget = 0 }, "TOTAL_BUDGET"},
		{"negative cost", func(c *Config) { c.CostImage = -1 }, "COST_IMAGE"},
		{"zero attempts", func(c *Config) { c.PollMaxAttempts = 0 }, "POLL_MAX_ATTEMPTS"},
		{"zero scene cap", func(c *Config) { c.SceneCap = 0 }, "SCENE_CAP"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentRuns = 0 }, "MAX_CONCURRENT_RUNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
