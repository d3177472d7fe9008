package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/beatreel/internal/api"
	"github.com/bobarin/beatreel/internal/config"
	"github.com/bobarin/beatreel/internal/db"
	"github.com/bobarin/beatreel/internal/ledger"
	xlog "github.com/bobarin/beatreel/internal/log"
	"github.com/bobarin/beatreel/internal/models"
	"github.com/bobarin/beatreel/internal/orchestrator"
	"github.com/bobarin/beatreel/internal/planner"
	"github.com/bobarin/beatreel/internal/poller"
	"github.com/bobarin/beatreel/internal/progress"
	"github.com/bobarin/beatreel/internal/queue"
	"github.com/bobarin/beatreel/internal/services"
	"github.com/bobarin/beatreel/internal/storage"
	"github.com/bobarin/beatreel/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := xlog.Base()
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	xlog.Configure(xlog.Config{Level: cfg.LogLevel})
	logger := xlog.WithComponent("main")
	logger.Info().Str("provider", cfg.Provider).Msg("starting beatreel API")

	// Run history: Postgres when configured, memory otherwise
	var store db.RunStore
	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer database.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = database.EnsureSchema(ctx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare schema")
		}
		store = database
		logger.Info().Msg("connected to database")
	} else {
		store = db.NewMemoryStore()
		logger.Warn().Msg("DATABASE_URL not set, run history is kept in memory")
	}

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to queue")
	}
	defer q.Close()
	logger.Info().Msg("connected to Redis queue")

	var stor *storage.Storage
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		stor = storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		logger.Info().Str("bucket", cfg.SupabaseStorageBucket).Msg("run manifests enabled")
	}

	budget := ledger.New(cfg.TotalBudget, map[models.JobKind]float64{
		models.JobKindImage:        cfg.CostImage,
		models.JobKindImageToVideo: cfg.CostImageToVideo,
		models.JobKindTextToVideo:  cfg.CostTextToVideo,
	}, cfg.CostDefault)
	scenePlanner := planner.New(cfg.SceneCap)
	tracker := progress.NewTracker()

	handler := api.NewHandler(store, q, scenePlanner, budget, tracker, q)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		logger.Info().Msg("API key authentication enabled")
	} else {
		logger.Warn().Msg("no BACKEND_API_KEY set, API is unprotected")
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})

	if cfg.WorkerEnabled {
		transport, routes, err := newTransport(workerCtx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create generation transport")
		}

		jobs := poller.New(transport, poller.Config{
			MaxAttempts:    cfg.PollMaxAttempts,
			Interval:       cfg.PollInterval,
			ErrorBackoff:   cfg.PollErrorBackoff,
			UnknownBackoff: cfg.PollUnknownBackoff,
			Routes:         routes,
		})
		orch := orchestrator.New(scenePlanner, jobs, budget, orchestrator.Config{
			SceneCap:               cfg.SceneCap,
			SpecialEnergyThreshold: cfg.SpecialEnergyThreshold,
		})

		mirror := queue.NewProgressPublisher(q, 2*time.Second, func(err error) {
			logger.Warn().Err(err).Msg("failed to mirror progress")
		})
		w := worker.New(store, q, stor, orch, tracker, mirror)

		mirrorDone := make(chan struct{})
		go func() {
			defer close(mirrorDone)
			mirror.Run(workerCtx)
		}()

		go func() {
			defer close(workerDone)
			defer func() { <-mirrorDone }()
			if err := w.Start(workerCtx, cfg.MaxConcurrentRuns); err != nil {
				logger.Error().Err(err).Msg("worker exited")
			}
		}()
	} else {
		close(workerDone)
		logger.Info().Msg("worker disabled, serving API only")
	}

	go func() {
		logger.Info().Str("port", cfg.APIPort).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	// In-flight runs stop at their next checkpoint and are recorded as failed.
	workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	select {
	case <-workerDone:
	case <-ctx.Done():
		logger.Warn().Msg("worker did not stop in time")
	}

	logger.Info().Msg("server exited")
}

// newTransport builds the configured generation provider and the status
// routes the poller should try for it.
func newTransport(ctx context.Context, cfg *config.Config) (services.Transport, []string, error) {
	switch cfg.Provider {
	case config.ProviderGoogle:
		t, err := services.NewGoogleTransport(ctx, cfg.OpenAIKey, cfg.GeminiKey, cfg.VeoModel)
		if err != nil {
			return nil, nil, err
		}
		return t, services.GoogleStatusRoutes, nil
	default:
		client := services.NewHiggsfieldClient(cfg.HiggsfieldAPIKey, cfg.HiggsfieldAPISecret, cfg.HiggsfieldBaseURL, cfg.HiggsfieldRequestsPerSecond)
		return client, services.HiggsfieldStatusRoutes, nil
	}
}
