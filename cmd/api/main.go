package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"portraits/internal/adapter/repo"
	"portraits/internal/admission"
	"portraits/internal/http/handlers"
	"portraits/internal/http/httpapi"
	"portraits/internal/infra"
	"portraits/internal/infra/geoip"
	"portraits/internal/notify"
	"portraits/internal/orchestrator"
	"portraits/internal/pipeline"
	"portraits/internal/providers/stylize"
	"portraits/internal/security"
	"portraits/internal/storage"
	"portraits/internal/uploads"
)

// rateBucketGrace is how long expired counter buckets are kept before the
// housekeeping sweep deletes them, independent of any endpoint's window.
const rateBucketGrace = 24 * time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	jobRepo := repo.NewJobRepository(runner)
	rateRepo := repo.NewRateLimitRepository(runner)
	blockRepo := repo.NewBlocklistRepository(runner)
	uploadResolver := uploads.NewResolver(runner)

	countryResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	secLog := security.NewEventLog(logger, countryResolver)

	controller := admission.NewController(admission.Config{
		DefaultLimit: admission.Limit{
			MaxRequests:   cfg.RateLimitPerWindow,
			WindowMinutes: cfg.RateLimitWindowMin,
		},
		GlobalActiveLimit: cfg.GlobalActiveLimit,
		UserActiveLimit:   cfg.UserActiveLimit,
		BypassAll:         cfg.BypassAdmission,
	}, rateRepo, jobRepo, blockRepo, secLog, logger)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	provider, err := stylize.NewClient(stylize.Options{
		APIKey:       cfg.StylizeAPIKey,
		BaseURL:      cfg.StylizeBaseURL,
		AllowedHosts: cfg.AllowedAssetHosts,
		HTTPClient:   httpClient,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure stylize client")
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	store, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	artifacts, err := pipeline.New(pipeline.Options{
		Allowlist:  provider.Allowlist(),
		Store:      store,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure pipeline")
	}

	orch := orchestrator.New(orchestrator.Options{
		Jobs:     jobRepo,
		Provider: provider,
		Pipeline: artifacts,
		Notifier: notify.NewLogNotifier(logger),
		Logger:   logger,
		ViewURL: func(jobID string) string {
			return cfg.PublicBaseURL + "/portraits/" + jobID
		},
	})

	service := orchestrator.NewService(ctx, controller, jobRepo, uploadResolver, orch, func(key string) string {
		return cfg.StorageBaseURL + "/" + key
	}, logger)

	app := handlers.NewApp(service, logger)
	router := httpapi.NewRouter(app, logger, cfg.CORSOrigins)
	server := infra.NewHTTPServer(cfg, router)

	// Counter-bucket housekeeping runs here rather than in a cron so a
	// single-binary deployment stays self-contained.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := rateRepo.DeleteOlderThan(ctx, time.Now().Add(-rateBucketGrace)); err != nil {
					logger.Error().Err(err).Msg("rate bucket gc failed")
				} else if n > 0 {
					logger.Debug().Int64("deleted", n).Msg("rate bucket gc")
				}
			}
		}
	}()

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
