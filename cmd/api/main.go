package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"boongle/internal/adapter/repo"
	"boongle/internal/domain"
	"boongle/internal/entitlement"
	"boongle/internal/generation"
	"boongle/internal/http/handlers"
	httpapi "boongle/internal/http/httpapi"
	"boongle/internal/identity"
	"boongle/internal/infra"
	"boongle/internal/infra/credentials"
	"boongle/internal/obs"
	"boongle/internal/providers/image"
	"boongle/internal/session"
	"boongle/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres is only needed when one of the stores lives there.
	var runner *infra.SQLRunner
	if cfg.ProfileStore == "postgres" || cfg.CredentialStore == "postgres" {
		var pool *pgxpool.Pool
		pool, err = infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		runner = infra.NewSQLRunner(pool, logger)
	}

	var (
		profiles domain.ProfileStore
		memory   *repo.ProfileRepositoryMemory
	)
	if cfg.ProfileStore == "postgres" {
		profiles = repo.NewProfileRepository(runner)
	} else {
		memory = repo.NewProfileRepositoryMemory()
		profiles = memory
		logger.Warn().Msg("profile store is in memory; usage resets on restart")
	}

	var creds domain.CredentialStore
	if cfg.CredentialStore == "postgres" {
		creds = credentials.NewStore(runner, cfg.ImageProvider)
	} else {
		files, err := storage.NewFileStore(cfg.StateDir)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.StateDir).Msg("failed to open state dir")
		}
		creds = credentials.NewFileStore(files, cfg.ImageProvider)
	}

	backend, err := image.New(image.Config{
		Provider:      cfg.ImageProvider,
		GeminiModel:   cfg.GeminiModel,
		GeminiBaseURL: cfg.GeminiBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		RatePerMinute: cfg.BackendRatePerMinute,
		HTTPClient:    &http.Client{Timeout: cfg.HTTPWriteTimeout},
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build image backend")
	}

	idp, err := identity.New(identity.Options{Secret: cfg.AuthJWTSecret, Issuer: cfg.AuthIssuer, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build identity provider")
	}
	if memory != nil {
		// Registered before the coordinator so the record exists when it loads.
		unsubscribe := idp.Subscribe(func(s *domain.Session) {
			if s != nil {
				memory.Ensure(s.UserID, s.Email)
			}
		})
		defer unsubscribe()
	}

	ledger := entitlement.NewLedger(profiles, domain.SystemClock, logger)
	orchestrator := generation.NewOrchestrator(backend, ledger, domain.SystemClock, logger)
	coord := session.New(session.Options{
		Identity:              idp,
		Ledger:                ledger,
		Orchestrator:          orchestrator,
		Credentials:           creds,
		Logger:                logger,
		FallbackRetryInterval: cfg.FallbackRetryInterval,
	})
	if err := coord.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start session coordinator")
	}
	defer coord.Stop()

	app := handlers.NewApp(coord, idp, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("profile_store", cfg.ProfileStore).
			Str("image_provider", cfg.ImageProvider).
			Msg("API listening")
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
