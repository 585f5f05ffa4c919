package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/autosql/autosql/internal/api"
	"github.com/autosql/autosql/internal/api/uistatic"
	"github.com/autosql/autosql/internal/auth"
	authfile "github.com/autosql/autosql/internal/auth/file"
	authmemory "github.com/autosql/autosql/internal/auth/memory"
	authpostgres "github.com/autosql/autosql/internal/auth/postgres"
	"github.com/autosql/autosql/internal/config"
	"github.com/autosql/autosql/internal/nl2sql"
	"github.com/autosql/autosql/internal/observability"
	"github.com/autosql/autosql/internal/query"
	duckdbengine "github.com/autosql/autosql/internal/query/duckdb"
	sqliteengine "github.com/autosql/autosql/internal/query/sqlite"
	"github.com/autosql/autosql/internal/session"
	"github.com/autosql/autosql/internal/storage"
	s3store "github.com/autosql/autosql/internal/storage/s3"
)

const sessionSweepInterval = time.Minute

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("autosql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readiness := []api.ReadinessCheck{
		api.CheckCompletionConfig(cfg),
		api.CheckObjectStoreConfig(cfg),
	}

	var credentials auth.CredentialStore
	switch cfg.Credentials.Backend {
	case config.CredentialBackendMemory:
		credentials = authmemory.NewStore()
	case config.CredentialBackendFile:
		credentials, err = authfile.NewStore(cfg.Credentials.FilePath)
		if err != nil {
			logger.Error("failed to open credentials file", slog.Any("error", err))
			os.Exit(1)
		}
	case config.CredentialBackendPostgres:
		credentialsDB, err := authpostgres.Open(ctx, authpostgres.DBConfig{
			DSN:             cfg.Credentials.DSN,
			MaxOpenConns:    cfg.Credentials.MaxOpenConns,
			MaxIdleConns:    cfg.Credentials.MaxIdleConns,
			ConnMaxIdleTime: cfg.Credentials.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Credentials.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open credentials db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = credentialsDB.Close() }()
		credentials = authpostgres.NewStore(credentialsDB)
		readiness = append(readiness, credentialsDB.PingContext)
	}

	var factory query.Factory
	switch cfg.Engine.Driver {
	case config.EngineDuckDB:
		factory = duckdbengine.Factory(cfg.Engine.RowLimit)
	default:
		factory = sqliteengine.Factory(cfg.Engine.RowLimit)
	}

	var completer nl2sql.Completer
	switch cfg.AI.Provider {
	case config.AIProviderOpenAI:
		completer, err = nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize completion client", slog.Any("error", err))
			os.Exit(1)
		}
	default:
		completer = nl2sql.NewOllamaClient(nl2sql.OllamaConfig{
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		})
	}
	translator, err := nl2sql.NewPipeline(completer)
	if err != nil {
		logger.Error("failed to initialize translator", slog.Any("error", err))
		os.Exit(1)
	}

	var archiver api.UploadArchiver
	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = storage.NewArchiver(objectStore)
	}

	sessions := session.NewManager(factory, cfg.Session.IdleTTL)
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("closing sessions failed", slog.Any("error", err))
		}
	}()
	go sessions.Run(ctx, logger, sessionSweepInterval)

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
		Auth:              auth.NewService(credentials, 0),
		Sessions:          sessions,
		Translator:        translator,
		Archiver:          archiver,
		UI:                uistatic.Handler(),
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("engine", cfg.Engine.Driver),
			slog.String("credentials", cfg.Credentials.Backend),
			slog.String("ai_provider", completer.Provider()),
			slog.String("ai_model", completer.Model()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
}
