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

	"github.com/nlsql/nlsql/internal/api"
	"github.com/nlsql/nlsql/internal/auth"
	"github.com/nlsql/nlsql/internal/catalog"
	"github.com/nlsql/nlsql/internal/config"
	"github.com/nlsql/nlsql/internal/export"
	"github.com/nlsql/nlsql/internal/history"
	"github.com/nlsql/nlsql/internal/nl2sql"
	"github.com/nlsql/nlsql/internal/observability"
	"github.com/nlsql/nlsql/internal/resolver"
	"github.com/nlsql/nlsql/internal/sandbox"
	s3store "github.com/nlsql/nlsql/internal/storage/s3"
	"github.com/nlsql/nlsql/internal/users"
	userspostgres "github.com/nlsql/nlsql/internal/users/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("nlsql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := history.NewSeededStore()
	if err != nil {
		logger.Error("failed to load history seed", slog.Any("error", err))
		os.Exit(1)
	}
	observability.SetHistoryEntries(store.Len())

	schema, err := catalog.DefaultSchema()
	if err != nil {
		logger.Error("failed to load schema", slog.Any("error", err))
		os.Exit(1)
	}

	engine := &resolver.Engine{
		History: store,
		Gateway: newGateway(cfg, logger),
		Tables:  schema.TableContexts(),
		Logger:  logger,
	}

	var (
		readiness    []api.ReadinessCheck
		userRepo     users.Repository   = users.NewMemoryRepository()
		sessionStore users.SessionStore = users.NewMemorySessionStore()
	)
	if cfg.Users.Backend == config.UsersBackendPostgres {
		usersDB, err := userspostgres.Open(ctx, userspostgres.DBConfig{
			DSN:             cfg.Users.DSN,
			MaxOpenConns:    cfg.Users.MaxOpenConns,
			MaxIdleConns:    cfg.Users.MaxIdleConns,
			ConnMaxIdleTime: cfg.Users.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Users.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open users db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = usersDB.Close() }()
		repo := userspostgres.NewRepository(usersDB)
		userRepo = repo
		sessionStore = repo
		readiness = append(readiness, api.CheckPing("users db", repo.HealthCheck))
	}
	accounts := users.NewService(userRepo, users.Options{
		SessionTTL: cfg.Users.SessionTTL,
		BcryptCost: cfg.Users.BcryptCost,
		Sessions:   sessionStore,
	})

	deps := api.Dependencies{
		Logger:            logger,
		Resolver:          engine,
		Schema:            &schema,
		History:           store,
		Accounts:          accounts,
		DependencyTimeout: time.Second,
	}

	if cfg.Sandbox.Enabled {
		deps.Sandbox = sandbox.NewChecker(schema)
	}

	if cfg.Export.Enabled {
		objectStore, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		exporter := &export.Service{
			History:     store,
			ObjectStore: objectStore,
			Interval:    cfg.Export.Interval,
			Logger:      logger,
		}
		deps.Exporter = exporter
		readiness = append(readiness, api.CheckObjectStoreConfig(cfg))
		go func() {
			_ = exporter.Run(ctx)
		}()
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, auth.ChainValidators(validator, accounts))
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
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
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
		os.Exit(1)
	}
}

// newGateway builds the configured model gateway. A gateway that cannot be
// built is logged and left nil; the resolver then reports model failures
// while history lookups keep working.
func newGateway(cfg config.Config, logger *slog.Logger) nl2sql.Gateway {
	switch cfg.AI.Provider {
	case config.ProviderOllama:
		return nl2sql.NewOllamaGateway(nl2sql.OllamaConfig{
			Host:    cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		})
	default:
		gateway, err := nl2sql.NewOpenAIGateway(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Warn("model gateway disabled", slog.Any("error", err))
			return nil
		}
		return gateway
	}
}
