package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clintrovert/boardbridge/internal/api/rest"
	"github.com/clintrovert/boardbridge/internal/azure"
	"github.com/clintrovert/boardbridge/internal/config"
	"github.com/clintrovert/boardbridge/internal/dispatch"
	"github.com/clintrovert/boardbridge/internal/github"
	"github.com/clintrovert/boardbridge/internal/jira"
	"github.com/clintrovert/boardbridge/internal/lock"
	"github.com/clintrovert/boardbridge/internal/secrets"
	"github.com/clintrovert/boardbridge/internal/workitem"
)

func main() {
	// Local development reads settings from .env
	if isDevelopment() {
		_ = godotenv.Load()
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Server)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create work item tracker
	tracker, err := newTracker(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create tracker", zap.Error(err))
	}

	// Create GitHub client factory
	factory, err := newClientFactory(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create github client factory", zap.Error(err))
	}

	// Create issue locker
	var locker lock.IssueLocker = lock.Noop{}
	if cfg.Lock.RedisURL != "" {
		redisLocker, err := lock.NewRedisFromURL(ctx, cfg.Lock.RedisURL, cfg.Lock.TTL, logger)
		if err != nil {
			logger.Fatal("failed to create redis locker", zap.Error(err))
		}
		defer redisLocker.Close()
		locker = redisLocker
	}

	synchronizer := workitem.NewSynchronizer(tracker, cfg.Mapping, cfg.Work, cfg.Replay, logger)
	linker := github.NewLinker(factory, synchronizer, logger)
	dispatcher := dispatch.NewDispatcher(synchronizer, linker, locker, cfg.Mapping, logger)

	// Create REST API handler
	restHandler := rest.NewHandler(dispatcher, cfg.GitHub.WebhookSecret, logger)

	// Setup REST API
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Route("/api", func(r chi.Router) {
		restHandler.RegisterRoutes(r)
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Start REST server
	restAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	restServer := &http.Server{
		Addr:              restAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting webhook server",
			zap.String("address", restAddr),
			zap.String("tracker", cfg.Tracker),
		)
		if err := restServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start REST server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	// Shutdown server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down REST server", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func newLogger(cfg config.ServerConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	return zapConfig.Build()
}

func newTracker(cfg *config.Config, logger *zap.Logger) (workitem.Tracker, error) {
	switch cfg.Tracker {
	case config.TrackerJira:
		client, err := jira.NewClient(cfg.Jira.URL, cfg.Jira.Username, cfg.Jira.Token, cfg.Jira.ProjectKey, cfg.Work, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return azure.NewClient(cfg.Azure.OrgURL, cfg.Azure.Token, cfg.Azure.Project, logger), nil
	}
}

func newClientFactory(cfg *config.Config, logger *zap.Logger) (github.ClientFactory, error) {
	if cfg.GitHub.Token != "" {
		return github.NewTokenClientFactory(cfg.GitHub.Token, cfg.GitHub.GraphQLURL, logger), nil
	}

	// An inline key takes precedence over Key Vault
	var resolver secrets.Chain
	if cfg.GitHub.PrivateKey != "" {
		resolver = append(resolver, secrets.Static{cfg.GitHub.PrivateKeySecret: cfg.GitHub.PrivateKey})
	}
	if cfg.KeyVault.Name != "" {
		vault, err := secrets.NewKeyVault(cfg.KeyVault.URL(), logger)
		if err != nil {
			return nil, err
		}
		resolver = append(resolver, vault)
	}

	return github.NewAppClientFactory(
		cfg.GitHub.AppID,
		cfg.GitHub.PrivateKeySecret,
		resolver,
		cfg.GitHub.APIURL,
		cfg.GitHub.GraphQLURL,
		logger,
	), nil
}

func isDevelopment() bool {
	for _, key := range []string{"DEVELOPMENT", "IsDevelopment"} {
		if value := getEnv(key, "false"); value == "true" || value == "1" {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
