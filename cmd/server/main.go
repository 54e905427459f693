package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragchat-backend/internal/api"
	"ragchat-backend/internal/askclient"
	"ragchat-backend/internal/config"
	"ragchat-backend/internal/handlers"
	"ragchat-backend/internal/logger"
	"ragchat-backend/internal/services"
	"ragchat-backend/internal/store"
	"ragchat-backend/internal/store/postgres"
	"ragchat-backend/internal/store/sqlite"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	log.Info("starting ragchat backend")

	// 1. Load Configuration
	cfg, err := config.LoadConfig(log)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	// 2. Open the store and apply migrations
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, closeStore, err := openStore(dbCtx, cfg, log)
	dbCancel()
	if err != nil {
		log.Fatal("failed to open store", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	defer closeStore()

	// 3. Initialize Dependencies (Backend client, Services, Handlers)
	backend, err := askclient.New(cfg.AskBackendURL, cfg.AskTimeout, log)
	if err != nil {
		log.Fatal("failed to create answer backend client", zap.Error(err))
	}

	authService := services.NewAuthService(st, cfg, log)
	conversationService := services.NewConversationService(st, backend, cfg.AskHistoryLimit, log)
	documentService := services.NewDocumentService(backend, log)

	// 4. Setup Router & Inject Dependencies
	router := api.NewRouter(api.RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(authService, log),
		ConversationHandler: handlers.NewConversationHandlers(conversationService, log),
		DocumentHandler:     handlers.NewDocumentHandlers(documentService, log),
		Config:              cfg,
		Logger:              log,
	})

	// 5. Configure and Start HTTP Server
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.AskTimeout + 20*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("server listening", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not listen", zap.String("port", cfg.HTTPPort), zap.Error(err))
		}
	}()

	<-stopChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		return
	}
	log.Info("server shutdown complete")
}

// openStore connects to the configured database and brings its schema up to date.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, func(), error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("creating connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pinging database: %w", err)
		}
		if err := postgres.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewPostgresStore(pool, log), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}
