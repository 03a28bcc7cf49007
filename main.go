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

	"github.com/rs/cors"

	"github.com/fatali-fataliyev/expense_tracker/api"
	"github.com/fatali-fataliyev/expense_tracker/internal/auth"
	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
	"github.com/fatali-fataliyev/expense_tracker/internal/cache"
	"github.com/fatali-fataliyev/expense_tracker/internal/config"
	"github.com/fatali-fataliyev/expense_tracker/internal/events"
	"github.com/fatali-fataliyev/expense_tracker/internal/storage"
	"github.com/fatali-fataliyev/expense_tracker/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.LogLevel, cfg.AppEnv, cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logging.Logger.Errorf("application stopped with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logging.Logger.Info("application starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storageInstance, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage()

	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Expiration)

	var opts []budget.Option
	if cfg.Cache.Enabled {
		expenseCache := budget.NewExpenseCache(cfg.Cache.Size, cfg.Cache.TTL)
		cacheManager := cache.NewManager()
		cacheManager.Register(expenseCache.Cleaners()...)
		cacheManager.StartCleanup(cfg.Cache.TTL)
		defer cacheManager.Stop()

		opts = append(opts, budget.WithCache(expenseCache))
		logging.Logger.Infof("expense cache enabled (size=%d, ttl=%s)", cfg.Cache.Size, cfg.Cache.TTL)
	}

	var broadcaster *events.Broadcaster
	if cfg.AMQP.URL != "" {
		broadcaster, err = events.NewBroadcaster(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			// caches still expire by TTL
			logging.Logger.Warnf("cache invalidation broadcast disabled: %v", err)
		} else {
			defer broadcaster.Close()
			opts = append(opts, budget.WithNotifier(broadcaster))
		}
	}

	bt := budget.NewBudgetTracker(storageInstance, tokens, opts...)
	if err := bt.SeedRoles(ctx); err != nil {
		return err
	}

	if broadcaster != nil {
		go func() {
			if err := broadcaster.Subscribe(ctx, bt.InvalidateExpense); err != nil && !errors.Is(err, context.Canceled) {
				logging.Logger.Errorf("expense change subscription stopped: %v", err)
			}
		}()
	}

	corsConf := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{api.TraceIDHeader},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsConf.Handler(api.NewApi(&bt).Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Logger.Infof("Starting server on port: %s (storage=%s)", cfg.Port, bt.StorageType)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logging.Logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	logging.Logger.Info("application stopped")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (budget.Storage, func() error, error) {
	switch cfg.StorageType {
	case config.StorageMySQL:
		db, err := storage.InitMySQL(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSQLStorage(db, config.StorageMySQL), db.Close, nil
	case config.StorageSQLite:
		db, err := storage.InitSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSQLStorage(db, config.StorageSQLite), db.Close, nil
	default:
		logging.Logger.Warn("using in-memory storage, data is lost on restart")
		return storage.NewInMemoryStorage(), func() error { return nil }, nil
	}
}
