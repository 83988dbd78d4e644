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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/config"
	"github.com/kailas-cloud/creditgate/internal/db"
	dbBadger "github.com/kailas-cloud/creditgate/internal/db/badger"
	dbRedis "github.com/kailas-cloud/creditgate/internal/db/redis"
	"github.com/kailas-cloud/creditgate/internal/domain"
	logpkg "github.com/kailas-cloud/creditgate/internal/logger"
	"github.com/kailas-cloud/creditgate/internal/metrics"
	ledgerrepo "github.com/kailas-cloud/creditgate/internal/repository/ledger"
	chiTransport "github.com/kailas-cloud/creditgate/internal/transport/chi"
	"github.com/kailas-cloud/creditgate/internal/transport/remote"
	"github.com/kailas-cloud/creditgate/internal/usecase/account"
	healthuc "github.com/kailas-cloud/creditgate/internal/usecase/health"
	"github.com/kailas-cloud/creditgate/internal/usecase/reconcile"
	usageuc "github.com/kailas-cloud/creditgate/internal/usecase/usage"
	"github.com/kailas-cloud/creditgate/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting creditd",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Storage.Driver),
		zap.String("profile", cfg.Session.Profile),
		zap.String("tier", cfg.Session.Tier),
	)

	store, err := openStore(&cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Storage.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}
	logger.Info("Connected to store")

	if err := metrics.RegisterLedgerMetrics(nil); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid timezone", zap.Error(err))
	}

	// Pass a nil interface, not a typed nil *remote.Client, when no remote is set.
	var fetcher reconcile.Fetcher
	if cfg.Remote.BaseURL != "" {
		client, err := remote.NewClient(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			Token:   cfg.Remote.Token,
			Timeout: cfg.RemoteTimeout(),
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal("Failed to create remote client", zap.Error(err))
		}
		fetcher = client
	} else {
		logger.Warn("remote.base_url not set, serving from local cache only")
	}

	acct := account.New(account.Deps{
		Store:       ledgerrepo.New(store, cfg.Storage.KeyPrefix, cfg.Session.Profile),
		Fetcher:     fetcher,
		Policy:      cfg.Policy(),
		Tier:        cfg.Session.Tier,
		Location:    loc,
		MaxRetries:  cfg.Ledger.MaxCASRetries,
		SyncTimeout: cfg.RemoteTimeout(),
		Logger:      logger,
	})

	go func() {
		err := <-acct.Start(ctx)
		switch {
		case err == nil:
			logger.Info("Initial credit sync complete")
		case errors.Is(err, domain.ErrRemoteNotConfigured):
		default:
			logger.Warn("Initial credit sync failed, using cached balance", zap.Error(err))
		}
	}()
	go acct.Run(ctx, time.Duration(cfg.Remote.SyncIntervalSec)*time.Second)

	var syncReporter healthuc.SyncReporter
	if fetcher != nil {
		syncReporter = acct
	}
	server := chiTransport.NewServer(acct, usageuc.New(acct), healthuc.New(store, syncReporter), logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	chiTransport.HandlerWithOptions(server, chiTransport.ServerOptions{BaseRouter: r})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openStore builds the ledger store for the configured driver. redis and
// valkey share the rueidis driver.
func openStore(cfg *config.StorageConfig, logger *zap.Logger) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverRedis, config.DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("%s store: %w", cfg.Driver, err)
		}
		return s, nil
	case config.DriverBadger:
		s, err := dbBadger.NewStore(dbBadger.Config{
			Path:       cfg.BadgerPath,
			InMemory:   cfg.InMemory,
			SyncWrites: cfg.SyncWrites,
			Logger:     logger.Named("badger"),
		})
		if err != nil {
			return nil, fmt.Errorf("badger store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
