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

	"go.uber.org/zap"

	"ecoroute/internal/api"
	"ecoroute/internal/buildinfo"
	"ecoroute/internal/config"
	"ecoroute/internal/logging"
	"ecoroute/internal/metrics"
	"ecoroute/internal/opt"
	"ecoroute/internal/store"
	"ecoroute/internal/webhooks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	metrics.RegisterDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	optimizer := opt.New(loadEstimator(cfg, log), cfg.SolverConfig(), log.Named("opt"))
	if optimizer.Degraded() {
		metrics.EstimatorDegraded.Set(1)
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var broker api.EventBroker = api.NewBroker()
	if cfg.RedisURL != "" {
		rb, err := api.NewRedisBroker(ctx, cfg.RedisURL, log.Named("broker"))
		if err != nil {
			return err
		}
		broker = rb
		log.Info("using redis broker")
	}
	defer func() { _ = broker.Close() }()

	queue := webhooks.NewQueue()
	var hooks *webhooks.Publisher
	if len(cfg.WebhookURLs) > 0 {
		hooks = webhooks.NewPublisher(cfg.WebhookURLs, queue)
		worker := webhooks.NewWorker(queue, cfg.WebhookSecret, cfg.WebhookMaxAttempts, log.Named("webhooks"))
		go worker.Run(ctx)
		log.Info("webhook notifications enabled", zap.Int("endpoints", len(cfg.WebhookURLs)))
	}

	srv := api.NewServer(cfg, api.Deps{
		Store:     st,
		Optimizer: optimizer,
		Broker:    broker,
		Hooks:     hooks,
		Queue:     queue,
		Log:       log.Named("http"),
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("API listening", zap.String("addr", httpSrv.Addr), zap.String("version", buildinfo.Version))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// loadEstimator returns nil when no usable model artifact exists, which
// puts the optimiser into degraded mode.
func loadEstimator(cfg config.Config, log *zap.Logger) opt.Estimator {
	if cfg.EstimatorPath == "" {
		return opt.LinearEstimator{SpeedKph: cfg.AverageSpeedKph}
	}
	est, err := opt.LoadEstimator(cfg.EstimatorPath)
	if err != nil {
		log.Warn("travel-time model not loaded", zap.String("path", cfg.EstimatorPath), zap.Error(err))
		return nil
	}
	log.Info("travel-time model loaded", zap.String("path", cfg.EstimatorPath))
	return est
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("using in-memory store")
		return store.NewMemory(), nil
	}
	sq, err := store.OpenSQL(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.DBMigrate {
		if err := sq.Migrate(ctx); err != nil {
			_ = sq.Close()
			return nil, err
		}
	}
	driver := cfg.DBDriver
	if driver == "" {
		driver = store.DriverFor(cfg.DatabaseURL)
	}
	log.Info("using SQL store", zap.String("driver", driver))
	return sq, nil
}
