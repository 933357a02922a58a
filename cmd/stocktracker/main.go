// Package main wires together the stock tracker service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gpuwatch/gpu-stock-tracker/internal/api"
	"github.com/gpuwatch/gpu-stock-tracker/internal/browser"
	"github.com/gpuwatch/gpu-stock-tracker/internal/catalog"
	"github.com/gpuwatch/gpu-stock-tracker/internal/clock/system"
	"github.com/gpuwatch/gpu-stock-tracker/internal/config"
	collyfetcher "github.com/gpuwatch/gpu-stock-tracker/internal/fetcher/colly"
	"github.com/gpuwatch/gpu-stock-tracker/internal/id/uuid"
	"github.com/gpuwatch/gpu-stock-tracker/internal/logging"
	"github.com/gpuwatch/gpu-stock-tracker/internal/metrics"
	"github.com/gpuwatch/gpu-stock-tracker/internal/queue"
	queuemem "github.com/gpuwatch/gpu-stock-tracker/internal/queue/memory"
	"github.com/gpuwatch/gpu-stock-tracker/internal/scheduler"
	"github.com/gpuwatch/gpu-stock-tracker/internal/scraper"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
	"github.com/gpuwatch/gpu-stock-tracker/internal/storage/memory"
	"github.com/gpuwatch/gpu-stock-tracker/internal/storage/postgres"
	"github.com/gpuwatch/gpu-stock-tracker/internal/sweep"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clock := system.New()
	idGen := uuid.New()

	var (
		registry     stock.ProductRegistry
		availability stock.AvailabilityStore
		jobLog       stock.JobLog
	)
	if cfg.DB.DSN != "" {
		lifetime, err := time.ParseDuration(cfg.DB.MaxConnLifetime)
		if err != nil {
			return fmt.Errorf("parse db.max_conn_lifetime: %w", err)
		}
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: lifetime,
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		if registry, err = postgres.NewProductStore(pool, clock, idGen); err != nil {
			return err
		}
		if availability, err = postgres.NewAvailabilityStore(pool, clock, idGen); err != nil {
			return err
		}
		if jobLog, err = postgres.NewJobStore(pool, clock, idGen); err != nil {
			return err
		}
		logger.Info("using postgres stores")
	} else {
		memRegistry := memory.NewProductRegistry(clock, idGen)
		registry = memRegistry
		availability = memory.NewAvailabilityStore(memRegistry, clock, idGen)
		jobLog = memory.NewJobLog(clock, idGen)
		logger.Info("using in-memory stores")
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		BaseURL:     cfg.Scraper.BaseURL,
		ListingPath: cfg.Scraper.ListingPath,
		UserAgent:   cfg.Scraper.UserAgent,
		Timeout:     time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second,
	})

	var strategy stock.ExtractionStrategy
	if cfg.Scraper.PreferredStrategy == config.StrategyBrowser {
		driver := browser.New(browser.Config{
			UserAgent:  cfg.Scraper.UserAgent,
			NavTimeout: time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
			Settle:     time.Duration(cfg.Browser.SettleMs) * time.Millisecond,
			Headless:   true,
		}, logger)
		defer driver.Close()
		strategy = driver
	} else {
		strategy = scraper.NewStatic(fetcher, logger)
	}

	runner := sweep.NewRunner(registry, availability, jobLog, strategy, sweep.TimerPacer{}, cfg.ProductDelay(), logger)
	discovery := catalog.NewDiscovery(fetcher, registry, fetcher, cfg.ListingDelay(), cfg.Scraper.MaxListingPages, logger)

	q := queuemem.NewQueue(cfg.Queue.Depth)
	defer q.Close()
	queueRegistry := queue.NewRegistry(clock, idGen)
	trigger := queue.NewTrigger(queueRegistry, q, clock)
	worker := queue.NewWorker(q, queueRegistry, runner, queue.Config{
		MaxAttempts:  cfg.Queue.MaxAttempts,
		BackoffBase:  time.Duration(cfg.Queue.BackoffBaseSec) * time.Second,
		SweepTimeout: cfg.SweepTimeout(),
	}, logger)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	if cfg.Scheduler.Enabled {
		interval := time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute
		go scheduler.New(trigger, interval, logger).Run(ctx)
	}

	server := api.NewServer(trigger, registry, availability, jobLog, runner, discovery, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}
	}

	<-workerDone
	return nil
}
