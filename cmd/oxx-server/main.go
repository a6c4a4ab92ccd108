package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/oxx-labs/oxx-backend/internal/api"
	"github.com/oxx-labs/oxx-backend/internal/bootstrap"
	"github.com/oxx-labs/oxx-backend/internal/config"
	"github.com/oxx-labs/oxx-backend/internal/metrics"
	"github.com/oxx-labs/oxx-backend/internal/reconciler"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

const (
	shutdownTimeout        = 30 * time.Second
	metricsCollectInterval = 15 * time.Second
	startupTimeout         = 30 * time.Second
)

func main() {
	if err := config.Init(); err != nil {
		panic(fmt.Sprintf("Failed to initialize config: %v", err))
	}

	logConfig := logging.LoggerConfig{
		LogDir:        logging.GetBaseDataDir(),
		ProcessName:   logging.ServerProcess,
		IsDevelopment: config.IsDevMode(),
	}

	logger, err := logging.NewZapLogger(logConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	logger.Info("Starting OXX server...",
		"mode", config.IsDevMode(),
		"port", config.GetPort(),
		"chain_id", config.GetChainID(),
	)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	app, err := bootstrap.New(startupCtx, logger)
	cancelStartup()
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	metrics.StartMetricsCollection(metricsCtx, metricsCollectInterval)

	scheduler := app.Scheduler()
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start market data scheduler: %v", err)
	}

	handler := &api.Handler{
		Creator:     app.Factory,
		Tokens:      app.Query,
		Trader:      app.Trading,
		Refresher:   app.Reconciler,
		Projects:    app.Projects,
		Journal:     app.Journal,
		Eligibility: app.Eligibility,
		Signer:      app.Signer,
		Logger:      logger,
	}
	server := api.NewServer(api.Config{
		Host:           config.GetHost(),
		Port:           config.GetPort(),
		AllowedOrigins: config.GetCORSOrigins(),
		IdempotencyTTL: config.GetIdempotencyTTL(),
	}, handler, logger)

	var wg sync.WaitGroup
	serverErrors := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			serverErrors <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Infof("OXX server initialized, listening on port %s...", config.GetPort())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error received", "error", err)
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	performGracefulShutdown(server, scheduler, app, &wg, logger)
	stopMetrics()
	logger.Shutdown()
}

func performGracefulShutdown(server *api.Server, scheduler *reconciler.Scheduler, app *bootstrap.App, wg *sync.WaitGroup, logger logging.Logger) {
	logger.Info("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop(ctx)
	wg.Wait()
	app.Close()

	logger.Info("Shutdown complete")
}
