package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corliansa/deploy-webhook/pkg/config"
	"github.com/corliansa/deploy-webhook/pkg/deploy"
	"github.com/corliansa/deploy-webhook/pkg/logging"
	"github.com/corliansa/deploy-webhook/pkg/queue"
	"github.com/corliansa/deploy-webhook/pkg/revalidate"
	"github.com/corliansa/deploy-webhook/pkg/shutdown"
	"github.com/corliansa/deploy-webhook/pkg/webhook"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func main() {
	logger := logging.NewLogger(logging.LogLevelInfo)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	logger.SetLevel(logging.ParseLogLevel(logging.LogLevel(cfg.LogLevel)))
	logging.LogStartup(logger, version, cfg.Server.Port)

	logger.WithFields(logrus.Fields{
		"log_level":       cfg.LogLevel,
		"port":            cfg.Server.Port,
		"path":            cfg.Server.Path,
		"validation_mode": cfg.Webhook.ValidationMode,
		"workers":         cfg.Deploy.Workers,
		"queue_size":      cfg.Deploy.QueueSize,
		"revalidate_path": cfg.Revalidate.Path,
	}).Info("Configuration loaded")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Deploy webhook stopped with error")
		os.Exit(1)
	}

	logger.Info("Deploy webhook stopped")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	shutdownTimeout, err := cfg.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("invalid server.shutdown_timeout: %w", err)
	}

	runner, err := deploy.NewCommandRunner(cfg, logger)
	if err != nil {
		return err
	}
	if err := runner.ValidateConfig(); err != nil {
		return err
	}

	httpRevalidator, err := revalidate.New(cfg, logger)
	if err != nil {
		return err
	}
	revalidator := revalidate.NewAsync(httpRevalidator, logger)

	actions := deploy.NewActionTableFromConfig(cfg)
	logger.WithFields(logrus.Fields{
		"count":        actions.Len(),
		"repositories": actions.Repositories(),
	}).Info("Action table loaded")

	deployQueue := queue.NewDeployQueue(cfg.Deploy.QueueSize, logger)
	workerPool := queue.NewWorkerPool(deployQueue, cfg.Deploy.Workers, deploy.Handler(runner), logger)

	handler, err := webhook.NewHandler(cfg, actions, deploy.NewQueueTrigger(deployQueue, logger), revalidator, logger)
	if err != nil {
		return err
	}

	server := webhook.NewServer(cfg, handler, logger)

	shutdownManager := shutdown.NewManager(logger)
	shutdownManager.RegisterCleanup("webhook-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})
	shutdownManager.RegisterCleanup("worker-pool", func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(shutdownTimeout)
		}
		err := workerPool.Stop(time.Until(deadline))
		stats := workerPool.Stats()
		logger.WithFields(logrus.Fields{
			"queue_depth": stats.QueueDepth,
			"in_flight":   stats.InFlight,
		}).Info("Worker pool stopped")
		return err
	})
	shutdownManager.RegisterCleanup("revalidations", revalidator.Wait)

	workerPool.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Warn("Shutdown initiated")
	case runErr = <-serverErr:
		if runErr != nil {
			logger.WithError(runErr).Error("Server error occurred")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := shutdownManager.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return runErr
}
