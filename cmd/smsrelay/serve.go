package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/constants"
	"smsrelay/internal/envelope"
	"smsrelay/internal/logging"
	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/relay"
	"smsrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay and its ingest API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer a.Close()

	cfg, logger := a.cfg, a.logger
	logger.WithFields(logrus.Fields{
		"version":         Version,
		"build":           BuildTime,
		"commit":          GitCommit,
		"encryption_mode": cfg.Encryption.Mode,
	}).Info("Starting smsrelay")

	tracingManager := tracing.NewTracingManager(tracingConfig(cfg), logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize tracing, continuing without it")
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to shut down tracing")
		}
	}()

	worker, err := newRelay(cfg, a.coordinator, logger)
	if err != nil {
		return err
	}
	if err := worker.Start(ctx); err != nil {
		return err
	}

	monitor := relay.NewQueueMonitor(a.db,
		secondsOr(cfg.Monitor.CheckIntervalSec, constants.DefaultMonitorIntervalSec),
		time.Duration(orDefault(cfg.Monitor.StaleThresholdMin, constants.DefaultStaleThresholdMin))*time.Minute,
		logger)
	go monitor.Start(ctx)
	defer monitor.Stop()

	if path := viper.GetString("config"); path != "" {
		watcher := config.NewConfigWatcher(path, cfg, logger)
		verbose := viper.GetBool("verbose")
		watcher.OnConfigChange(func(newCfg *models.Config) {
			logging.ApplyLevel(logger, newCfg.LogLevel, verbose)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	server := NewServer(cfg.Server, worker, metrics.GetRegistry(), logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-serverErrCh:
		logger.Error(runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		secondsOr(cfg.Server.GracefulShutdownSec, constants.DefaultGracefulShutdownSec))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down ingest server gracefully")
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Relay stopped before all deliveries settled")
	}

	logger.Info("Shutdown completed")
	return runErr
}

func newRelay(cfg *models.Config, coordinator *relay.Coordinator, logger *logrus.Logger) (*relay.Relay, error) {
	filter, err := relay.NewSenderFilter(cfg.SenderFilter)
	if err != nil {
		return nil, err
	}
	return relay.New(coordinator, relay.Options{
		Builder:       envelope.NewBuilder(nil),
		Resolver:      relay.NewResolver(cfg.Receivers),
		Filter:        filter,
		RetryInterval: secondsOr(cfg.Retry.IntervalSec, constants.DefaultRetryIntervalSec),
	}, logger), nil
}

func tracingConfig(cfg *models.Config) models.TracingConfig {
	tc := cfg.Tracing
	defaults := tracing.DefaultTracingConfig()
	if tc.ServiceName == "" {
		tc.ServiceName = defaults.ServiceName
	}
	if tc.ServiceVersion == "" {
		tc.ServiceVersion = Version
	}
	if tc.SampleRate <= 0 {
		tc.SampleRate = defaults.SampleRate
	}
	return tc
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func secondsOr(value, fallback int) time.Duration {
	return time.Duration(orDefault(value, fallback)) * time.Second
}
