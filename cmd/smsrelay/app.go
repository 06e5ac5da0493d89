package main

import (
	"context"
	"crypto/rsa"
	"io"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/crypto"
	"smsrelay/internal/database"
	"smsrelay/internal/delivery"
	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/logging"
	"smsrelay/internal/models"
	"smsrelay/internal/relay"
	"smsrelay/internal/retry"
	"smsrelay/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// app holds the components shared by the serve, drain and queue commands
type app struct {
	cfg         *models.Config
	logger      *logrus.Logger
	logCloser   io.Closer
	db          *database.Database
	coordinator *relay.Coordinator
}

func loadConfig() (*models.Config, error) {
	return config.LoadConfig(viper.GetString("config"))
}

func newLogger(cfg *models.Config) (*logrus.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Verbose: viper.GetBool("verbose"),
	})
}

// newApp loads configuration and opens the queue. Commands that only touch
// the queue pass withSender=false and get no coordinator.
func newApp(ctx context.Context, withSender bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := openQueue(ctx, cfg, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, logCloser: closer, db: db}
	if withSender {
		sender, err := newSender(cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.coordinator = relay.NewCoordinator(db, sender, logger,
			relay.WithPersistBeforeSend(cfg.Retry.PersistBeforeSend))
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Failed to close database")
	}
	_ = a.logCloser.Close()
}

// openQueue opens the failure queue, retrying transient SQLite errors with
// the configured backoff.
func openQueue(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoff := retry.NewBackoff(retry.FromRetryConfig(cfg.Retry))

	var db *database.Database
	err := backoff.RetryWithPredicate(ctx, func() error {
		var openErr error
		db, openErr = database.New(cfg.Database.Path, cfg.Database.EncryptPayloads)
		if openErr != nil {
			logger.WithError(openErr).Warn("Failed to open failure queue")
		}
		return openErr
	}, isTransientOpenError)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// isTransientOpenError retries storage failures but not bad paths or a bad
// encryption secret.
func isTransientOpenError(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeDatabaseQuery) ||
		apperrors.HasCode(err, apperrors.ErrCodeDatabaseConnection)
}

func newSender(cfg *models.Config, logger *logrus.Logger) (*delivery.Client, error) {
	var key *rsa.PublicKey
	if cfg.Encryption.Mode != models.EncryptionModePlain && cfg.Encryption.Mode != "" {
		loaded, err := crypto.LoadPublicKey(cfg.Encryption.PublicKey)
		if err != nil {
			return nil, err
		}
		key = loaded
	}
	sealer, err := crypto.NewSealer(cfg.Encryption.Mode, key)
	if err != nil {
		return nil, err
	}

	breaker := circuitbreaker.New("delivery",
		uint32(cfg.CircuitBreaker.MaxFailures),
		time.Duration(cfg.CircuitBreaker.ResetTimeoutSec)*time.Second,
		logger)

	return delivery.NewClient(delivery.ConfigFromModel(cfg.Endpoint), sealer, logger,
		delivery.WithCircuitBreaker(breaker)), nil
}
