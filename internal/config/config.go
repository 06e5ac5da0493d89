package config

import (
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"regexp"
	"strings"

	"smsrelay/internal/constants"
	"smsrelay/internal/models"
	"smsrelay/internal/security"
	"smsrelay/internal/validation"

	"github.com/spf13/viper"
)

var (
	ErrMissingEndpointURL = models.ConfigError{Message: "missing endpoint URL"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
	ErrMissingPublicKey   = models.ConfigError{Message: "encryption mode requires encryption.public_key or encryption.public_key_file"}
)

// LoadConfig reads a JSON or YAML config file, applies defaults and
// SMSRELAY_* environment overrides, and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	if path == "" || strings.ContainsRune(path, '\x00') {
		return nil, fmt.Errorf("invalid config path")
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return decode(v)
}

// LoadFromEnvironment builds a config from defaults and the environment only
func LoadFromEnvironment() (*models.Config, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint.url", "")
	v.SetDefault("endpoint.token", "")
	v.SetDefault("endpoint.connect_timeout_sec", constants.DefaultConnectTimeoutSec)
	v.SetDefault("endpoint.read_timeout_sec", constants.DefaultReadTimeoutSec)
	v.SetDefault("endpoint.write_timeout_sec", constants.DefaultWriteTimeoutSec)
	v.SetDefault("endpoint.rate_limit_per_sec", constants.DefaultRateLimitPerSec)

	v.SetDefault("encryption.mode", models.EncryptionModePlain)
	v.SetDefault("encryption.public_key", "")
	v.SetDefault("encryption.public_key_file", "")

	v.SetDefault("database.path", constants.DefaultDatabasePath)
	v.SetDefault("database.encrypt_payloads", false)

	v.SetDefault("retry.interval_sec", constants.DefaultRetryIntervalSec)
	v.SetDefault("retry.initial_backoff_ms", constants.DefaultRetryBackoffMs)
	v.SetDefault("retry.max_backoff_ms", constants.DefaultMaxBackoffMs)
	v.SetDefault("retry.max_attempts", constants.DefaultMaxAttempts)
	v.SetDefault("retry.persist_before_send", false)

	v.SetDefault("circuit_breaker.max_failures", constants.DefaultCircuitBreakerMaxFailures)
	v.SetDefault("circuit_breaker.reset_timeout_sec", constants.DefaultCircuitBreakerResetSec)

	v.SetDefault("receivers.fallback_number", "")

	v.SetDefault("server.port", fmt.Sprintf("%d", constants.DefaultServerPort))
	v.SetDefault("server.ingest_token", "")
	v.SetDefault("server.graceful_shutdown_sec", constants.DefaultGracefulShutdownSec)
	v.SetDefault("server.trust_proxy_headers", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "smsrelay")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 0.1)
	v.SetDefault("tracing.use_stdout", false)

	v.SetDefault("monitor.check_interval_sec", constants.DefaultMonitorIntervalSec)
	v.SetDefault("monitor.stale_threshold_min", constants.DefaultStaleThresholdMin)

	v.SetDefault("sender_filter", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

func decode(v *viper.Viper) (*models.Config, error) {
	var config models.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyEnvironmentOverrides(&config)

	if err := resolvePublicKey(&config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv(constants.EnvEndpointURL); url != "" {
		c.Endpoint.URL = url
	}
	// Secrets belong in the environment, not in the config file
	if token := os.Getenv(constants.EnvEndpointToken); token != "" {
		c.Endpoint.Token = token
	}
	if key := os.Getenv(constants.EnvPublicKey); key != "" {
		c.Encryption.PublicKey = key
	}
	if path := os.Getenv(constants.EnvDatabasePath); path != "" {
		c.Database.Path = path
	}
	if token := os.Getenv(constants.EnvIngestToken); token != "" {
		c.Server.IngestToken = token
	}
	if level := os.Getenv(constants.EnvLogLevel); level != "" {
		c.LogLevel = level
	}
}

// resolvePublicKey loads public_key_file into public_key. PEM files are
// reduced to the base64 DER body.
func resolvePublicKey(c *models.Config) error {
	if c.Encryption.PublicKey != "" || c.Encryption.PublicKeyFile == "" {
		return nil
	}

	if err := security.ValidateFilePath(c.Encryption.PublicKeyFile); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid encryption.public_key_file: %v", err)}
	}
	content, err := os.ReadFile(c.Encryption.PublicKeyFile) // #nosec G304 - validated above
	if err != nil {
		return models.ConfigError{Message: fmt.Sprintf("failed to read public key file: %v", err)}
	}

	if block, _ := pem.Decode(content); block != nil {
		c.Encryption.PublicKey = base64.StdEncoding.EncodeToString(block.Bytes)
		return nil
	}
	c.Encryption.PublicKey = strings.TrimSpace(string(content))
	return nil
}

func validate(c *models.Config) error {
	if c.Endpoint.URL == "" {
		return ErrMissingEndpointURL
	}
	if err := validation.ValidateEndpointURL(c.Endpoint.URL); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid endpoint.url: %v", err)}
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	switch c.Encryption.Mode {
	case "":
		c.Encryption.Mode = models.EncryptionModePlain
	case models.EncryptionModePlain:
	case models.EncryptionModeRSAOAEP, models.EncryptionModeHybrid:
		if c.Encryption.PublicKey == "" {
			return ErrMissingPublicKey
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown encryption.mode %q (want plain, rsa-oaep or hybrid)", c.Encryption.Mode)}
	}

	timeouts := map[string]int{
		"endpoint.connect_timeout_sec": c.Endpoint.ConnectTimeoutSec,
		"endpoint.read_timeout_sec":    c.Endpoint.ReadTimeoutSec,
		"endpoint.write_timeout_sec":   c.Endpoint.WriteTimeoutSec,
		"retry.interval_sec":           c.Retry.IntervalSec,
	}
	for key, value := range timeouts {
		if err := validation.ValidateTimeout(value, key); err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	}
	if c.Endpoint.RateLimitPerSec < 0 {
		return models.ConfigError{Message: "endpoint.rate_limit_per_sec cannot be negative"}
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		c.Retry.MaxBackoffMs = c.Retry.InitialBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	if c.CircuitBreaker.MaxFailures <= 0 {
		c.CircuitBreaker.MaxFailures = constants.DefaultCircuitBreakerMaxFailures
	}
	if c.CircuitBreaker.ResetTimeoutSec <= 0 {
		c.CircuitBreaker.ResetTimeoutSec = constants.DefaultCircuitBreakerResetSec
	}

	for deviceID, number := range c.Receivers.Numbers {
		if err := validation.ValidatePhoneNumber(number); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid receivers.numbers[%s]: %v", deviceID, err)}
		}
	}
	if c.Receivers.FallbackNumber != "" {
		if err := validation.ValidatePhoneNumber(c.Receivers.FallbackNumber); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid receivers.fallback_number: %v", err)}
		}
	}

	if c.SenderFilter != "" {
		if _, err := regexp.Compile(c.SenderFilter); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid sender_filter: %v", err)}
		}
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("SMSRELAY_ENV") == "production"

	if isProduction {
		if c.Endpoint.Token == "" {
			return models.ConfigError{Message: fmt.Sprintf("endpoint token is required in production (set %s)", constants.EnvEndpointToken)}
		}
		if !strings.HasPrefix(c.Endpoint.URL, "https://") {
			return models.ConfigError{Message: "endpoint.url must use https in production"}
		}
		if c.Server.IngestToken == "" {
			return models.ConfigError{Message: fmt.Sprintf("ingest token is required in production (set %s)", constants.EnvIngestToken)}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		if c.Endpoint.Token == "" {
			fmt.Fprintf(os.Stderr, "WARNING: endpoint token not set. Set %s for authenticated delivery.\n", constants.EnvEndpointToken)
		}
		if c.Server.IngestToken == "" {
			fmt.Fprintf(os.Stderr, "WARNING: ingest token not set. Set %s to protect the ingest API.\n", constants.EnvIngestToken)
		}
	}
	return nil
}
