package models

// Config holds the application configuration
type Config struct {
	Endpoint       EndpointConfig       `json:"endpoint" mapstructure:"endpoint"`
	Encryption     EncryptionConfig     `json:"encryption" mapstructure:"encryption"`
	Database       DatabaseConfig       `json:"database" mapstructure:"database"`
	Retry          RetryConfig          `json:"retry" mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" mapstructure:"circuit_breaker"`
	Receivers      ReceiversConfig      `json:"receivers" mapstructure:"receivers"`
	Server         ServerConfig         `json:"server" mapstructure:"server"`
	Tracing        TracingConfig        `json:"tracing" mapstructure:"tracing"`
	Monitor        MonitorConfig        `json:"monitor" mapstructure:"monitor"`
	SenderFilter   string               `json:"sender_filter" mapstructure:"sender_filter"`
	LogLevel       string               `json:"log_level" mapstructure:"log_level"`
	LogFile        string               `json:"log_file" mapstructure:"log_file"`
}

// EndpointConfig describes the remote collection endpoint
type EndpointConfig struct {
	URL               string `json:"url" mapstructure:"url"`
	Token             string `json:"token" mapstructure:"token"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec" mapstructure:"connect_timeout_sec"`
	ReadTimeoutSec    int    `json:"read_timeout_sec" mapstructure:"read_timeout_sec"`
	WriteTimeoutSec   int    `json:"write_timeout_sec" mapstructure:"write_timeout_sec"`
	RateLimitPerSec   int    `json:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
}

// Encryption modes for the "data" field of the envelope
const (
	EncryptionModePlain   = "plain"
	EncryptionModeRSAOAEP = "rsa-oaep"
	EncryptionModeHybrid  = "hybrid"
)

// EncryptionConfig selects how the outbound batch is framed
type EncryptionConfig struct {
	Mode          string `json:"mode" mapstructure:"mode"`
	PublicKey     string `json:"public_key" mapstructure:"public_key"`
	PublicKeyFile string `json:"public_key_file" mapstructure:"public_key_file"`
}

// DatabaseConfig holds failure queue storage settings
type DatabaseConfig struct {
	Path            string `json:"path" mapstructure:"path"`
	EncryptPayloads bool   `json:"encrypt_payloads" mapstructure:"encrypt_payloads"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	IntervalSec       int  `json:"interval_sec" mapstructure:"interval_sec"`
	InitialBackoffMs  int  `json:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int  `json:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MaxAttempts       int  `json:"max_attempts" mapstructure:"max_attempts"`
	PersistBeforeSend bool `json:"persist_before_send" mapstructure:"persist_before_send"`
}

// CircuitBreakerConfig guards the delivery endpoint
type CircuitBreakerConfig struct {
	MaxFailures     int `json:"max_failures" mapstructure:"max_failures"`
	ResetTimeoutSec int `json:"reset_timeout_sec" mapstructure:"reset_timeout_sec"`
}

// ReceiversConfig maps receiver device ids (SIM ICCID or slot) to the phone
// number the SMS was received on.
type ReceiversConfig struct {
	Numbers        map[string]string `json:"numbers" mapstructure:"numbers"`
	FallbackNumber string            `json:"fallback_number" mapstructure:"fallback_number"`
}

// ServerConfig holds the ingest API settings
type ServerConfig struct {
	Port                string `json:"port" mapstructure:"port"`
	IngestToken         string `json:"ingest_token" mapstructure:"ingest_token"`
	GracefulShutdownSec int    `json:"graceful_shutdown_sec" mapstructure:"graceful_shutdown_sec"`
	// TrustProxyHeaders uses X-Forwarded-For / X-Real-IP for the logged
	// client address. Enable only behind a reverse proxy.
	TrustProxyHeaders bool `json:"trust_proxy_headers" mapstructure:"trust_proxy_headers"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName    string  `json:"service_name" mapstructure:"service_name"`
	ServiceVersion string  `json:"service_version" mapstructure:"service_version"`
	Environment    string  `json:"environment" mapstructure:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" mapstructure:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" mapstructure:"use_stdout"`
}

// MonitorConfig controls the queue depth monitor
type MonitorConfig struct {
	CheckIntervalSec  int `json:"check_interval_sec" mapstructure:"check_interval_sec"`
	StaleThresholdMin int `json:"stale_threshold_min" mapstructure:"stale_threshold_min"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
