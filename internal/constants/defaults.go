package constants

// Default delivery configuration values
const (
	DefaultConnectTimeoutSec = 15
	DefaultReadTimeoutSec    = 15
	DefaultWriteTimeoutSec   = 15
	DefaultRateLimitPerSec   = 0
)

// Default retry configuration values
const (
	DefaultRetryIntervalSec = 60
	DefaultRetryBackoffMs   = 1000
	DefaultMaxBackoffMs     = 60000
	DefaultMaxAttempts      = 5
)

// Default circuit breaker values
const (
	DefaultCircuitBreakerMaxFailures = 5
	DefaultCircuitBreakerResetSec    = 30
)

// Default storage values
const (
	DefaultDatabasePath          = "smsrelay.db"
	DefaultDatabaseRetryAttempts = 3
	MinEncryptionSecretLength    = 32
	EncryptionSalt               = "smsrelay-failed-events-v1"
)

// Default server values
const (
	DefaultServerPort            = 8086
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	MaxIngestBodyBytes           = 1 << 20
)

// Default queue monitor values
const (
	DefaultMonitorIntervalSec  = 60
	DefaultStaleThresholdMin   = 60
	DefaultWorkerQueueCapacity = 256
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)

// Environment variables that override file configuration
const (
	EnvEndpointURL     = "SMSRELAY_ENDPOINT_URL"
	EnvEndpointToken   = "SMSRELAY_TOKEN"
	EnvPublicKey       = "SMSRELAY_PUBLIC_KEY"
	EnvDatabasePath    = "SMSRELAY_DB_PATH"
	EnvDBEncryptSecret = "SMSRELAY_DB_ENCRYPTION_SECRET"
	EnvIngestToken     = "SMSRELAY_INGEST_TOKEN"
	EnvLogLevel        = "SMSRELAY_LOG_LEVEL"
	EnvPrefix          = "SMSRELAY"
)

// Input limits
const (
	MinPhoneNumberLength = 3
	MaxPhoneNumberLength = 20
	MaxSenderLength      = 64
	MaxContentLength     = 64 * 1024
	MaxDeviceIDLength    = 64
	MaxTimeoutSec        = 3600
)
