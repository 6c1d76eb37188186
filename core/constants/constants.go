package constants

import "time"

// Timeouts
const (
	DefaultTimeout     = 30 * time.Second
	ProviderCallTimeout = 15 * time.Second
	WebhookAckBudget   = 3 * time.Second
)

// Database
const (
	DatabaseSSLMode         = "disable"
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 5
	DatabaseConnMaxLifetime = 30 // minutes
)

// Redis keys
const (
	RedisKeyTokenBlacklist = "auth:blacklist:"
	RedisKeyOAuthState     = "oauth:state:"
)

// OAuth
const (
	OAuthStateTTL          = 10 * time.Minute
	TokenRefreshSafetyMargin = 5 * time.Minute
)

// Sync engine
const (
	MaxSyncRetries              = 3  // 4 total attempts
	CircuitBreakerThreshold     = 10 // consecutive failures before pausing
	BulkSyncBatchSize           = 10
	RetrySweepInterval          = 5 * time.Minute
	WebhookChannelLifetime      = 7 * 24 * time.Hour
	WebhookChannelRenewalWindow = 24 * time.Hour
	SyncLogRetentionDays        = 90
	ImportRollbackWindow        = 24 * time.Hour
)

// RetryBackoffSchedule maps retry number (1-based) to the wait before that
// retry becomes eligible.
var RetryBackoffSchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// Quota
const (
	QuotaDailyLimit        = 10000
	QuotaHighWaterPercent  = 90
)
