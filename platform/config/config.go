// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// EmailConfig provides settings for the Brevo email transport.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetBrevoAPIKey() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// SMTPConfig provides settings for the SMTP email transport.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsSMTPEnabled() bool
}

// SMSConfig provides settings for the SMS gateway transport.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSAPIToken() string
	GetSMSSender() string
	GetSMSTimeout() time.Duration
}

// WhatsAppConfig provides settings for the WhatsApp gateway transport.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// PhoneConfig provides the default region for phone normalisation.
type PhoneConfig interface {
	GetPhoneDefaultRegion() string
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSenderProcessCron() string
	GetGlobalRollupCron() string
}

// RateLimitConfig provides settings for externally facing rate limits.
type RateLimitConfig interface {
	GetRedisURL() string
	GetPublicRateLimit() int
	GetPublicRateWindow() time.Duration
}

// CronConfig provides the shared secret for cron-triggered endpoints.
type CronConfig interface {
	GetCronSecret() string
}

// AudienceConfig provides settings for segmentation and action detection.
type AudienceConfig interface {
	GetAudienceWindowDays() int
	GetAudienceScanCap() int
	GetTierThresholds() TierThresholds
	GetOutreachTiers() []string
	GetRollupScanCap() int
}

// OutreachConfig provides settings for the outreach processor.
type OutreachConfig interface {
	GetOutreachStepDelay() time.Duration
	GetOutreachClaimLease() time.Duration
	GetOutreachBatchLimit() int
	GetOutreachSequencesFile() string
	GetDefaultSequenceKey() string
}

// UsageConfig provides default plan limits.
type UsageConfig interface {
	GetDefaultUsageLimit(metric string) int64
}

// TierThresholds holds the inclusive lower bound of each audience tier.
type TierThresholds struct {
	Cold int
	Warm int
	Hot  int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	MigrationsEnabled     bool
	JWTAccessSecret       string
	CORSAllowAll          bool
	CORSOrigins           []string
	CORSAllowCreds        bool
	EmailEnabled          bool
	BrevoAPIKey           string
	EmailFromName         string
	EmailFromAddress      string
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	SMSGatewayURL         string
	SMSAPIToken           string
	SMSSender             string
	SMSTimeout            time.Duration
	WhatsAppURL           string
	WhatsAppKey           string
	WhatsAppDeviceID      string
	PhoneDefaultRegion    string
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	SenderProcessCron     string
	GlobalRollupCron      string
	PublicRateLimit       int
	PublicRateWindow      time.Duration
	CronSecret            string
	AudienceWindowDays    int
	AudienceScanCap       int
	Tiers                 TierThresholds
	OutreachTiers         []string
	RollupScanCap         int
	OutreachStepDelay     time.Duration
	OutreachClaimLease    time.Duration
	OutreachBatchLimit    int
	OutreachSequencesFile string
	DefaultSequenceKey    string
	UsageLimits           map[string]int64
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string     { return c.SMTPHost }
func (c *Config) GetSMTPPort() int        { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }
func (c *Config) IsSMTPEnabled() bool     { return c.SMTPHost != "" }

// SMSConfig implementation
func (c *Config) GetSMSGatewayURL() string      { return c.SMSGatewayURL }
func (c *Config) GetSMSAPIToken() string        { return c.SMSAPIToken }
func (c *Config) GetSMSSender() string          { return c.SMSSender }
func (c *Config) GetSMSTimeout() time.Duration  { return c.SMSTimeout }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// PhoneConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string          { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool    { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string    { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int     { return c.AsynqConcurrency }
func (c *Config) GetSenderProcessCron() string { return c.SenderProcessCron }
func (c *Config) GetGlobalRollupCron() string  { return c.GlobalRollupCron }

// RateLimitConfig implementation
func (c *Config) GetPublicRateLimit() int            { return c.PublicRateLimit }
func (c *Config) GetPublicRateWindow() time.Duration { return c.PublicRateWindow }

// CronConfig implementation
func (c *Config) GetCronSecret() string { return c.CronSecret }

// AudienceConfig implementation
func (c *Config) GetAudienceWindowDays() int         { return c.AudienceWindowDays }
func (c *Config) GetAudienceScanCap() int            { return c.AudienceScanCap }
func (c *Config) GetTierThresholds() TierThresholds  { return c.Tiers }
func (c *Config) GetOutreachTiers() []string         { return c.OutreachTiers }
func (c *Config) GetRollupScanCap() int              { return c.RollupScanCap }

// OutreachConfig implementation
func (c *Config) GetOutreachStepDelay() time.Duration  { return c.OutreachStepDelay }
func (c *Config) GetOutreachClaimLease() time.Duration { return c.OutreachClaimLease }
func (c *Config) GetOutreachBatchLimit() int           { return c.OutreachBatchLimit }
func (c *Config) GetOutreachSequencesFile() string     { return c.OutreachSequencesFile }
func (c *Config) GetDefaultSequenceKey() string        { return c.DefaultSequenceKey }

// UsageConfig implementation
func (c *Config) GetDefaultUsageLimit(metric string) int64 {
	return c.UsageLimits[metric]
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	brevoAPIKey := getEnv("BREVO_API_KEY", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")
	smtpHost := getEnv("SMTP_HOST", "")

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		MigrationsEnabled:  strings.EqualFold(getEnv("DB_MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:    getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:       corsAllowAll,
		CORSOrigins:        corsOrigins,
		CORSAllowCreds:     strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		EmailEnabled:       emailEnabled && (brevoAPIKey != "" || smtpHost != ""),
		BrevoAPIKey:        brevoAPIKey,
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "Growth"),
		EmailFromAddress:   getEnv("EMAIL_FROM_ADDRESS", ""),
		SMTPHost:           smtpHost,
		SMTPPort:           mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMSGatewayURL:      getEnv("SMS_GATEWAY_URL", ""),
		SMSAPIToken:        getEnv("SMS_API_TOKEN", ""),
		SMSSender:          getEnv("SMS_SENDER", ""),
		SMSTimeout:         mustDuration(getEnv("SMS_TIMEOUT", "15s")),
		WhatsAppURL:        getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:        getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:   getEnv("WHATSAPP_DEVICE_ID", ""),
		PhoneDefaultRegion: getEnv("PHONE_DEFAULT_REGION", "US"),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisTLSInsecure:   strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:   mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		SenderProcessCron:  getEnv("SENDER_PROCESS_CRON", "*/5 * * * *"),
		GlobalRollupCron:   getEnv("GLOBAL_ROLLUP_CRON", "0 * * * *"),
		PublicRateLimit:    mustInt(getEnv("PUBLIC_RATE_LIMIT", "60")),
		PublicRateWindow:   mustDuration(getEnv("PUBLIC_RATE_WINDOW", "1m")),
		CronSecret:         getEnv("CRON_SECRET", ""),
		AudienceWindowDays: mustInt(getEnv("AUDIENCE_WINDOW_DAYS", "30")),
		AudienceScanCap:    mustInt(getEnv("AUDIENCE_SCAN_CAP", "5000")),
		Tiers: TierThresholds{
			Cold: mustInt(getEnv("AUDIENCE_TIER_COLD", "3")),
			Warm: mustInt(getEnv("AUDIENCE_TIER_WARM", "13")),
			Hot:  mustInt(getEnv("AUDIENCE_TIER_HOT", "21")),
		},
		OutreachTiers:         splitCSV(getEnv("AUDIENCE_OUTREACH_TIERS", "hot")),
		RollupScanCap:         mustInt(getEnv("AUDIENCE_ROLLUP_SCAN_CAP", "20000")),
		OutreachStepDelay:     mustDuration(getEnv("OUTREACH_STEP_DELAY", "24h")),
		OutreachClaimLease:    mustDuration(getEnv("OUTREACH_CLAIM_LEASE", "5m")),
		OutreachBatchLimit:    mustInt(getEnv("OUTREACH_BATCH_LIMIT", "50")),
		OutreachSequencesFile: getEnv("OUTREACH_SEQUENCES_FILE", ""),
		DefaultSequenceKey:    getEnv("OUTREACH_DEFAULT_SEQUENCE", "default"),
		UsageLimits: map[string]int64{
			"outreach_sends": mustInt64(getEnv("USAGE_LIMIT_OUTREACH_SENDS", "5000")),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if err := cfg.Tiers.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that thresholds are positive and strictly increasing.
func (t TierThresholds) Validate() error {
	if t.Cold <= 0 || t.Warm <= t.Cold || t.Hot <= t.Warm {
		return fmt.Errorf("audience tier thresholds must be positive and increasing (cold=%d warm=%d hot=%d)", t.Cold, t.Warm, t.Hot)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
