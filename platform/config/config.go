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
	GetDatabaseMaxConns() int
}

// SchedulerConfig provides Redis and asynq settings for background jobs.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// DispatchConfig provides settings for the follow-up dispatch sweep.
type DispatchConfig interface {
	GetSweepInterval() time.Duration
	GetSweepLeaseTTL() time.Duration
	GetSweepClaimTTL() time.Duration
	GetSweepBatchSize() int
	GetSweepConcurrency() int
	GetSendTimeout() time.Duration
	GetStoreTimeout() time.Duration
	GetMaxDeliveryAttempts() int
	GetRetryBaseDelay() time.Duration
	GetRetryMaxDelay() time.Duration
}

// ScoringConfig provides the weight set for conversational scoring.
type ScoringConfig interface {
	GetScoringWeights() (fit, timeline, budget, intent float64)
}

// RoutingConfig provides an optional routing rule file.
type RoutingConfig interface {
	GetRoutingRulesFile() string
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetBrevoAPIKey() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
}

// SMSConfig provides Twilio settings for SMS delivery.
type SMSConfig interface {
	GetTwilioAccountSID() string
	GetTwilioAuthToken() string
	GetTwilioFromNumber() string
	IsSMSEnabled() bool
}

// WhatsAppConfig provides settings for the WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// PhoneConfig provides the default region used to parse national numbers.
type PhoneConfig interface {
	GetPhoneDefaultRegion() string
}

// AIConfig provides settings for the text generation model.
type AIConfig interface {
	GetMoonshotAPIKey() string
	GetMoonshotBaseURL() string
	GetAISmartModel() string
	GetAICheapModel() string
	IsAIEnabled() bool
}

// ArchiveConfig provides settings for MinIO S3-compatible decision storage.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketDecisions() string
	IsMinIOEnabled() bool
}

// EventStreamConfig provides Kafka settings for forwarding domain events.
type EventStreamConfig interface {
	GetKafkaBrokers() []string
	GetKafkaTopic() string
	IsEventStreamEnabled() bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env              string
	HTTPAddr         string
	DatabaseURL      string
	DatabaseMaxConns int
	JWTAccessSecret  string
	CORSAllowAll     bool
	CORSOrigins      []string
	CORSAllowCreds   bool
	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	SweepInterval       time.Duration
	SweepLeaseTTL       time.Duration
	SweepClaimTTL       time.Duration
	SweepBatchSize      int
	SweepConcurrency    int
	SendTimeout         time.Duration
	StoreTimeout        time.Duration
	MaxDeliveryAttempts int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration

	WeightFit      float64
	WeightTimeline float64
	WeightBudget   float64
	WeightIntent   float64

	RoutingRulesFile string

	EmailEnabled     bool
	BrevoAPIKey      string
	EmailFromName    string
	EmailFromAddress string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string

	PhoneDefaultRegion string

	MoonshotAPIKey  string
	MoonshotBaseURL string
	AISmartModel    string
	AICheapModel    string

	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MinioBucketDecisions string

	KafkaBrokers []string
	KafkaTopic   string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string   { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int { return c.DatabaseMaxConns }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// DispatchConfig implementation
func (c *Config) GetSweepInterval() time.Duration  { return c.SweepInterval }
func (c *Config) GetSweepLeaseTTL() time.Duration  { return c.SweepLeaseTTL }
func (c *Config) GetSweepClaimTTL() time.Duration  { return c.SweepClaimTTL }
func (c *Config) GetSweepBatchSize() int           { return c.SweepBatchSize }
func (c *Config) GetSweepConcurrency() int         { return c.SweepConcurrency }
func (c *Config) GetSendTimeout() time.Duration    { return c.SendTimeout }
func (c *Config) GetStoreTimeout() time.Duration   { return c.StoreTimeout }
func (c *Config) GetMaxDeliveryAttempts() int      { return c.MaxDeliveryAttempts }
func (c *Config) GetRetryBaseDelay() time.Duration { return c.RetryBaseDelay }
func (c *Config) GetRetryMaxDelay() time.Duration  { return c.RetryMaxDelay }

// ScoringConfig implementation
func (c *Config) GetScoringWeights() (fit, timeline, budget, intent float64) {
	return c.WeightFit, c.WeightTimeline, c.WeightBudget, c.WeightIntent
}

// RoutingConfig implementation
func (c *Config) GetRoutingRulesFile() string { return c.RoutingRulesFile }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }

// SMSConfig implementation
func (c *Config) GetTwilioAccountSID() string { return c.TwilioAccountSID }
func (c *Config) GetTwilioAuthToken() string  { return c.TwilioAuthToken }
func (c *Config) GetTwilioFromNumber() string { return c.TwilioFromNumber }
func (c *Config) IsSMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// PhoneConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string  { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotBaseURL() string { return c.MoonshotBaseURL }
func (c *Config) GetAISmartModel() string    { return c.AISmartModel }
func (c *Config) GetAICheapModel() string    { return c.AICheapModel }
func (c *Config) IsAIEnabled() bool          { return c.MoonshotAPIKey != "" }

// ArchiveConfig implementation
func (c *Config) GetMinIOEndpoint() string        { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string       { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string       { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool            { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketDecisions() string { return c.MinioBucketDecisions }
func (c *Config) IsMinIOEnabled() bool            { return c.MinIOEndpoint != "" }

// EventStreamConfig implementation
func (c *Config) GetKafkaBrokers() []string  { return c.KafkaBrokers }
func (c *Config) GetKafkaTopic() string      { return c.KafkaTopic }
func (c *Config) IsEventStreamEnabled() bool { return len(c.KafkaBrokers) > 0 && c.KafkaTopic != "" }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	brevoAPIKey := getEnv("BREVO_API_KEY", "")
	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseMaxConns: mustInt(getEnv("DB_MAX_CONNS", "25")),
		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:     corsAllowAll,
		CORSOrigins:      corsOrigins,
		CORSAllowCreds:   strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),

		SweepInterval:       mustDuration(getEnv("SWEEP_INTERVAL", "1m")),
		SweepLeaseTTL:       mustDuration(getEnv("SWEEP_LEASE_TTL", "5m")),
		SweepClaimTTL:       mustDuration(getEnv("SWEEP_CLAIM_TTL", "15m")),
		SweepBatchSize:      mustInt(getEnv("SWEEP_BATCH_SIZE", "200")),
		SweepConcurrency:    mustInt(getEnv("SWEEP_CONCURRENCY", "8")),
		SendTimeout:         mustDuration(getEnv("SEND_TIMEOUT", "15s")),
		StoreTimeout:        mustDuration(getEnv("STORE_TIMEOUT", "5s")),
		MaxDeliveryAttempts: mustInt(getEnv("MAX_DELIVERY_ATTEMPTS", "5")),
		RetryBaseDelay:      mustDuration(getEnv("RETRY_BASE_DELAY", "1m")),
		RetryMaxDelay:       mustDuration(getEnv("RETRY_MAX_DELAY", "1h")),

		WeightFit:      mustFloat(getEnv("SCORING_WEIGHT_FIT", "0.25")),
		WeightTimeline: mustFloat(getEnv("SCORING_WEIGHT_TIMELINE", "0.25")),
		WeightBudget:   mustFloat(getEnv("SCORING_WEIGHT_BUDGET", "0.25")),
		WeightIntent:   mustFloat(getEnv("SCORING_WEIGHT_INTENT", "0.25")),

		RoutingRulesFile: getEnv("ROUTING_RULES_FILE", ""),

		EmailEnabled:     emailEnabled && (brevoAPIKey != "" || smtpHost != ""),
		BrevoAPIKey:      brevoAPIKey,
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Lead Desk"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		SMTPHost:         smtpHost,
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USER", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_PHONE_NUMBER", ""),

		WhatsAppURL:      getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:      getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID: getEnv("WHATSAPP_DEVICE_ID", ""),

		PhoneDefaultRegion: getEnv("PHONE_DEFAULT_REGION", "US"),

		MoonshotAPIKey:  getEnv("MOONSHOT_API_KEY", ""),
		MoonshotBaseURL: getEnv("MOONSHOT_BASE_URL", ""),
		AISmartModel:    getEnv("AI_SMART_MODEL", "kimi-k2-turbo-preview"),
		AICheapModel:    getEnv("AI_CHEAP_MODEL", "moonshot-v1-8k"),

		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketDecisions: getEnv("MINIO_BUCKET_DECISIONS", "lead-decisions"),

		KafkaBrokers: splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "lead-engine.events"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be a positive duration")
	}
	if cfg.SweepLeaseTTL < cfg.SweepInterval {
		return nil, fmt.Errorf("SWEEP_LEASE_TTL must be at least SWEEP_INTERVAL")
	}
	// The lease is renewed every third of its TTL, each renewal bounded by STORE_TIMEOUT.
	if cfg.SweepLeaseTTL < 3*cfg.StoreTimeout {
		return nil, fmt.Errorf("SWEEP_LEASE_TTL must be at least three times STORE_TIMEOUT")
	}
	if cfg.SweepBatchSize <= 0 || cfg.SweepConcurrency <= 0 {
		return nil, fmt.Errorf("SWEEP_BATCH_SIZE and SWEEP_CONCURRENCY must be positive")
	}
	if need := batchDuration(cfg); cfg.SweepClaimTTL < need {
		return nil, fmt.Errorf("SWEEP_CLAIM_TTL must cover a full batch (at least %s)", need)
	}

	return cfg, nil
}

// batchDuration is the worst case for one sweep batch: each wave of
// SWEEP_CONCURRENCY events spends one send and two store calls.
func batchDuration(cfg *Config) time.Duration {
	waves := (cfg.SweepBatchSize + cfg.SweepConcurrency - 1) / cfg.SweepConcurrency
	return time.Duration(waves) * (cfg.SendTimeout + 2*cfg.StoreTimeout)
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

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
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
