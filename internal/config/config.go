package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	RedisURL string

	DeadLetterBucket string

	JWTPublicKeyPath string

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	SNSRegion string

	// Verification-code policy. One TTL for both the durable record and
	// the cache mirror — the two windows are conceptually the same.
	VerificationTTL         time.Duration
	VerificationMaxAttempts int
	VerificationCodeLength  int

	// Outbound limiter defaults (per channel sender).
	RateMaxRequests  int           // sliding-window ceiling per destination
	RateWindow       time.Duration // sliding-window length
	RateTokensPerSec float64       // global token-bucket rate

	// Dispatcher tuning.
	DispatchWorkers    int
	DispatchRetries    int
	DispatchRetryWait  time.Duration
	EmailBatchSize     int
	EmailPerSecond     int
	FailedRetryCeiling int
	SweepSchedule      string // cron spec for the failed-queue sweep

	SendTimeout time.Duration // per external call

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users               string
	Notifications       string
	UserVerifications   string
	FailedNotifications string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:               getEnv("DYNAMO_TABLE_USERS", "users"),
			Notifications:       getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			UserVerifications:   getEnv("DYNAMO_TABLE_USER_VERIFICATIONS", "user_verifications"),
			FailedNotifications: getEnv("DYNAMO_TABLE_FAILED_NOTIFICATIONS", "failed_notifications"),
		},

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		DeadLetterBucket: getEnv("DEAD_LETTER_BUCKET", "notification-dead-letters"),

		JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		SNSRegion: getEnv("SNS_REGION", "us-east-1"),

		VerificationTTL:         getEnvDuration("VERIFICATION_TTL", 10*time.Minute),
		VerificationMaxAttempts: getEnvInt("VERIFICATION_MAX_ATTEMPTS", 5),
		VerificationCodeLength:  getEnvInt("VERIFICATION_CODE_LENGTH", 6),

		RateMaxRequests:  getEnvInt("RATE_MAX_REQUESTS", 5),
		RateWindow:       getEnvDuration("RATE_WINDOW", 60*time.Second),
		RateTokensPerSec: getEnvFloat("RATE_TOKENS_PER_SEC", 30),

		DispatchWorkers:    getEnvInt("DISPATCH_WORKERS", 4),
		DispatchRetries:    getEnvInt("DISPATCH_RETRIES", 2),
		DispatchRetryWait:  getEnvDuration("DISPATCH_RETRY_WAIT", 500*time.Millisecond),
		EmailBatchSize:     getEnvInt("EMAIL_BATCH_SIZE", 50),
		EmailPerSecond:     getEnvInt("EMAIL_PER_SECOND", 14),
		FailedRetryCeiling: getEnvInt("FAILED_RETRY_CEILING", 5),
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", "@every 5m"),

		SendTimeout: getEnvDuration("SEND_TIMEOUT", 10*time.Second),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
