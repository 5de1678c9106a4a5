package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	s3 "checkout/aws"
	"checkout/internal/payment/express"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	AllowedOrigins []string
	LogLevel       string

	TokenSecret []byte
	TokenTTL    time.Duration

	SessionTTL          time.Duration
	CompletedSessionTTL time.Duration
	AuditQueueSize      int

	Credentials      express.Credentials
	GatewayTimeout   time.Duration
	MaxExpiryRetries int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	MongoURI        string
	MongoDatabase   string
	AuditCollection string

	AWS         s3.AWSConfig
	AuditBucket string
}

// Load reads .env files when present and then the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	cfg := Config{
		Addr:           getenv("ADDR", ":8080"),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "http://localhost:4200")),
		LogLevel:       getenv("LOG_LEVEL", "info"),

		TokenSecret: []byte(os.Getenv("TOKEN_SECRET")),
		TokenTTL:    getDuration("TOKEN_TTL", time.Hour),

		Credentials:      express.CredentialsFromEnv(),
		GatewayTimeout:   getDuration("GATEWAY_TIMEOUT", 30*time.Second),
		MaxExpiryRetries: getInt("MAX_EXPIRY_RETRIES", 3),
		RetryBaseDelay:   getDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:    getDuration("RETRY_MAX_DELAY", 5*time.Second),

		MongoURI:        os.Getenv("MONGODB_URL"),
		MongoDatabase:   getenv("MONGODB_DATABASE", "checkout"),
		AuditCollection: getenv("AUDIT_COLLECTION", "checkout_audit"),

		AWS:            s3.ConfigFromEnv(),
		AuditBucket:    os.Getenv("AUDIT_BUCKET"),
		AuditQueueSize: getInt("AUDIT_QUEUE_SIZE", 256),
	}
	// a session is useless once its token can no longer be presented
	cfg.SessionTTL = getDuration("SESSION_TTL", cfg.TokenTTL)
	cfg.CompletedSessionTTL = getDuration("COMPLETED_SESSION_TTL", 5*time.Minute)

	if len(cfg.TokenSecret) == 0 {
		return Config{}, errors.New("TOKEN_SECRET is not provided")
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
