package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultBatchLimit   = 450
	DefaultRestockGrace = 4 * time.Hour

	// MaxBatchLimit is the store's ceiling on writes per batch.
	MaxBatchLimit = 500
)

type Config struct {
	Port string

	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool
	Store             string

	RedisAddress string

	BatchLimit       int
	RestockGrace     time.Duration
	RestockMode      string
	Schedule         string
	Timezone         string
	ReconcileTimeout time.Duration
	NotifyOnCleanup  bool
	SMSAPIURL        string
	SMSAPIUser       string
	SMSAPIKey        string
	SMSSender        string
	JWTSecret        string
	LogLevel         string
}

// LoadEnv loads environment variables from a .env file. A missing file is
// reported but never fatal.
func LoadEnv() error {
	return godotenv.Load(".env")
}

// GetEnv retrieves environment variables with a fallback
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// Load reads the service configuration from the environment.
func Load() Config {
	return Config{
		Port:              GetEnv("PORT", "3000"),
		MongoURI:          GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:     GetEnv("MONGODB_DATABASE", "0xmart"),
		MongoTransactions: getBool("MONGODB_TRANSACTIONS", false),
		Store:             GetEnv("STORE", "mongo"),
		RedisAddress:      GetEnv("REDIS_ADDRESS", ""),
		BatchLimit:        min(getInt("BATCH_LIMIT", DefaultBatchLimit), MaxBatchLimit),
		RestockGrace:      getDuration("RESTOCK_GRACE", DefaultRestockGrace),
		RestockMode:       GetEnv("RESTOCK_MODE", "rewrite"),
		Schedule:          GetEnv("RECONCILE_SCHEDULE", "@every 24h"),
		Timezone:          GetEnv("RECONCILE_TIMEZONE", "UTC"),
		ReconcileTimeout:  getDuration("RECONCILE_TIMEOUT", 9*time.Minute),
		NotifyOnCleanup:   getBool("NOTIFY_ON_CLEANUP", false),
		SMSAPIURL:         GetEnv("SMS_API_URL", ""),
		SMSAPIUser:        GetEnv("SMS_API_USER", ""),
		SMSAPIKey:         GetEnv("SMS_API_KEY", ""),
		SMSSender:         GetEnv("SMS_SENDER", ""),
		JWTSecret:         GetEnv("JWT_SECRET", ""),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
	}
}
