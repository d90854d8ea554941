// Package config loads application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Thresholds Thresholds
	RateLimit  RateLimitConfig
	Scheduler  SchedulerConfig
}

// Thresholds are the analysis knobs, fixed at construction time and immutable
// for the lifetime of a scan.
type Thresholds struct {
	UsageMismatchThreshold     float64
	MRRDeclineWarningPercent   float64
	MRRDeclineCriticalPercent  float64
	UsageDeclineLookbackDays   int
	DowngradeLookbackDays      int
	MRRDeclineLookbackDays     int
	PaymentFailureLookbackDays int
}

// RateLimitConfig controls the redis-backed usage-ingest limiter.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IngestRate  float64
	IngestBurst int
	LockTTLSec  int
}

// SchedulerConfig controls the daily snapshot job.
type SchedulerConfig struct {
	Enabled         bool
	IntervalSeconds int
}

// DefaultThresholds mirror the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		UsageMismatchThreshold:     0.7,
		MRRDeclineWarningPercent:   5.0,
		MRRDeclineCriticalPercent:  15.0,
		UsageDeclineLookbackDays:   30,
		DowngradeLookbackDays:      30,
		MRRDeclineLookbackDays:     7,
		PaymentFailureLookbackDays: 7,
	}
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	defaults := DefaultThresholds()

	return Config{
		AppName:     getenv("APP_SERVICE", "moneyradar"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "moneyradar"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Thresholds: Thresholds{
			UsageMismatchThreshold:     getenvFloat("USAGE_MISMATCH_THRESHOLD", defaults.UsageMismatchThreshold),
			MRRDeclineWarningPercent:   getenvFloat("MRR_DECLINE_WARNING_PERCENT", defaults.MRRDeclineWarningPercent),
			MRRDeclineCriticalPercent:  getenvFloat("MRR_DECLINE_CRITICAL_PERCENT", defaults.MRRDeclineCriticalPercent),
			UsageDeclineLookbackDays:   getenvInt("USAGE_DECLINE_LOOKBACK_DAYS", defaults.UsageDeclineLookbackDays),
			DowngradeLookbackDays:      getenvInt("DOWNGRADE_LOOKBACK_DAYS", defaults.DowngradeLookbackDays),
			MRRDeclineLookbackDays:     getenvInt("MRR_DECLINE_LOOKBACK_DAYS", defaults.MRRDeclineLookbackDays),
			PaymentFailureLookbackDays: getenvInt("PAYMENT_FAILURE_LOOKBACK_DAYS", defaults.PaymentFailureLookbackDays),
		},

		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("REDIS_DB", 0),
			IngestRate:    getenvFloat("USAGE_INGEST_RATE", 50),
			IngestBurst:   getenvInt("USAGE_INGEST_BURST", 100),
			LockTTLSec:    getenvInt("SNAPSHOT_LOCK_TTL_SECONDS", 60),
		},

		Scheduler: SchedulerConfig{
			Enabled:         getenvBool("SCHEDULER_ENABLED", true),
			IntervalSeconds: getenvInt("SCHEDULER_INTERVAL_SECONDS", 3600),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
