package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPassword = "change-me"
	DefaultSalt     = "beacon-anon-salt"
)

var defaultOrigins = []string{
	"https://vowky.com",
	"https://www.vowky.com",
	"https://dev.vowky.com",
}

type Config struct {
	ListenAddr string
	TLSAddr    string

	DBDriver         string
	SQLitePath       string
	SQLiteReadConns  int
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string

	AdminUser         string
	AdminPassword     string
	AdminPasswordHash string
	Salt              string

	AllowedOrigins []string
	DashboardPath  string

	RateLimitSweepInterval time.Duration

	ExportBucket    string
	ExportRegion    string
	ExportEndpoint  string
	ExportAccessKey string
	ExportSecretKey string
	ExportInterval  time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, seeds variables that are not already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:             getEnv("LISTEN_ADDR", ":8100"),
		TLSAddr:                getEnv("TLS_ADDR", ""),
		DBDriver:               strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		SQLitePath:             getEnv("ANALYTICS_DB", "./data/analytics.db"),
		SQLiteReadConns:        getEnvInt("SQLITE_READ_CONNS", 4),
		PostgresUser:           getEnv("POSTGRES_USER", "analytics"),
		PostgresPassword:       getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:           getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:           getEnv("POSTGRES_PORT", "5432"),
		PostgresDatabase:       getEnv("POSTGRES_DATABASE", "analytics"),
		PostgresSSLMode:        getEnv("POSTGRES_SSL_MODE", "disable"),
		AdminUser:              getEnv("ANALYTICS_USER", "admin"),
		AdminPassword:          getEnv("ANALYTICS_PASS", DefaultPassword),
		AdminPasswordHash:      getEnv("ANALYTICS_PASS_HASH", ""),
		Salt:                   getEnv("ANALYTICS_SALT", DefaultSalt),
		AllowedOrigins:         getEnvList("ALLOWED_ORIGINS", defaultOrigins),
		DashboardPath:          getEnv("DASHBOARD_PATH", "./web/dashboard.html"),
		RateLimitSweepInterval: getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		ExportBucket:           getEnv("EXPORT_BUCKET", ""),
		ExportRegion:           getEnv("EXPORT_REGION", "us-east-1"),
		ExportEndpoint:         getEnv("EXPORT_ENDPOINT", ""),
		ExportAccessKey:        getEnv("AWS_ACCESS_KEY_ID", ""),
		ExportSecretKey:        getEnv("AWS_SECRET_ACCESS_KEY", ""),
		ExportInterval:         getEnvDuration("EXPORT_INTERVAL", time.Hour),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "text"),
	}
}

// ExportEnabled reports whether the archive exporter has somewhere to write.
func (c *Config) ExportEnabled() bool {
	return c.ExportBucket != ""
}

// InsecureDefaults lists the secrets still set to their shipped values.
func (c *Config) InsecureDefaults() []string {
	var names []string
	if c.AdminPasswordHash == "" && c.AdminPassword == DefaultPassword {
		names = append(names, "ANALYTICS_PASS")
	}
	if c.Salt == DefaultSalt {
		names = append(names, "ANALYTICS_SALT")
	}
	return names
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration only accepts positive durations; the intervals it reads
// drive tickers.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
