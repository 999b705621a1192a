package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath string

	DashboardBaseURL    string
	DashboardAPIKey     string
	FinancialImportPath string
	HygieneImportPath   string
	DefaultDataSource   string

	BatchSize         int
	MaxAttempts       int
	RetryBaseDelayMs  int
	BatchDelayMs      int
	HTTPTimeoutMs     int
	RateLimitRPS      int
	SheetTimezone     string
	HeaderLookahead   int
	MaxProductionCap  float64
	MaxCollectionsCap float64

	SummaryLogSheet  string
	DebugLogSheet    string
	LogMaxEntries    int
	LogRetentionDays int
	NotifyEmail      string
	NotifyFrom       string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleRefreshToken string

	DaemonIntervalSec int
	DaemonDailyHour   int
	DaemonWorkbooks   string
	DaemonDomain      string
	DaemonLocation    string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath: getEnv("DB_PATH", filepath.Join(cwd, "data", "dentsync.db")),

		DashboardBaseURL:    getEnv("DASHBOARD_API_BASE_URL", ""),
		DashboardAPIKey:     getEnv("DASHBOARD_API_KEY", ""),
		FinancialImportPath: getEnv("FINANCIAL_IMPORT_PATH", "api/financials/sync"),
		HygieneImportPath:   getEnv("HYGIENE_IMPORT_PATH", "api/hygiene-production/sync"),
		DefaultDataSource:   getEnv("DEFAULT_DATA_SOURCE_ID", ""),

		BatchSize:         getEnvInt("SYNC_BATCH_SIZE", 50),
		MaxAttempts:       getEnvInt("SYNC_MAX_ATTEMPTS", 3),
		RetryBaseDelayMs:  getEnvInt("SYNC_RETRY_BASE_MS", 1000),
		BatchDelayMs:      getEnvInt("SYNC_BATCH_DELAY_MS", 500),
		HTTPTimeoutMs:     getEnvInt("SYNC_HTTP_TIMEOUT_MS", 30000),
		RateLimitRPS:      getEnvInt("SYNC_RATE_LIMIT_RPS", 5),
		SheetTimezone:     getEnv("SHEET_TIMEZONE", "America/Chicago"),
		HeaderLookahead:   getEnvInt("HEADER_LOOKAHEAD_ROWS", 5),
		MaxProductionCap:  getEnvFloat("MAX_PRODUCTION_AMOUNT", 1000000),
		MaxCollectionsCap: getEnvFloat("MAX_COLLECTIONS_AMOUNT", 1000000),

		SummaryLogSheet:  getEnv("SUMMARY_LOG_SHEET", "Sync Log"),
		DebugLogSheet:    getEnv("DEBUG_LOG_SHEET", "Debug Log"),
		LogMaxEntries:    getEnvInt("LOG_MAX_ENTRIES", 500),
		LogRetentionDays: getEnvInt("LOG_RETENTION_DAYS", 30),
		NotifyEmail:      getEnv("NOTIFY_EMAIL", ""),
		NotifyFrom:       getEnv("NOTIFY_FROM", "me"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),

		DaemonIntervalSec: getEnvInt("DAEMON_INTERVAL_SEC", 0),
		DaemonDailyHour:   getEnvInt("DAEMON_DAILY_HOUR", 5),
		DaemonWorkbooks:   getEnv("DAEMON_WORKBOOKS", ""),
		DaemonDomain:      getEnv("DAEMON_DOMAIN", "financials"),
		DaemonLocation:    getEnv("DAEMON_LOCATION", ""),
	}

	return cfg, nil
}

func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMs) * time.Millisecond
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMs) * time.Millisecond
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SheetTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
