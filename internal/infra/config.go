package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	LedgerBackend      string
	DatabaseURL        string
	JWTSecret          string
	GeoIPDBPath        string
	RegionsFile        string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int

	LedgerMaxWriteAttempts int
	LedgerNotifyChannel    string
	FeedWindow             int
	MapWindow              int
	SnapshotTimeout        time.Duration
	SubscriptionRetry      time.Duration
	AuditInterval          time.Duration

	// Provisioning values for the memory backend.
	SeedTotalDonations string
	SeedUniqueDonors   int
}

// LoadConfig loads the API configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg, err := LoadLedgerConfig()
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// LoadLedgerConfig loads the settings needed by processes that only touch the
// ledger (worker, ledgerctl). JWT_SECRET is not required.
func LoadLedgerConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		LedgerBackend:      strings.ToLower(getEnv("LEDGER_BACKEND", BackendPostgres)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		RegionsFile:        os.Getenv("REGIONS_FILE"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		HTTPReadTimeout:    getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15),
		// SSE streams hold the response open; zero disables the write deadline.
		HTTPWriteTimeout: getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 0),
		HTTPIdleTimeout:  getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		LedgerMaxWriteAttempts: getEnvInt("LEDGER_MAX_WRITE_ATTEMPTS", 5),
		LedgerNotifyChannel:    getEnv("LEDGER_NOTIFY_CHANNEL", "ledger_changes"),
		FeedWindow:             getEnvInt("FEED_WINDOW", 50),
		MapWindow:              getEnvInt("MAP_WINDOW", 20),
		SnapshotTimeout:        getEnvSeconds("SNAPSHOT_TIMEOUT_SECONDS", 5),
		SubscriptionRetry:      getEnvSeconds("SUBSCRIPTION_RETRY_SECONDS", 5),
		AuditInterval:          getEnvSeconds("AUDIT_INTERVAL_SECONDS", 60),

		SeedTotalDonations: getEnv("SEED_TOTAL_DONATIONS", "0"),
		SeedUniqueDonors:   getEnvInt("SEED_UNIQUE_DONORS", 0),
	}

	switch cfg.LedgerBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.LedgerBackend)
	}

	if cfg.LedgerMaxWriteAttempts < 1 {
		return nil, fmt.Errorf("LEDGER_MAX_WRITE_ATTEMPTS must be at least 1")
	}
	if cfg.FeedWindow < 1 || cfg.MapWindow < 1 {
		return nil, fmt.Errorf("FEED_WINDOW and MAP_WINDOW must be at least 1")
	}
	// The map is projected from the recent feed, so it cannot show more than the feed holds.
	if cfg.MapWindow > cfg.FeedWindow {
		return nil, fmt.Errorf("MAP_WINDOW (%d) must not exceed FEED_WINDOW (%d)", cfg.MapWindow, cfg.FeedWindow)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
