package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the controller.
type Config struct {
	Port string

	// WOO X credentials
	WooAPIKey        string
	WooAPISecret     string
	WooApplicationID string
	WooBaseURL       string
	WooHTTPTimeout   time.Duration

	// Market data
	Symbol      string
	UseMockFeed bool
	BackfillMax int

	// Trading mode
	PaperTrading bool

	// Strategy configuration
	StrategyConfigPath string

	// Reconciliation
	AuditInterval time.Duration

	// Database
	DBPath string

	// Auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		WooAPIKey:          os.Getenv("WOOX_API_KEY"),
		WooAPISecret:       os.Getenv("WOOX_API_SECRET"),
		WooApplicationID:   os.Getenv("WOOX_APPLICATION_ID"),
		WooBaseURL:         getEnv("WOOX_BASE_URL", "https://api.woo.org"),
		WooHTTPTimeout:     getEnvDuration("WOOX_HTTP_TIMEOUT", 30*time.Second),
		Symbol:             getEnv("SYMBOL", "PERP_BTC_USDT"),
		UseMockFeed:        getEnv("USE_MOCK_FEED", "true") == "true",
		BackfillMax:        getEnvInt("KLINE_BACKFILL_MAX", 1000),
		PaperTrading:       getEnv("PAPER_TRADING", "true") == "true",
		StrategyConfigPath: getEnv("STRATEGY_CONFIG_PATH", "./config/timeframe_groups.yaml"),
		AuditInterval:      getEnvDuration("AUDIT_INTERVAL", 5*time.Minute),
		DBPath:             getEnv("DB_PATH", "./data/trader.db"),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

// LiveTradingReady reports whether live (non-paper) trading has the
// credentials it needs.
func (c *Config) LiveTradingReady() bool {
	return c.WooAPIKey != "" && c.WooAPISecret != "" && c.WooApplicationID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
