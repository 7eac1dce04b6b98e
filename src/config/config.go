package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/joho/godotenv"

	"github.com/username/divtracker/src/apperrors"
)

// Partial failure policies for per-holding errors.
const (
	PolicyOmit = "omit"
	PolicyFail = "fail"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string
	LogFormat    string
	CORSOrigins  []string

	// Inbound API limits and auth
	RequestsPerSecond int
	APIJWTSecret      string

	// Trading 212
	T212Key       string
	T212Secret    string
	BaseURL       string
	T212RateLimit int

	// Yahoo Finance
	YahooBaseURL    string
	YahooRateLimit  int
	TickerOverrides map[string]string
	HistoryYears    int
	CacheTTL        time.Duration

	// Currency conversion
	FXURL            string
	FXBaseCurrency   string
	FXRatePath       string
	FXWarmCurrencies []string
	FXRefreshCron    string

	// Upstream behaviour
	UpstreamTimeout      time.Duration
	UpstreamRetries      int
	MaxConcurrency       int
	PartialFailurePolicy string
}

// LoadConfig loads configuration from environment variables or a .env file.
func LoadConfig() (*AppConfig, error) {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}
	if errEnv != nil && !os.IsNotExist(errEnv) {
		log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
	}

	key := strings.TrimSpace(os.Getenv("T212_KEY"))
	if key == "" {
		return nil, apperrors.Config("T212_KEY", "is not set")
	}

	cfg := &AppConfig{
		Port:         getEnv("PORT", "8000"),
		DatabasePath: getEnv("DATABASE_PATH", "./divtracker.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    strings.ToLower(getEnv("LOG_FORMAT", "json")),
		CORSOrigins:  getEnvAsList("CORS_ORIGINS", []string{"http://localhost:8000"}),

		RequestsPerSecond: getEnvAsInt("REQUESTS_PER_SECOND", 10),
		APIJWTSecret:      getEnv("API_JWT_SECRET", ""),

		T212Key:       key,
		T212Secret:    getEnv("T212_SECRET", ""),
		BaseURL:       strings.TrimRight(getEnv("BASE_URL", "https://live.trading212.com/api/v0/equity"), "/"),
		T212RateLimit: getEnvAsInt("T212_RATE_LIMIT", 1),

		YahooBaseURL:   strings.TrimRight(getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"), "/"),
		YahooRateLimit: getEnvAsInt("YAHOO_RATE_LIMIT", 5),
		HistoryYears:   getEnvAsInt("HISTORY_YEARS", 5),
		CacheTTL:       getEnvAsDuration("CACHE_TTL", time.Hour),

		FXURL:            getEnv("FX_URL", "https://api.frankfurter.app/latest"),
		FXBaseCurrency:   strings.ToUpper(getEnv("FX_BASE_CURR", "GBP")),
		FXRatePath:       getEnv("FX_RATE_PATH", "$.rates.%s"),
		FXWarmCurrencies: getEnvAsList("FX_WARM_CURRENCIES", []string{"USD", "EUR"}),
		FXRefreshCron:    getEnv("FX_REFRESH_CRON", ""),

		UpstreamTimeout:      getEnvAsDuration("UPSTREAM_TIMEOUT", 20*time.Second),
		UpstreamRetries:      getEnvAsInt("UPSTREAM_RETRIES", 2),
		MaxConcurrency:       getEnvAsInt("MAX_CONCURRENCY", 4),
		PartialFailurePolicy: strings.ToLower(getEnv("PARTIAL_FAILURE_POLICY", PolicyOmit)),
	}

	overrides, err := parseOverrides(getEnv("TICKER_OVERRIDES", "BTl=BT-A.L,BT=BT-A.L"))
	if err != nil {
		return nil, err
	}
	cfg.TickerOverrides = overrides

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.T212Key) == "" {
		return apperrors.Config("T212_KEY", "is not set")
	}
	if money.GetCurrency(c.FXBaseCurrency) == nil {
		return apperrors.Config("FX_BASE_CURR", fmt.Sprintf("%q is not an ISO 4217 currency", c.FXBaseCurrency))
	}
	if !strings.Contains(c.FXRatePath, "%s") {
		return apperrors.Config("FX_RATE_PATH", "must contain %s for the target currency")
	}
	switch c.PartialFailurePolicy {
	case PolicyOmit, PolicyFail:
	default:
		return apperrors.Config("PARTIAL_FAILURE_POLICY", fmt.Sprintf("must be %q or %q, got %q", PolicyOmit, PolicyFail, c.PartialFailurePolicy))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return apperrors.Config("LOG_FORMAT", fmt.Sprintf("must be json or console, got %q", c.LogFormat))
	}
	if c.MaxConcurrency < 1 {
		return apperrors.Config("MAX_CONCURRENCY", "must be at least 1")
	}
	if c.T212RateLimit < 1 || c.YahooRateLimit < 1 || c.RequestsPerSecond < 1 {
		return apperrors.Config("rate limits", "must be at least 1 request per second")
	}
	if c.UpstreamRetries < 0 {
		return apperrors.Config("UPSTREAM_RETRIES", "must not be negative")
	}
	if c.UpstreamTimeout <= 0 {
		return apperrors.Config("UPSTREAM_TIMEOUT", "must be positive")
	}
	if c.CacheTTL <= 0 {
		return apperrors.Config("CACHE_TTL", "must be positive")
	}
	if c.HistoryYears < 1 {
		return apperrors.Config("HISTORY_YEARS", "must be at least 1")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsList retrieves a comma-separated environment variable, dropping blanks.
func getEnvAsList(key string, fallback []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	items := []string{}
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseOverrides reads "BROKER=PROVIDER" pairs separated by commas.
func parseOverrides(raw string) (map[string]string, error) {
	overrides := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		from, to, ok := strings.Cut(pair, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, apperrors.Config("TICKER_OVERRIDES", fmt.Sprintf("has malformed entry %q", pair))
		}
		overrides[from] = to
	}
	return overrides, nil
}
