package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sportsfade/fadebot/types"
)

// Config holds process-level configuration. Per-user trading settings live
// in the database; these are the service-wide knobs and credentials.
type Config struct {
	// Mode
	Debug bool

	// Exchange API
	ExchangeBaseURL    string
	ExchangeAPIKey     string
	ExchangeSecret     string
	ExchangePassphrase string
	WalletPrivateKey   string

	// Scoreboard API
	ScoreboardBaseURL string

	// Telegram alerts
	TelegramToken  string
	TelegramChatID int64

	// Database: postgres DSN or sqlite path
	DatabasePath string

	// Transport
	HTTPTimeout        time.Duration
	OrderFillTimeout   time.Duration
	MaxSlippagePct     decimal.Decimal
	ScoreboardCacheTTL time.Duration

	// Loop cadences
	DiscoveryInterval  time.Duration
	ScoreboardInterval time.Duration
	PriceInterval      time.Duration
	TradingInterval    time.Duration
	HealthInterval     time.Duration
	CleanupInterval    time.Duration
	KillSwitchInterval time.Duration

	// Orchestrator limits
	MaxTrackedGames int
	StaleGameAfter  time.Duration
	ShutdownBudget  time.Duration

	// Global risk defaults (overridable per user in the database)
	MaxDailyLossUSDC         decimal.Decimal
	MaxPortfolioExposureUSDC decimal.Decimal

	// Kelly sizing bounds
	MinPositionSize  decimal.Decimal
	MaxPositionSize  decimal.Decimal
	MaxKellyFraction decimal.Decimal
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Debug: getEnvBool("DEBUG", false),

		ExchangeBaseURL:    getEnv("EXCHANGE_BASE_URL", "https://clob.polymarket.com"),
		ExchangeAPIKey:     os.Getenv("EXCHANGE_API_KEY"),
		ExchangeSecret:     os.Getenv("EXCHANGE_API_SECRET"),
		ExchangePassphrase: os.Getenv("EXCHANGE_PASSPHRASE"),
		WalletPrivateKey:   os.Getenv("WALLET_PRIVATE_KEY"),

		ScoreboardBaseURL: getEnv("SCOREBOARD_BASE_URL", "https://site.api.espn.com/apis/site/v2/sports"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabasePath: getEnv("DATABASE_URL", "data/fadebot.db"),

		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		OrderFillTimeout:   getEnvDuration("ORDER_FILL_TIMEOUT", 60*time.Second),
		MaxSlippagePct:     getEnvFraction("MAX_SLIPPAGE_PCT", decimal.NewFromFloat(0.02)),
		ScoreboardCacheTTL: getEnvDuration("SCOREBOARD_CACHE_TTL", 30*time.Second),

		DiscoveryInterval:  getEnvDuration("DISCOVERY_INTERVAL", 10*time.Second),
		ScoreboardInterval: getEnvDuration("SCOREBOARD_INTERVAL", 5*time.Second),
		PriceInterval:      getEnvDuration("PRICE_INTERVAL", 10*time.Second),
		TradingInterval:    getEnvDuration("TRADING_INTERVAL", 1*time.Second),
		HealthInterval:     getEnvDuration("HEALTH_INTERVAL", 60*time.Second),
		CleanupInterval:    getEnvDuration("CLEANUP_INTERVAL", 120*time.Second),
		KillSwitchInterval: getEnvDuration("KILLSWITCH_INTERVAL", 30*time.Second),

		MaxTrackedGames: getEnvInt("MAX_TRACKED_GAMES", 100),
		StaleGameAfter:  getEnvDuration("STALE_GAME_AFTER", 6*time.Hour),
		ShutdownBudget:  getEnvDuration("SHUTDOWN_BUDGET", 10*time.Second),

		MaxDailyLossUSDC:         getEnvDecimal("MAX_DAILY_LOSS_USDC", decimal.NewFromInt(100)),
		MaxPortfolioExposureUSDC: getEnvDecimal("MAX_PORTFOLIO_EXPOSURE_USDC", decimal.NewFromInt(500)),

		MinPositionSize:  getEnvDecimal("MIN_POSITION_SIZE", decimal.NewFromInt(1)),
		MaxPositionSize:  getEnvDecimal("MAX_POSITION_SIZE", decimal.NewFromInt(100)),
		MaxKellyFraction: getEnvFraction("MAX_KELLY_FRACTION", decimal.NewFromFloat(0.5)),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.ExchangeAPIKey == "" {
		return nil, fmt.Errorf("EXCHANGE_API_KEY is required")
	}

	return cfg, nil
}

// DefaultTrading returns the built-in base layer of the effective config.
// All thresholds are fractions in [0,1].
func DefaultTrading() types.EffectiveConfig {
	return types.EffectiveConfig{
		Enabled:                 true,
		AutoTrade:               false,
		EntryThresholdDropPct:   decimal.NewFromFloat(0.15),
		AbsoluteEntryPrice:      decimal.Zero,
		MinTimeRemainingSeconds: 120,
		AllowedEntrySegments:    nil, // all segments
		TakeProfitPct:           decimal.NewFromFloat(0.20),
		StopLossPct:             decimal.NewFromFloat(0.25),
		DefaultPositionSize:     decimal.NewFromInt(10),
		MaxPositionsPerGame:     1,
		UseKellySizing:          false,
		KellyFraction:           decimal.NewFromFloat(0.25),
		MinEntryConfidence:      decimal.NewFromFloat(0.55),
		MinPregameProbability:   decimal.Zero,
		LatestEntryCutoff:       60,
		LatestExitCutoff:        30,
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvFraction reads a decimal that must land in [0,1]. Values outside the
// range are clamped with a warning; "2" almost always means someone typed a
// percent where a fraction was expected.
func getEnvFraction(key string, defaultValue decimal.Decimal) decimal.Decimal {
	d := getEnvDecimal(key, defaultValue)
	one := decimal.NewFromInt(1)
	if d.LessThan(decimal.Zero) || d.GreaterThan(one) {
		log.Warn().Str("key", key).Str("value", d.String()).Msg("Fraction out of [0,1], clamping")
		if d.LessThan(decimal.Zero) {
			return decimal.Zero
		}
		return one
	}
	return d
}
