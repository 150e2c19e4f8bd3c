package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Telegram
	TelegramBotToken string

	// Vybe market data API
	VybeAPIURL string
	VybeAPIKey string
	VybeWSURL  string // optional; enables push-mode transfer events

	// Tracked token mints for price polling (static configuration)
	TrackedMints []string

	// Per-user limits
	MaxTrackedWallets int
	MaxActiveAlerts   int

	// Intervals
	WalletScanInterval time.Duration
	KOLCheckInterval   time.Duration
	PricePollInterval  time.Duration
	PriceMaxInterval   time.Duration // backoff cap when polls keep failing

	// Wallet reconciliation
	TransferFetchLimit int
	WalletScanDelay    time.Duration // pause between wallets, respects API rate limits
	DisplayTransferCap int
	SpamAddresses      []string

	// Price alerts
	PriceFailureThreshold int
	TooClosePct           float64 // reject targets within this % of current price
	TooFarPct             float64 // warn on targets beyond this % of current price
	MoveAlertPct          float64 // broadcast threshold for general movement alerts
	AlertCooldown         time.Duration

	// KOL ranking
	KOLTopN int

	// Dispatcher
	DispatchTick      time.Duration
	DispatchBatchSize int
	MessageDelay      time.Duration
	MaxSendRetries    int

	// DB
	DBPath string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		VybeAPIURL: envOr("VYBE_API_URL", "https://api.vybenetwork.xyz"),
		VybeAPIKey: os.Getenv("VYBE_API_KEY"),
		VybeWSURL:  os.Getenv("VYBE_WS_URL"),

		MaxTrackedWallets: envInt("MAX_TRACKED_WALLETS", 5),
		MaxActiveAlerts:   envInt("MAX_ACTIVE_ALERTS", 5),

		WalletScanInterval: time.Duration(envInt("WALLET_SCAN_INTERVAL", 60)) * time.Second,
		KOLCheckInterval:   time.Duration(envInt("KOL_CHECK_INTERVAL", 300)) * time.Second,
		PricePollInterval:  time.Duration(envInt("PRICE_POLL_INTERVAL", 30)) * time.Second,
		PriceMaxInterval:   time.Duration(envInt("PRICE_MAX_INTERVAL", 480)) * time.Second,

		TransferFetchLimit: envInt("TRANSFER_FETCH_LIMIT", 20),
		WalletScanDelay:    time.Duration(envInt("WALLET_SCAN_DELAY_MS", 500)) * time.Millisecond,
		DisplayTransferCap: envInt("DISPLAY_TRANSFER_CAP", 5),

		PriceFailureThreshold: envInt("PRICE_FAILURE_THRESHOLD", 3),
		TooClosePct:           envFloat("ALERT_TOO_CLOSE_PCT", 1.0),
		TooFarPct:             envFloat("ALERT_TOO_FAR_PCT", 500.0),
		MoveAlertPct:          envFloat("MOVE_ALERT_PCT", 5.0),
		AlertCooldown:         time.Duration(envInt("ALERT_COOLDOWN_MINUTES", 15)) * time.Minute,

		KOLTopN: envInt("KOL_TOP_N", 10),

		DispatchTick:      time.Duration(envInt("DISPATCH_TICK_MS", 1000)) * time.Millisecond,
		DispatchBatchSize: envInt("DISPATCH_BATCH_SIZE", 10),
		MessageDelay:      time.Duration(envInt("MESSAGE_DELAY_MS", 50)) * time.Millisecond,
		MaxSendRetries:    envInt("MAX_SEND_RETRIES", 3),

		DBPath: envOr("DB_PATH", "vybe_bot.db"),
	}

	if v := os.Getenv("TRACKED_MINTS"); v != "" {
		cfg.TrackedMints = splitTrim(v)
	} else {
		cfg.TrackedMints = []string{
			"So11111111111111111111111111111111111111112",  // wSOL
			"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", // USDC
			"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",  // JUP
		}
	}

	cfg.SpamAddresses = append(defaultSpamAddresses(), splitTrim(os.Getenv("SPAM_ADDRESSES"))...)

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.TelegramBotToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required (get it from @BotFather)")
	}
	if c.VybeAPIKey == "" {
		errs = append(errs, "VYBE_API_KEY is required")
	}
	if c.VybeWSURL != "" && !strings.HasPrefix(strings.ToLower(c.VybeWSURL), "wss://") {
		errs = append(errs, fmt.Sprintf("VYBE_WS_URL must start with wss://, got %q", c.VybeWSURL))
	}
	if c.MaxTrackedWallets <= 0 || c.MaxActiveAlerts <= 0 {
		errs = append(errs, "MAX_TRACKED_WALLETS and MAX_ACTIVE_ALERTS must be positive")
	}
	if c.PriceMaxInterval < c.PricePollInterval {
		errs = append(errs, "PRICE_MAX_INTERVAL must be >= PRICE_POLL_INTERVAL")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation error:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// defaultSpamAddresses lists known dust/advertising senders that should never
// produce a notification.
func defaultSpamAddresses() []string {
	return []string{
		"FLiPggWYQyKVTULFWMQjAk26JfK5XRCajfyTmD5weaZ7", // flip.gg dust spammer
		"GDDMwNyyx8uB6zrqwBFHjLLG3TBYk2F8Az4yrQC5RzMp", // phishing drops
		"5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9", // ad token mints
	}
}

// helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
