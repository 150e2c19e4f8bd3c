package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("VYBE_API_KEY", "key")
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, "https://api.vybenetwork.xyz", cfg.VybeAPIURL)
	assert.Equal(t, 5, cfg.MaxTrackedWallets)
	assert.Equal(t, 5, cfg.MaxActiveAlerts)
	assert.Equal(t, 30*time.Second, cfg.PricePollInterval)
	assert.Equal(t, 480*time.Second, cfg.PriceMaxInterval)
	assert.Len(t, cfg.TrackedMints, 3)
	assert.NotEmpty(t, cfg.SpamAddresses)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TRACKED_MINTS", " mintA, mintB ,")
	t.Setenv("MAX_TRACKED_WALLETS", "2")
	t.Setenv("MOVE_ALERT_PCT", "7.5")
	cfg := validConfig(t)

	assert.Equal(t, []string{"mintA", "mintB"}, cfg.TrackedMints)
	assert.Equal(t, 2, cfg.MaxTrackedWallets)
	assert.Equal(t, 7.5, cfg.MoveAlertPct)
}

func TestValidate_MissingToken(t *testing.T) {
	cfg := validConfig(t)
	cfg.TelegramBotToken = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestValidate_WSScheme(t *testing.T) {
	cfg := validConfig(t)
	cfg.VybeWSURL = "https://not-a-socket"
	assert.Error(t, cfg.Validate())

	cfg.VybeWSURL = "wss://stream.example.com"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_IntervalOrdering(t *testing.T) {
	cfg := validConfig(t)
	cfg.PriceMaxInterval = cfg.PricePollInterval - time.Second
	assert.Error(t, cfg.Validate())
}
