package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	tg "github.com/go-telegram/bot"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bucketshop69/bs-vybe-sub000/pkg/config"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/db"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/dispatch"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/kol"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/price"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/telegram"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/vybe"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/wallet"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	log.Info().Msg("🔔 Vybe wallet bot starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	store, err := db.NewStore(cfg.DBPath, cfg.MaxTrackedWallets, cfg.MaxActiveAlerts)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	defer store.Close()

	bot, err := tg.New(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram init failed")
	}

	client := vybe.NewClient(cfg.VybeAPIURL, cfg.VybeAPIKey)

	dispatcher := dispatch.New(telegram.NewSender(bot), store, dispatch.Config{
		Tick:         cfg.DispatchTick,
		BatchSize:    cfg.DispatchBatchSize,
		MessageDelay: cfg.MessageDelay,
		MaxRetries:   cfg.MaxSendRetries,
		Cooldown:     cfg.AlertCooldown,
	})

	walletRec := wallet.New(client, store, dispatcher, wallet.Config{
		FetchLimit:  cfg.TransferFetchLimit,
		DisplayCap:  cfg.DisplayTransferCap,
		WalletDelay: cfg.WalletScanDelay,
		SpamList:    cfg.SpamAddresses,
	})

	priceRec := price.New(client, store, dispatcher, price.Config{
		Mints:            cfg.TrackedMints,
		Interval:         cfg.PricePollInterval,
		MaxInterval:      cfg.PriceMaxInterval,
		FailureThreshold: cfg.PriceFailureThreshold,
		MoveAlertPct:     cfg.MoveAlertPct,
	})

	kolRec := kol.New(client, store, dispatcher, cfg.KOLTopN)

	handler := telegram.NewHandler(bot, store, client, telegram.HandlerConfig{
		TooClosePct: cfg.TooClosePct,
		TooFarPct:   cfg.TooFarPct,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { priceRec.Run(ctx); return ctx.Err() })
	g.Go(func() error { return runEvery(ctx, cfg.WalletScanInterval, walletRec.Run) })
	g.Go(func() error { return runEvery(ctx, cfg.KOLCheckInterval, kolRec.Run) })
	g.Go(func() error { handler.Run(ctx); return ctx.Err() })

	if cfg.VybeWSURL != "" {
		feed := vybe.NewLiveFeed(cfg.VybeWSURL, cfg.VybeAPIKey, trackedAddrs(store), walletRec.HandleTransfer)
		g.Go(func() error { return feed.Run(ctx) })
	}

	printSummary(cfg)

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("error")
	}
	log.Info().Msg("goodbye 👋")
}

// runEvery runs fn immediately, then on every tick until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	fn(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			fn(ctx)
		}
	}
}

func trackedAddrs(store *db.Store) func() []string {
	return func() []string {
		addrs, err := store.TrackedWalletAddresses()
		if err != nil {
			log.Warn().Err(err).Msg("tracked address refresh failed")
			return nil
		}
		return addrs
	}
}

func printSummary(cfg *config.Config) {
	header := color.New(color.FgCyan, color.Bold)
	fmt.Println("\n" + strings.Repeat("═", 60))
	header.Println("  🔔 VYBE WALLET BOT - RUNNING")
	fmt.Println(strings.Repeat("═", 60))
	fmt.Printf("  API:          %s\n", cfg.VybeAPIURL)
	wsStatus := "❌ disabled (set VYBE_WS_URL)"
	if cfg.VybeWSURL != "" {
		wsStatus = "✅ " + cfg.VybeWSURL
	}
	fmt.Printf("  Live feed:    %s\n", wsStatus)
	fmt.Printf("  Price mints:  %d tracked\n", len(cfg.TrackedMints))
	fmt.Printf("  Wallet scan:  every %s\n", cfg.WalletScanInterval)
	fmt.Printf("  KOL check:    every %s\n", cfg.KOLCheckInterval)
	fmt.Printf("  DB:           %s\n", cfg.DBPath)
	fmt.Println(strings.Repeat("═", 60) + "\n")
}
