package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"

	"github.com/bucketshop69/bs-vybe-sub000/pkg/db"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/price"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/render"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/vybe"
)

type BotStore interface {
	EnsureUser(id int64, username string) error
	SetKOLUpdates(userID int64, enabled bool) error
	AddTrackedWallet(userID int64, address, label string) error
	RemoveTrackedWallet(userID int64, address string) error
	WalletsByUser(userID int64) ([]db.TrackedWallet, error)
	AddPriceAlert(userID int64, mint string, target float64, isAbove bool) (int64, error)
	RemovePriceAlert(userID, alertID int64) error
	AlertsByUser(userID int64) ([]db.PriceAlert, error)
	GetTokenPrice(mint string) (*db.TokenPrice, error)
	GetKOLRanks() ([]db.KOLRank, error)
}

type MarketData interface {
	TokenPrice(ctx context.Context, mint string) (*vybe.TokenPrice, error)
}

type HandlerConfig struct {
	TooClosePct float64
	TooFarPct   float64
}

// Handler owns the command surface of the bot.
type Handler struct {
	bot    *tg.Bot
	store  BotStore
	market MarketData
	cfg    HandlerConfig
}

func NewHandler(bot *tg.Bot, store BotStore, market MarketData, cfg HandlerConfig) *Handler {
	return &Handler{bot: bot, store: store, market: market, cfg: cfg}
}

// Run starts long-polling and handles updates until ctx is done.
func (h *Handler) Run(ctx context.Context) {
	h.bot.RegisterHandler(tg.HandlerTypeMessageText, "", tg.MatchTypePrefix, func(c context.Context, b *tg.Bot, u *models.Update) {
		if u.Message == nil {
			return
		}
		h.handleCommand(c, u.Message)
	})
	h.bot.Start(ctx)
}

func (h *Handler) handleCommand(ctx context.Context, m *models.Message) {
	raw := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(raw, "/") {
		return
	}

	chatID := m.Chat.ID
	username := ""
	if m.From != nil {
		username = m.From.Username
	}
	if err := h.store.EnsureUser(chatID, username); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("ensure user failed")
	}

	cmd, args := splitCommand(raw)

	switch cmd {
	case "/start":
		h.sendHTML(ctx, chatID, welcomeText)

	case "/help":
		h.sendHTML(ctx, chatID, helpText)

	case "/track_wallet":
		h.trackWallet(ctx, chatID, args)

	case "/my_wallets":
		h.listWallets(ctx, chatID)

	case "/remove_wallet":
		h.removeWallet(ctx, chatID, args)

	case "/set_alert":
		h.setAlert(ctx, chatID, args)

	case "/my_alerts":
		h.listAlerts(ctx, chatID)

	case "/remove_alert":
		h.removeAlert(ctx, chatID, args)

	case "/price":
		h.showPrice(ctx, chatID, args)

	case "/top_kols":
		h.showKOLBoard(ctx, chatID)

	case "/subscribe_kol":
		h.setKOLSubscription(ctx, chatID, true)

	case "/unsubscribe_kol":
		h.setKOLSubscription(ctx, chatID, false)

	case "/track_kol":
		h.trackKOL(ctx, chatID, args)

	default:
		h.sendHTML(ctx, chatID, "unknown command. try /help")
	}
}

// splitCommand separates the command word from its arguments and strips an
// @botname suffix so commands work in groups.
func splitCommand(raw string) (string, []string) {
	fields := strings.Fields(raw)
	cmd := strings.ToLower(fields[0])
	if idx := strings.IndexRune(cmd, '@'); idx != -1 {
		cmd = cmd[:idx]
	}
	return cmd, fields[1:]
}

func (h *Handler) trackWallet(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		h.sendHTML(ctx, chatID, "usage: <code>/track_wallet &lt;address&gt; [label]</code>")
		return
	}
	addr := args[0]
	if _, err := solana.PublicKeyFromBase58(addr); err != nil {
		h.sendHTML(ctx, chatID, "that doesn't look like a valid wallet address")
		return
	}
	label := ""
	if len(args) > 1 {
		label = strings.Join(args[1:], " ")
	}

	if err := h.store.AddTrackedWallet(chatID, addr, label); err != nil {
		if errors.Is(err, db.ErrLimitReached) {
			h.sendHTML(ctx, chatID, "you already track the maximum number of wallets. remove one first with /remove_wallet")
			return
		}
		log.Error().Err(err).Int64("chat_id", chatID).Msg("track wallet failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}
	h.sendHTML(ctx, chatID, fmt.Sprintf("👀 now tracking <b>%s</b>. you'll be notified of new transfers.", render.Abbrev(addr)))
}

func (h *Handler) listWallets(ctx context.Context, chatID int64) {
	wallets, err := h.store.WalletsByUser(chatID)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("list wallets failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}
	if len(wallets) == 0 {
		h.sendHTML(ctx, chatID, "you're not tracking any wallets yet. add one with <code>/track_wallet &lt;address&gt;</code>")
		return
	}

	var b strings.Builder
	b.WriteString("📋 <b>Your tracked wallets:</b>\n")
	for _, w := range wallets {
		b.WriteString("• <code>")
		b.WriteString(render.EscapeHTML(w.WalletAddress))
		b.WriteString("</code>")
		if w.Label != "" {
			b.WriteString(" - ")
			b.WriteString(render.EscapeHTML(w.Label))
		}
		b.WriteString("\n")
	}
	h.sendHTML(ctx, chatID, b.String())
}

func (h *Handler) removeWallet(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		h.sendHTML(ctx, chatID, "usage: <code>/remove_wallet &lt;address&gt;</code>")
		return
	}
	if err := h.store.RemoveTrackedWallet(chatID, args[0]); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.sendHTML(ctx, chatID, "you're not tracking that wallet")
			return
		}
		log.Error().Err(err).Int64("chat_id", chatID).Msg("remove wallet failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}
	h.sendHTML(ctx, chatID, fmt.Sprintf("stopped tracking <b>%s</b>", render.Abbrev(args[0])))
}

func (h *Handler) setAlert(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		h.sendHTML(ctx, chatID, "usage: <code>/set_alert &lt;mint&gt; &lt;target_price&gt;</code>")
		return
	}
	mint := args[0]
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		h.sendHTML(ctx, chatID, "that doesn't look like a valid token mint")
		return
	}
	target, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		h.sendHTML(ctx, chatID, "target price must be a number, e.g. <code>/set_alert ... 1.25</code>")
		return
	}

	tp, err := h.market.TokenPrice(ctx, mint)
	if err != nil {
		log.Warn().Err(err).Str("mint", mint).Msg("price lookup for alert failed")
		h.sendHTML(ctx, chatID, "couldn't fetch the current price for that token, please try again later")
		return
	}

	warning, err := price.ValidateTarget(tp.Price, target, h.cfg.TooClosePct, h.cfg.TooFarPct)
	if err != nil {
		h.sendHTML(ctx, chatID, "⚠️ "+render.EscapeHTML(err.Error()))
		return
	}

	isAbove := target > tp.Price
	id, err := h.store.AddPriceAlert(chatID, mint, target, isAbove)
	if err != nil {
		if errors.Is(err, db.ErrLimitReached) {
			h.sendHTML(ctx, chatID, "you already have the maximum number of active alerts. remove one first with /remove_alert")
			return
		}
		log.Error().Err(err).Int64("chat_id", chatID).Msg("set alert failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}

	direction := "rises above"
	if !isAbove {
		direction = "drops below"
	}
	msg := fmt.Sprintf("🎯 alert #%d set: <b>%s</b> %s <b>$%s</b> (now $%s)",
		id, render.EscapeHTML(symbolOrMint(tp.Symbol, mint)), direction, render.FormatPrice(target), render.FormatPrice(tp.Price))
	if warning != "" {
		msg += "\n⚠️ " + render.EscapeHTML(warning)
	}
	h.sendHTML(ctx, chatID, msg)
}

func (h *Handler) listAlerts(ctx context.Context, chatID int64) {
	alerts, err := h.store.AlertsByUser(chatID)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("list alerts failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}
	if len(alerts) == 0 {
		h.sendHTML(ctx, chatID, "you have no alerts. add one with <code>/set_alert &lt;mint&gt; &lt;price&gt;</code>")
		return
	}

	var b strings.Builder
	b.WriteString("🎯 <b>Your alerts:</b>\n")
	for _, a := range alerts {
		direction := "above"
		if !a.IsAboveTarget {
			direction = "below"
		}
		status := ""
		if a.IsTriggered {
			status = " (triggered)"
		}
		fmt.Fprintf(&b, "• #%d <code>%s</code> %s $%s%s\n",
			a.ID, render.Abbrev(a.MintAddress), direction, render.FormatPrice(a.TargetPrice), status)
	}
	h.sendHTML(ctx, chatID, b.String())
}

func (h *Handler) removeAlert(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		h.sendHTML(ctx, chatID, "usage: <code>/remove_alert &lt;id&gt;</code>")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.sendHTML(ctx, chatID, "alert id must be a number, see /my_alerts")
		return
	}
	if err := h.store.RemovePriceAlert(chatID, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.sendHTML(ctx, chatID, "no alert with that id, see /my_alerts")
			return
		}
		log.Error().Err(err).Int64("chat_id", chatID).Msg("remove alert failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}
	h.sendHTML(ctx, chatID, fmt.Sprintf("alert #%d removed", id))
}

func (h *Handler) showPrice(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		h.sendHTML(ctx, chatID, "usage: <code>/price &lt;mint&gt;</code>")
		return
	}
	mint := args[0]
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		h.sendHTML(ctx, chatID, "that doesn't look like a valid token mint")
		return
	}

	tp, err := h.market.TokenPrice(ctx, mint)
	if err != nil {
		// Fall back to the last stored price when the API is down.
		cached, cerr := h.store.GetTokenPrice(mint)
		if cerr != nil {
			h.sendHTML(ctx, chatID, "couldn't fetch a price for that token right now")
			return
		}
		h.sendHTML(ctx, chatID, fmt.Sprintf("💰 <b>%s</b>: $%s (cached)",
			render.EscapeHTML(symbolOrMint(cached.Symbol, mint)), render.FormatPrice(cached.CurrentPrice)))
		return
	}
	h.sendHTML(ctx, chatID, fmt.Sprintf("💰 <b>%s</b>: $%s",
		render.EscapeHTML(symbolOrMint(tp.Symbol, mint)), render.FormatPrice(tp.Price)))
}

func (h *Handler) showKOLBoard(ctx context.Context, chatID int64) {
	ranks, err := h.store.GetKOLRanks()
	if err != nil {
		log.Error().Err(err).Msg("kol board read failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}
	if len(ranks) == 0 {
		h.sendHTML(ctx, chatID, "no ranking snapshot yet, check back in a few minutes")
		return
	}
	h.sendHTML(ctx, chatID, render.FormatKOLBoard(ranks))
}

func (h *Handler) setKOLSubscription(ctx context.Context, chatID int64, enabled bool) {
	if err := h.store.SetKOLUpdates(chatID, enabled); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("kol subscription update failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}
	if enabled {
		h.sendHTML(ctx, chatID, "👑 you'll now receive KOL ranking updates. /unsubscribe_kol to stop.")
	} else {
		h.sendHTML(ctx, chatID, "KOL ranking updates disabled")
	}
}

// trackKOL adds a ranked trader's wallet to the user's tracked set.
func (h *Handler) trackKOL(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		h.sendHTML(ctx, chatID, "usage: <code>/track_kol &lt;rank&gt;</code> (see /top_kols)")
		return
	}
	rank, err := strconv.Atoi(args[0])
	if err != nil || rank < 1 {
		h.sendHTML(ctx, chatID, "rank must be a positive number, see /top_kols")
		return
	}

	ranks, err := h.store.GetKOLRanks()
	if err != nil {
		log.Error().Err(err).Msg("kol board read failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}
	var target *db.KOLRank
	for i := range ranks {
		if ranks[i].Rank == rank {
			target = &ranks[i]
			break
		}
	}
	if target == nil {
		h.sendHTML(ctx, chatID, "no trader at that rank, see /top_kols")
		return
	}

	label := target.Name
	if label == "" {
		label = fmt.Sprintf("KOL #%d", rank)
	}
	if err := h.store.AddTrackedWallet(chatID, target.OwnerAddress, label); err != nil {
		if errors.Is(err, db.ErrLimitReached) {
			h.sendHTML(ctx, chatID, "you already track the maximum number of wallets. remove one first with /remove_wallet")
			return
		}
		log.Error().Err(err).Int64("chat_id", chatID).Msg("track kol failed")
		h.sendHTML(ctx, chatID, "something went wrong, please try again")
		return
	}
	h.sendHTML(ctx, chatID, fmt.Sprintf("👀 now tracking <b>%s</b> (<code>%s</code>)",
		render.EscapeHTML(label), render.Abbrev(target.OwnerAddress)))
}

func symbolOrMint(symbol, mint string) string {
	if symbol != "" {
		return symbol
	}
	return render.Abbrev(mint)
}

func (h *Handler) sendHTML(ctx context.Context, chatID int64, html string) {
	disable := true
	_, err := h.bot.SendMessage(ctx, &tg.SendMessageParams{
		ChatID:    chatID,
		Text:      html,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disable,
		},
	})
	if err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
	}
}

const welcomeText = `👋 <b>Welcome!</b>

I watch Solana wallets and token prices for you:
• transfer notifications for wallets you track
• one-shot price target alerts
• KOL leaderboard updates

Try <code>/track_wallet &lt;address&gt;</code> or see /help for everything I can do.`

const helpText = `🛠 <b>Commands</b>

<b>Wallets</b>
• <code>/track_wallet &lt;address&gt; [label]</code> - get notified of new transfers
• <code>/my_wallets</code> - list tracked wallets
• <code>/remove_wallet &lt;address&gt;</code> - stop tracking

<b>Prices</b>
• <code>/price &lt;mint&gt;</code> - current token price
• <code>/set_alert &lt;mint&gt; &lt;price&gt;</code> - one-shot target alert
• <code>/my_alerts</code> - list your alerts
• <code>/remove_alert &lt;id&gt;</code> - delete an alert

<b>KOLs</b>
• <code>/top_kols</code> - current volume leaderboard
• <code>/track_kol &lt;rank&gt;</code> - track a leaderboard wallet
• <code>/subscribe_kol</code> / <code>/unsubscribe_kol</code> - ranking change updates`
