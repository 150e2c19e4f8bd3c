package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bucketshop69/bs-vybe-sub000/pkg/db"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/vybe"
)

// Abbrev shortens a base58 address for display.
func Abbrev(addr string) string {
	if len(addr) > 12 {
		return addr[:4] + "..." + addr[len(addr)-4:]
	}
	return addr
}

// FormatPrice renders a price with sensible precision for both majors and
// micro-cap tokens.
func FormatPrice(p float64) string {
	switch {
	case p >= 1000:
		return strconv.FormatFloat(p, 'f', 0, 64)
	case p >= 1:
		return strconv.FormatFloat(p, 'f', 2, 64)
	case p >= 0.01:
		return strconv.FormatFloat(p, 'f', 4, 64)
	default:
		return strconv.FormatFloat(p, 'g', 3, 64)
	}
}

// FormatTransferBatch renders one notification for a batch of new transfers
// on a tracked wallet, newest first. At most cap transfers are shown; the
// rest collapse into an overflow note.
func FormatTransferBatch(wallet, label string, transfers []vybe.Transfer, limit int) string {
	var b strings.Builder
	title := Abbrev(wallet)
	if label != "" {
		title = EscapeHTML(label) + " (" + title + ")"
	}
	fmt.Fprintf(&b, "🚨 <b>Activity on %s</b>\n", title)

	shown := transfers
	overflow := 0
	if limit > 0 && len(transfers) > limit {
		shown = transfers[:limit]
		overflow = len(transfers) - limit
	}

	for _, t := range shown {
		direction := "⬅️ received"
		counterparty := t.SenderAddress
		if t.SenderAddress == wallet {
			direction = "➡️ sent"
			counterparty = t.ReceiverAddress
		}
		sym := t.Symbol
		if sym == "" {
			sym = Abbrev(t.Mint)
		}
		fmt.Fprintf(&b, "\n%s <b>%s %s</b>", direction, FormatPrice(t.Amount), EscapeHTML(sym))
		if t.ValueUSD > 0 {
			fmt.Fprintf(&b, " ($%.2f)", t.ValueUSD)
		}
		fmt.Fprintf(&b, "\n    %s <code>%s</code>", directionPreposition(direction), Abbrev(counterparty))
		fmt.Fprintf(&b, "\n    <a href=\"https://solscan.io/tx/%s\">%s</a> · %s",
			t.Signature, Abbrev(t.Signature), time.Unix(t.BlockTime, 0).UTC().Format("15:04:05"))
	}

	if overflow > 0 {
		fmt.Fprintf(&b, "\n\n…and %d more transfer(s)", overflow)
	}
	return b.String()
}

func directionPreposition(direction string) string {
	if strings.Contains(direction, "sent") {
		return "to"
	}
	return "from"
}

// FormatTargetAlert renders the one-shot target-crossing notification.
func FormatTargetAlert(a db.PriceAlert, symbol string, current float64) string {
	arrow := "📈 rose above"
	if !a.IsAboveTarget {
		arrow = "📉 fell below"
	}
	sym := symbol
	if sym == "" {
		sym = Abbrev(a.MintAddress)
	}
	return fmt.Sprintf("🎯 <b>Target hit!</b> %s %s your target of $%s\nCurrent price: $%s",
		EscapeHTML(sym), arrow, FormatPrice(a.TargetPrice), FormatPrice(current))
}

// FormatMoveAlert renders a general percent-move notification.
func FormatMoveAlert(symbol, mint string, changePct, current float64) string {
	emoji := "📈"
	if changePct < 0 {
		emoji = "📉"
	}
	sym := symbol
	if sym == "" {
		sym = Abbrev(mint)
	}
	return fmt.Sprintf("%s <b>%s</b> moved %+.2f%% · now $%s", emoji, EscapeHTML(sym), changePct, FormatPrice(current))
}

// FormatKOLChange renders the ranking-change broadcast.
func FormatKOLChange(newNumberOne *db.KOLRank, newEntrants []db.KOLRank) string {
	var b strings.Builder
	b.WriteString("👑 <b>KOL ranking update</b>\n")
	if newNumberOne != nil {
		fmt.Fprintf(&b, "\nNew #1: <b>%s</b> (<code>%s</code>)", EscapeHTML(displayName(*newNumberOne)), Abbrev(newNumberOne.OwnerAddress))
	}
	if len(newEntrants) > 0 {
		b.WriteString("\nNew in top 5:")
		for _, e := range newEntrants {
			fmt.Fprintf(&b, "\n- <b>%s</b> (<code>%s</code>)", EscapeHTML(displayName(e)), Abbrev(e.OwnerAddress))
		}
	}
	return b.String()
}

// FormatKOLBoard renders the current ranking table for /top_kols.
func FormatKOLBoard(ranks []db.KOLRank) string {
	if len(ranks) == 0 {
		return "<b>No ranking data yet.</b> Try again in a few minutes."
	}
	var b strings.Builder
	b.WriteString("👑 <b>Top traders by volume</b>\n")
	for _, r := range ranks {
		fmt.Fprintf(&b, "\n%d. <b>%s</b> · <code>%s</code>", r.Rank, EscapeHTML(displayName(r)), Abbrev(r.OwnerAddress))
	}
	return b.String()
}

func displayName(r db.KOLRank) string {
	if r.Name != "" {
		return r.Name
	}
	return Abbrev(r.OwnerAddress)
}

func EscapeHTML(s string) string {
	replacer := strings.NewReplacer(
		`&`, "&amp;",
		`<`, "&lt;",
		`>`, "&gt;",
		`"`, "&quot;",
	)
	return replacer.Replace(s)
}
