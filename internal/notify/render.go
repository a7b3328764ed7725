// Package notify renders alerts for humans and delivers them to a Discord
// webhook when one is configured.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pmwatch/internal/domain"
)

// RenderTradeText formats a per-trade alert as a short multi-line message.
func RenderTradeText(a *domain.TradeAlert) string {
	var b strings.Builder

	ts := time.Unix(a.Trade.Timestamp, 0).UTC().Format("2006-01-02 15:04:05 UTC")
	fmt.Fprintf(&b, "[score %d] %s %s $%.0f @ %.3f\n", a.Score, a.Trade.Side, a.Trade.Outcome, a.Notional, a.Trade.Price)
	if a.Trade.Title != "" {
		fmt.Fprintf(&b, "market: %s\n", a.Trade.Title)
	}
	fmt.Fprintf(&b, "wallet: %s", shortWallet(a.Trade.ProxyWallet))
	if a.Trade.Pseudonym != "" {
		fmt.Fprintf(&b, " (%s)", a.Trade.Pseudonym)
	}
	fmt.Fprintf(&b, " | trades 7d: %d, markets 7d: %d\n", a.Wallet.Trades7d, a.Wallet.UniqueMarkets7d)
	fmt.Fprintf(&b, "reasons: %s\n", strings.Join(a.Reasons, ", "))
	fmt.Fprintf(&b, "time: %s\n", ts)
	fmt.Fprintf(&b, "%s", a.URL())
	return b.String()
}

// RenderSignalText formats a market-level alert.
func RenderSignalText(a *domain.PublishedAlert) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] $%.0f over %s\n", a.Type, a.Notional, windowLabel(a.Metrics.WindowSeconds))
	if a.Market != nil && a.Market.Question != "" {
		fmt.Fprintf(&b, "market: %s\n", a.Market.Question)
	}
	fmt.Fprintf(&b, "trades: %d, wallets: %d", a.Metrics.Trades, a.Metrics.UniqueWallets)
	if a.Metrics.PriceRange != nil {
		fmt.Fprintf(&b, ", price range: %.3f", *a.Metrics.PriceRange)
	}
	if a.Metrics.TopWallet != "" {
		fmt.Fprintf(&b, "\ntop wallet: %s $%.0f (%d trades)", shortWallet(a.Metrics.TopWallet), a.Metrics.TopWalletNotional, a.Metrics.TopWalletTrades)
	}
	fmt.Fprintf(&b, "\ntime: %s\n", time.Unix(a.Timestamp, 0).UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "%s", a.URL)
	return b.String()
}

// RenderJSON is the machine-readable one-line form used by the once command.
func RenderJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"render_error":%q}`, err.Error())
	}
	return string(b)
}

func shortWallet(w string) string {
	if len(w) <= 12 {
		return w
	}
	return w[:8] + ".." + w[len(w)-4:]
}

func windowLabel(seconds int) string {
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return d.String()
}
