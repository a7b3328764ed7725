package domain

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one fill from the data-api feed. Immutable once observed.
type Trade struct {
	ID              string  `json:"trade_id"`
	ProxyWallet     string  `json:"proxy_wallet"`
	Side            Side    `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"condition_id"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"` // [0,1], USDC per share
	Timestamp       int64   `json:"timestamp"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	EventSlug       string  `json:"event_slug"`
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcome_index"`
	TransactionHash string  `json:"transaction_hash"`
	Name            string  `json:"name,omitempty"`
	Pseudonym       string  `json:"pseudonym,omitempty"`
}

// Notional is the dollar-equivalent value of the trade (size * price).
func (t Trade) Notional() float64 {
	n := t.Size * t.Price
	if n < 0 {
		return 0
	}
	return n
}

func (t Trade) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}

// Market is the gamma-api view of a market. Refreshed per poll, latest wins.
// Liquidity and volume are pointers: the API may omit them, and heuristics
// must treat missing as "evaluate false".
type Market struct {
	ConditionID   string    `json:"condition_id"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	LiquidityNum  *float64  `json:"liquidity_num"`
	Volume24hr    *float64  `json:"volume24hr"`
	Outcomes      []string  `json:"outcomes"`
	OutcomePrices []float64 `json:"outcome_prices"`
}

// WalletStats summarizes a wallet's retained qualifying history at a point
// in time. Counts are prior to the trade being scored.
type WalletStats struct {
	ProxyWallet        string  `json:"proxy_wallet"`
	FirstSeenTS        int64   `json:"first_seen_ts,omitempty"`
	TradesTotal        int     `json:"trades_total"`
	UniqueMarketsTotal int     `json:"unique_markets_total"`
	Trades7d           int     `json:"trades_7d"`
	UniqueMarkets7d    int     `json:"unique_markets_7d"`
	AvgNotional7d      float64 `json:"avg_notional_7d"`
}

// Scorer reason tags.
const (
	ReasonLargeTrade       = "large_trade"
	ReasonNewWallet        = "new_wallet_to_system"
	ReasonConcentrated7d   = "concentrated_activity_7d"
	ReasonLargeVsLiquidity = "large_vs_liquidity"
	ReasonLowLiquidity     = "low_liquidity_market"
	ReasonLargeVs24hVolume = "large_vs_24h_volume"
	ReasonLow24hVolume     = "low_24h_volume_market"
	ReasonExtremePrice     = "extreme_price"
	ReasonRecentTrade      = "recent_trade" // label only, no weight
)

// Market-level alert types produced by the window aggregator.
const (
	AlertPriceMove     = "market_price_move_30m"
	AlertHeat          = "market_heat_30m"
	AlertParticipation = "market_participation_30m"
	AlertWhaleAccum    = "whale_accumulation_6h"
	AlertTrade         = "trade" // watcher per-trade alert
)

// WindowMetrics is the self-explanatory payload attached to a market-level
// alert: the window bounds and whichever statistics triggered it.
type WindowMetrics struct {
	WindowSeconds     int      `json:"window_s"`
	WindowStart       int64    `json:"window_start_ts"`
	WindowEnd         int64    `json:"window_end_ts"`
	Trades            int      `json:"trades"`
	NotionalSum       float64  `json:"notional_sum"`
	UniqueWallets     int      `json:"unique_wallets"`
	PriceRange        *float64 `json:"price_range,omitempty"`
	TopWallet         string   `json:"top_wallet,omitempty"`
	TopWalletNotional float64  `json:"top_wallet_notional,omitempty"`
	TopWalletShare    *float64 `json:"top_wallet_share,omitempty"`
	TopWalletTrades   int      `json:"top_wallet_trades,omitempty"`
}

// Candidate is a triggered market-level signal before gate policy.
type Candidate struct {
	Type        string        `json:"type"`
	ConditionID string        `json:"condition_id"`
	Notional    float64       `json:"notional"`  // signal magnitude in dollars
	Magnitude   float64       `json:"magnitude"` // triggering metric / its threshold
	LatestTS    int64         `json:"latest_ts"` // newest contributing sample
	Key         string        `json:"key"`       // dedupe key, deterministic per window bucket
	Metrics     WindowMetrics `json:"metrics"`
}

// PublishedAlert is a Candidate accepted by the gate. Written once, never
// mutated.
type PublishedAlert struct {
	Type        string        `json:"type"`
	ConditionID string        `json:"condition_id"`
	Timestamp   int64         `json:"timestamp"`    // newest contributing trade
	PublishedAt int64         `json:"published_at"` // gate acceptance time
	Notional    float64       `json:"notional"`
	Metrics     WindowMetrics `json:"metrics"`
	Market      *Market       `json:"market,omitempty"`
	URL         string        `json:"url"`
}

// TradeAlert is the watcher's per-trade output.
type TradeAlert struct {
	Score    int         `json:"score"`
	Reasons  []string    `json:"reasons"`
	Notional float64     `json:"notional"`
	Trade    Trade       `json:"trade"`
	Wallet   WalletStats `json:"wallet_stats"`
	Market   *Market     `json:"market,omitempty"`
}

// URL points at the market page for the alerted trade.
func (a TradeAlert) URL() string {
	slug := a.Trade.Slug
	if slug == "" && a.Market != nil {
		slug = a.Market.Slug
	}
	return MarketURL(slug)
}

func MarketURL(slug string) string {
	if slug == "" {
		return "https://polymarket.com"
	}
	return "https://polymarket.com/market/" + slug
}
