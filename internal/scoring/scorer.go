// Package scoring applies the additive per-trade heuristics.
package scoring

import (
	"time"

	"pmwatch/internal/domain"
)

// Weights per heuristic. Each rule triggers independently.
const (
	weightLargeTrade       = 1
	weightNewWallet        = 2
	weightConcentrated7d   = 1
	weightLargeVsLiquidity = 1
	weightLowLiquidity     = 1
	weightLargeVs24hVolume = 1
	weightLow24hVolume     = 1
	weightExtremePrice     = 1
)

const (
	liquidityFracThreshold = 0.01
	lowLiquidityThreshold  = 50_000
	volumeFracThreshold    = 0.05
	lowVolumeThreshold     = 25_000
	extremePriceLow        = 0.05
	extremePriceHigh       = 0.95
	recentTradeAge         = 60 * time.Second
)

// Score computes the trade's integer score and its reason tags.
//
// Pure: the wallet stats must reflect history prior to recording the trade,
// and all ratio heuristics treat a zero or missing denominator as false.
func Score(
	trade domain.Trade,
	notional float64,
	stats domain.WalletStats,
	market *domain.Market,
	minNotional float64,
	now time.Time,
) (int, []string) {
	score := 0
	var reasons []string

	if notional >= minNotional {
		score += weightLargeTrade
		reasons = append(reasons, domain.ReasonLargeTrade)
	}

	if stats.TradesTotal <= 1 {
		score += weightNewWallet
		reasons = append(reasons, domain.ReasonNewWallet)
	}

	if stats.Trades7d >= 3 && stats.UniqueMarkets7d <= 3 {
		score += weightConcentrated7d
		reasons = append(reasons, domain.ReasonConcentrated7d)
	}

	if market != nil && market.LiquidityNum != nil {
		liq := *market.LiquidityNum
		if liq > 0 && notional/liq >= liquidityFracThreshold {
			score += weightLargeVsLiquidity
			reasons = append(reasons, domain.ReasonLargeVsLiquidity)
		}
		if liq < lowLiquidityThreshold {
			score += weightLowLiquidity
			reasons = append(reasons, domain.ReasonLowLiquidity)
		}
	}

	if market != nil && market.Volume24hr != nil {
		vol := *market.Volume24hr
		if vol > 0 && notional/vol >= volumeFracThreshold {
			score += weightLargeVs24hVolume
			reasons = append(reasons, domain.ReasonLargeVs24hVolume)
		}
		if vol < lowVolumeThreshold {
			score += weightLow24hVolume
			reasons = append(reasons, domain.ReasonLow24hVolume)
		}
	}

	// Prices hugging 0 or 1 often indicate urgency or certainty.
	if trade.Price <= extremePriceLow || trade.Price >= extremePriceHigh {
		score += weightExtremePrice
		reasons = append(reasons, domain.ReasonExtremePrice)
	}

	// Label only, no weight: lets consumers prioritize fresh fills.
	if now.Unix()-trade.Timestamp <= int64(recentTradeAge/time.Second) {
		reasons = append(reasons, domain.ReasonRecentTrade)
	}

	return score, reasons
}

// BuildAlert scores the trade and returns nil when it fails the watcher
// thresholds (min notional and min score).
func BuildAlert(
	trade domain.Trade,
	stats domain.WalletStats,
	market *domain.Market,
	minNotional float64,
	minScore int,
	now time.Time,
) *domain.TradeAlert {
	notional := trade.Notional()
	score, reasons := Score(trade, notional, stats, market, minNotional, now)
	if notional < minNotional || score < minScore {
		return nil
	}
	return &domain.TradeAlert{
		Score:    score,
		Reasons:  reasons,
		Notional: notional,
		Trade:    trade,
		Wallet:   stats,
		Market:   market,
	}
}
