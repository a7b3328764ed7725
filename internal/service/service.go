// Package service orchestrates the two pipelines: the watcher (per-trade
// scoring and operator alerts) and the publisher (windowed market signals
// and the public feed).
package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/domain"
	"pmwatch/internal/state"
)

// TradeSource is the slice of the ingest client the pipelines consume.
type TradeSource interface {
	RecentTrades(ctx context.Context, limit, offset int) ([]domain.Trade, error)
	MarketByConditionID(ctx context.Context, conditionID string) (*domain.Market, error)
}

// sortTrades orders a poll batch oldest first, ties by trade id, so replays
// of the same batch process in the same order.
func sortTrades(trades []domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Timestamp != trades[j].Timestamp {
			return trades[i].Timestamp < trades[j].Timestamp
		}
		return trades[i].ID < trades[j].ID
	})
}

// marketFor resolves market metadata through the state cache, hitting the
// gamma API only on a miss. Lookup failure degrades to a nil market: the
// liquidity and volume heuristics then simply do not fire.
func marketFor(ctx context.Context, log zerolog.Logger, st *state.State, source TradeSource, conditionID string) *domain.Market {
	if conditionID == "" {
		return nil
	}
	if m := st.Market(conditionID); m != nil {
		return m
	}

	m, err := source.MarketByConditionID(ctx, conditionID)
	if err != nil {
		log.Warn().Err(err).Str("condition_id", conditionID).Msg("market lookup failed")
		return nil
	}
	if m == nil {
		return nil
	}
	st.PutMarket(m)
	return m
}

// runLoop drives a pipeline at a fixed interval until ctx is done. One
// cycle runs immediately.
func runLoop(ctx context.Context, log zerolog.Logger, interval time.Duration, cycle func(context.Context) error) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
