package window

import (
	"time"

	"pmwatch/internal/domain"
)

// Signals derives candidate alerts from the current windows. A market with
// no samples inside the relevant window produces no candidate for that
// signal type: there is never a zero-valued trigger.
func (e *Engine) Signals(now time.Time) []domain.Candidate {
	var candidates []domain.Candidate

	fastSince := now.Unix() - int64(e.fast/time.Second)
	accumSince := now.Unix() - int64(e.accumulation/time.Second)

	for market, samples := range e.samples {
		fast := computeStats(samples, fastSince)
		if fast.trades > 0 {
			candidates = append(candidates, e.fastSignals(market, fast)...)
		}

		accum := computeStats(samples, accumSince)
		if accum.trades > 0 {
			if c := e.whaleSignal(market, accum); c != nil {
				candidates = append(candidates, *c)
			}
		}
	}

	if len(candidates) > 0 {
		e.log.Debug().Int("candidates", len(candidates)).Msg("window signals derived")
	}
	return candidates
}

func (e *Engine) fastSignals(market string, st stats) []domain.Candidate {
	var out []domain.Candidate
	metrics := e.metrics(st, e.fast)

	if st.priceRange != nil && *st.priceRange >= e.thresholds.PriceMove && e.thresholds.PriceMove > 0 {
		out = append(out, e.candidate(domain.AlertPriceMove, market, st,
			st.notionalSum, *st.priceRange/e.thresholds.PriceMove, e.fast, metrics))
	}

	if e.thresholds.Heat > 0 && st.notionalSum >= e.thresholds.Heat {
		out = append(out, e.candidate(domain.AlertHeat, market, st,
			st.notionalSum, st.notionalSum/e.thresholds.Heat, e.fast, metrics))
	}

	if e.thresholds.Participation > 0 && st.uniqueWallets >= e.thresholds.Participation {
		out = append(out, e.candidate(domain.AlertParticipation, market, st,
			st.notionalSum, float64(st.uniqueWallets)/float64(e.thresholds.Participation), e.fast, metrics))
	}

	return out
}

func (e *Engine) whaleSignal(market string, st stats) *domain.Candidate {
	if e.thresholds.WhaleNotional <= 0 || st.topWalletNotional < e.thresholds.WhaleNotional {
		return nil
	}
	metrics := e.metrics(st, e.accumulation)
	metrics.TopWallet = st.topWallet
	metrics.TopWalletNotional = st.topWalletNotional
	metrics.TopWalletShare = st.topWalletShare
	metrics.TopWalletTrades = st.topWalletTrades

	c := e.candidate(domain.AlertWhaleAccum, market, st,
		st.topWalletNotional, st.topWalletNotional/e.thresholds.WhaleNotional, e.accumulation, metrics)
	return &c
}

func (e *Engine) candidate(
	alertType, market string,
	st stats,
	notional, magnitude float64,
	window time.Duration,
	metrics domain.WindowMetrics,
) domain.Candidate {
	return domain.Candidate{
		Type:        alertType,
		ConditionID: market,
		Notional:    notional,
		Magnitude:   magnitude,
		LatestTS:    st.latestTS,
		Key:         domain.SignalKey(alertType, market, st.latestTS, window),
		Metrics:     metrics,
	}
}

func (e *Engine) metrics(st stats, window time.Duration) domain.WindowMetrics {
	return domain.WindowMetrics{
		WindowSeconds: int(window / time.Second),
		WindowStart:   st.earliestTS,
		WindowEnd:     st.latestTS,
		Trades:        st.trades,
		NotionalSum:   st.notionalSum,
		UniqueWallets: st.uniqueWallets,
		PriceRange:    st.priceRange,
	}
}
