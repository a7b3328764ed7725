// Package window maintains per-market sliding windows of recent trades and
// derives market-level signals from them.
package window

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/config"
	"pmwatch/internal/domain"
)

// Sample is one retained trade observation inside a market's window.
type Sample struct {
	TS       int64   `json:"ts"`
	Wallet   string  `json:"wallet"`
	Price    float64 `json:"price"`
	Notional float64 `json:"notional"`
}

// Engine keeps the subset of recent trades per market within the maximum
// lookback horizon (the accumulation window) and computes window signals.
// Single-writer by design, like the rest of the publisher pipeline.
type Engine struct {
	log zerolog.Logger

	fast         time.Duration
	accumulation time.Duration
	maxPerMarket int
	thresholds   config.SignalsConfig

	samples map[string][]Sample
}

func NewEngine(log zerolog.Logger, cfg config.WindowsConfig, thresholds config.SignalsConfig) (*Engine, error) {
	if cfg.Fast <= 0 || cfg.Accumulation <= 0 {
		return nil, errors.New("window durations must be positive")
	}
	if cfg.Accumulation < cfg.Fast {
		return nil, errors.New("accumulation window must cover the fast window")
	}

	maxPerMarket := cfg.MaxPerMarket
	if maxPerMarket <= 0 {
		maxPerMarket = 500
	}

	return &Engine{
		log:          log,
		fast:         cfg.Fast,
		accumulation: cfg.Accumulation,
		maxPerMarket: maxPerMarket,
		thresholds:   thresholds,
		samples:      make(map[string][]Sample, 256),
	}, nil
}

// Apply ingests one trade into its market's window. Trades without a market
// id carry no market-level signal and are dropped.
func (e *Engine) Apply(trade domain.Trade, notional float64) {
	if trade.ConditionID == "" {
		return
	}
	e.samples[trade.ConditionID] = append(e.samples[trade.ConditionID], Sample{
		TS:       trade.Timestamp,
		Wallet:   trade.ProxyWallet,
		Price:    trade.Price,
		Notional: notional,
	})
}

// Prune drops samples older than the maximum lookback and caps retained
// samples per market. Markets left empty are removed entirely.
func (e *Engine) Prune(now time.Time) {
	cutoff := now.Unix() - int64(e.accumulation/time.Second)
	for market, samples := range e.samples {
		kept := samples[:0]
		for _, s := range samples {
			if s.TS >= cutoff {
				kept = append(kept, s)
			}
		}
		if len(kept) > e.maxPerMarket {
			kept = kept[len(kept)-e.maxPerMarket:]
		}
		if len(kept) == 0 {
			delete(e.samples, market)
			continue
		}
		e.samples[market] = kept
	}
}

// Samples exposes the retained per-market windows for persistence.
func (e *Engine) Samples() map[string][]Sample {
	return e.samples
}

// Restore replaces the engine's windows with a persisted snapshot.
func (e *Engine) Restore(samples map[string][]Sample) {
	if samples == nil {
		samples = make(map[string][]Sample)
	}
	e.samples = samples
	e.log.Debug().Int("markets", len(samples)).Msg("restored window samples")
}
