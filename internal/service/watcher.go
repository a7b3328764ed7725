package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/config"
	"pmwatch/internal/dedupe"
	"pmwatch/internal/domain"
	"pmwatch/internal/gate"
	"pmwatch/internal/metrics"
	"pmwatch/internal/notify"
	"pmwatch/internal/pubsub"
	"pmwatch/internal/scoring"
	"pmwatch/internal/state"
	"pmwatch/internal/wallets"
)

// Watcher polls recent trades, scores each new one, and emits per-trade
// alerts to the operator (log, discord, pubsub). State is saved after every
// cycle so a restart resumes with history and cooldowns intact.
type Watcher struct {
	log zerolog.Logger
	cfg *config.Config

	source  TradeSource
	deduper dedupe.Deduper
	history *wallets.History
	gate    *gate.Gate
	st      *state.State

	discord     *notify.Discord
	broadcaster pubsub.Broadcaster
	metrics     *metrics.Metrics

	out io.Writer
	now func() time.Time
}

type WatcherDeps struct {
	Source      TradeSource
	Deduper     dedupe.Deduper
	History     *wallets.History
	Gate        *gate.Gate
	State       *state.State
	Discord     *notify.Discord
	Broadcaster pubsub.Broadcaster
	Metrics     *metrics.Metrics
	Out         io.Writer // rendered alerts land here, default os.Stdout
}

func NewWatcher(log zerolog.Logger, cfg *config.Config, d WatcherDeps) *Watcher {
	if d.Out == nil {
		d.Out = os.Stdout
	}
	return &Watcher{
		log:         log,
		cfg:         cfg,
		source:      d.Source,
		deduper:     d.Deduper,
		history:     d.History,
		gate:        d.Gate,
		st:          d.State,
		discord:     d.Discord,
		broadcaster: d.Broadcaster,
		metrics:     d.Metrics,
		out:         d.Out,
		now:         time.Now,
	}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info().
		Dur("poll_interval", w.cfg.App.PollInterval).
		Float64("min_notional", w.cfg.Scoring.MinNotional).
		Int("min_score", w.cfg.Scoring.MinScore).
		Msg("watcher started")

	return runLoop(ctx, w.log, w.cfg.App.PollInterval, func(ctx context.Context) error {
		_, err := w.RunOnce(ctx)
		return err
	})
}

// RunOnce executes a single poll cycle and returns the alerts it emitted.
func (w *Watcher) RunOnce(ctx context.Context) ([]*domain.TradeAlert, error) {
	start := w.now()
	defer func() {
		w.metrics.PollsTotal.Inc()
		w.metrics.PollDuration.Observe(time.Since(start).Seconds())
	}()

	trades, err := w.source.RecentTrades(ctx, w.cfg.Ingest.Limit, 0)
	if err != nil {
		w.metrics.PollErrors.Inc()
		return nil, fmt.Errorf("poll trades: %w", err)
	}
	w.metrics.TradesSeen.Add(float64(len(trades)))
	sortTrades(trades)

	now := w.now()
	var alerts []*domain.TradeAlert

	for _, trade := range trades {
		// The persisted seen set is the durable record: without it a
		// restart would re-count the same fills into wallet history. The
		// deduper layers cross-process suppression on top.
		if w.st.HasSeen(trade.ID) {
			continue
		}
		w.st.AddSeen(trade.ID, w.cfg.State.MaxSeenTrades)

		seen, err := w.deduper.Seen(ctx, trade.ID)
		if err != nil {
			// Dedupe outage: process anyway, the cooldown still bounds
			// repeats.
			w.log.Warn().Err(err).Msg("dedupe check failed")
		} else if seen {
			continue
		}

		w.metrics.TradesScored.Inc()
		notional := trade.Notional()

		// Stats before Add: "new wallet" means new prior to this trade.
		stats := w.history.Stats(trade.ProxyWallet, now)
		w.history.Add(trade, notional, w.cfg.Scoring.MinNotional)

		if notional < w.cfg.Scoring.MinNotional {
			continue
		}

		market := marketFor(ctx, w.log, w.st, w.source, trade.ConditionID)
		alert := scoring.BuildAlert(trade, stats, market, w.cfg.Scoring.MinNotional, w.cfg.Scoring.MinScore, now)
		if alert == nil {
			continue
		}

		key := domain.TradeAlertKey(trade.ProxyWallet, trade.ConditionID)
		if !w.gate.AllowTrade(now, key, w.st) {
			w.log.Debug().Str("key", key).Msg("trade alert suppressed by cooldown")
			continue
		}

		w.metrics.TradeAlerts.Inc()
		alerts = append(alerts, alert)
		w.emit(ctx, alert)
	}

	if err := w.st.Save(w.cfg.State.Path); err != nil {
		w.log.Error().Err(err).Msg("state save failed")
	}

	if len(alerts) > 0 {
		w.log.Info().Int("alerts", len(alerts)).Int("trades", len(trades)).Msg("poll cycle complete")
	}
	return alerts, nil
}

func (w *Watcher) emit(ctx context.Context, alert *domain.TradeAlert) {
	w.log.Info().
		Int("score", alert.Score).
		Strs("reasons", alert.Reasons).
		Float64("notional", alert.Notional).
		Str("wallet", alert.Trade.ProxyWallet).
		Str("market", alert.Trade.Title).
		Str("url", alert.URL()).
		Msg("trade alert")

	switch w.cfg.Notify.Format {
	case "json":
		fmt.Fprintln(w.out, notify.RenderJSON(alert))
	default:
		fmt.Fprintf(w.out, "%s\n\n", notify.RenderTradeText(alert))
	}

	if w.discord.Enabled() {
		if err := w.discord.Send(ctx, notify.RenderTradeText(alert)); err != nil {
			w.log.Warn().Err(err).Msg("discord delivery failed")
		}
	}

	if w.broadcaster != nil && w.cfg.PubSub.NATS.Subject != "" {
		if err := w.broadcaster.Publish(ctx, w.cfg.PubSub.NATS.Subject+".trade", alert); err != nil {
			w.log.Warn().Err(err).Msg("alert broadcast failed")
		}
	}
}
