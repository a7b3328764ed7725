package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/archive"
	"pmwatch/internal/config"
	"pmwatch/internal/domain"
	"pmwatch/internal/feed"
	"pmwatch/internal/gate"
	"pmwatch/internal/metrics"
	"pmwatch/internal/notify"
	"pmwatch/internal/pubsub"
	"pmwatch/internal/state"
	"pmwatch/internal/wallets"
	"pmwatch/internal/window"
)

// Publisher polls recent trades, folds qualifying ones into the per-market
// windows, gates the derived signals, and regenerates the public feed. It is
// the only writer of the feed and archive files.
type Publisher struct {
	log zerolog.Logger
	cfg *config.Config

	source  TradeSource
	history *wallets.History
	engine  *window.Engine
	gate    *gate.Gate
	st      *state.State

	archive     *archive.Writer
	sink        *archive.Sink
	discord     *notify.Discord
	broadcaster pubsub.Broadcaster
	metrics     *metrics.Metrics

	now func() time.Time
}

type PublisherDeps struct {
	Source      TradeSource
	History     *wallets.History
	Engine      *window.Engine
	Gate        *gate.Gate
	State       *state.State
	Archive     *archive.Writer
	Sink        *archive.Sink
	Discord     *notify.Discord
	Broadcaster pubsub.Broadcaster
	Metrics     *metrics.Metrics
}

func NewPublisher(log zerolog.Logger, cfg *config.Config, d PublisherDeps) *Publisher {
	return &Publisher{
		log:         log,
		cfg:         cfg,
		source:      d.Source,
		history:     d.History,
		engine:      d.Engine,
		gate:        d.Gate,
		st:          d.State,
		archive:     d.Archive,
		sink:        d.Sink,
		discord:     d.Discord,
		broadcaster: d.Broadcaster,
		metrics:     d.Metrics,
		now:         time.Now,
	}
}

// Run polls until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	p.log.Info().
		Dur("poll_interval", p.cfg.App.PollInterval).
		Int("max_per_day", p.cfg.Gate.MaxPerDay).
		Msg("publisher started")

	return runLoop(ctx, p.log, p.cfg.App.PollInterval, func(ctx context.Context) error {
		_, err := p.RunOnce(ctx)
		return err
	})
}

// RunOnce executes one publish cycle and returns the alerts it published.
func (p *Publisher) RunOnce(ctx context.Context) ([]domain.PublishedAlert, error) {
	start := p.now()
	defer func() {
		p.metrics.PollsTotal.Inc()
		p.metrics.PollDuration.Observe(time.Since(start).Seconds())
	}()

	trades, err := p.source.RecentTrades(ctx, p.cfg.Ingest.Limit, 0)
	if err != nil {
		p.metrics.PollErrors.Inc()
		return nil, fmt.Errorf("poll trades: %w", err)
	}
	p.metrics.TradesSeen.Add(float64(len(trades)))
	sortTrades(trades)

	now := p.now()
	p.ingest(trades)

	p.engine.Prune(now)
	candidates := p.engine.Signals(now)
	for _, c := range candidates {
		p.metrics.Candidates.WithLabelValues(c.Type).Inc()
	}

	accepted := p.gate.Admit(now, candidates, p.st)
	if skipped := len(candidates) - len(accepted); skipped > 0 {
		p.metrics.AlertsSkipped.WithLabelValues("gate").Add(float64(skipped))
	}

	fresh := make([]domain.PublishedAlert, 0, len(accepted))
	for _, c := range accepted {
		alert := p.publish(ctx, now, c)
		fresh = append(fresh, alert)
	}

	if err := p.writeFeed(fresh, now); err != nil {
		return fresh, err
	}

	// Archive failure never blocks the feed.
	if err := p.archive.Append(fresh); err != nil {
		p.metrics.ArchiveErrors.Inc()
		p.log.Error().Err(err).Msg("archive append failed")
	}

	p.persist(now, fresh)
	return fresh, nil
}

// ingest folds the new qualifying trades of one batch into wallet history
// and the per-market windows.
func (p *Publisher) ingest(trades []domain.Trade) {
	for _, trade := range trades {
		if p.st.HasSeen(trade.ID) {
			continue
		}
		p.st.AddSeen(trade.ID, p.cfg.State.MaxSeenTrades)
		p.metrics.TradesScored.Inc()

		notional := trade.Notional()
		if notional < p.cfg.Scoring.MinNotional {
			continue
		}

		p.history.Add(trade, notional, p.cfg.Scoring.MinNotional)
		p.engine.Apply(trade, notional)
	}
}

func (p *Publisher) publish(ctx context.Context, now time.Time, c domain.Candidate) domain.PublishedAlert {
	market := marketFor(ctx, p.log, p.st, p.source, c.ConditionID)

	slug := ""
	if market != nil {
		slug = market.Slug
	}
	alert := domain.PublishedAlert{
		Type:        c.Type,
		ConditionID: c.ConditionID,
		Timestamp:   c.LatestTS,
		PublishedAt: now.Unix(),
		Notional:    c.Notional,
		Metrics:     c.Metrics,
		Market:      market,
		URL:         domain.MarketURL(slug),
	}

	p.metrics.AlertsPublished.WithLabelValues(alert.Type).Inc()
	p.log.Info().
		Str("type", alert.Type).
		Str("condition_id", alert.ConditionID).
		Float64("notional", alert.Notional).
		Str("url", alert.URL).
		Msg("alert published")

	if p.discord.Enabled() {
		if err := p.discord.Send(ctx, notify.RenderSignalText(&alert)); err != nil {
			p.log.Warn().Err(err).Msg("discord delivery failed")
		}
	}
	if p.broadcaster != nil && p.cfg.PubSub.NATS.Subject != "" {
		if err := p.broadcaster.Publish(ctx, p.cfg.PubSub.NATS.Subject+"."+alert.Type, alert); err != nil {
			p.log.Warn().Err(err).Msg("alert broadcast failed")
		}
	}
	if p.sink != nil {
		if err := p.sink.Enqueue(alert); err != nil {
			p.metrics.ArchiveErrors.Inc()
			p.log.Warn().Err(err).Msg("clickhouse enqueue failed")
		}
	}
	return alert
}

func (p *Publisher) writeFeed(fresh []domain.PublishedAlert, now time.Time) error {
	prev := feed.Load(p.cfg.Feed.Out, p.log)
	merged := feed.Merge(prev, fresh, p.cfg.Scoring.MinNotional, p.cfg.Feed.MaxAlerts)

	if err := feed.Write(p.cfg.Feed.Out, p.cfg.Feed.OutJSONL, merged, len(fresh), now.Unix()); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	p.metrics.FeedAlerts.Set(float64(len(merged)))
	return nil
}

// persist snapshots windows into state, prunes everything past retention,
// and saves atomically.
func (p *Publisher) persist(now time.Time, fresh []domain.PublishedAlert) {
	p.st.MarketEvents = p.engine.Samples()

	keepMarkets := make(map[string]struct{})
	keepWallets := make(map[string]struct{})
	for market := range p.engine.Samples() {
		keepMarkets[market] = struct{}{}
	}
	for _, a := range feed.Load(p.cfg.Feed.Out, p.log) {
		keepMarkets[a.ConditionID] = struct{}{}
		if a.Metrics.TopWallet != "" {
			keepWallets[a.Metrics.TopWallet] = struct{}{}
		}
	}

	p.history.Prune(now, p.cfg.State.Keep, keepWallets)
	p.st.Prune(now, p.cfg.State.Keep, keepMarkets)

	if err := p.st.Save(p.cfg.State.Path); err != nil {
		p.log.Error().Err(err).Msg("state save failed")
	}

	if len(fresh) > 0 {
		p.log.Info().Int("published", len(fresh)).Msg("publish cycle complete")
	}
}
