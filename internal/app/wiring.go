package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apihttp "pmwatch/internal/api/http"
	"pmwatch/internal/api/http/mw"
	"pmwatch/internal/archive"
	"pmwatch/internal/config"
	"pmwatch/internal/dedupe"
	rdsdedupe "pmwatch/internal/dedupe/redis"
	"pmwatch/internal/gate"
	"pmwatch/internal/ingest"
	"pmwatch/internal/logging"
	"pmwatch/internal/metrics"
	"pmwatch/internal/notify"
	"pmwatch/internal/pubsub"
	natsps "pmwatch/internal/pubsub/nats"
	"pmwatch/internal/service"
	"pmwatch/internal/state"
	"pmwatch/internal/wallets"
	"pmwatch/internal/window"
)

// Container holds the wired application graph. Optional infrastructure
// (redis, nats, clickhouse) is nil when not configured.
type Container struct {
	Log zerolog.Logger
	Cfg *config.Config

	State     *state.State
	Watcher   *service.Watcher
	Publisher *service.Publisher
	HTTPSrv   *apihttp.Server

	deduper     dedupe.Deduper
	memDedupe   *dedupe.Memory
	broadcaster pubsub.Broadcaster
	sink        *archive.Sink
	closeRedis  func() error
}

// Build constructs the full graph from config. The returned cleanup closes
// everything the container opened, flushing pending writes.
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	log := logging.New(cfg.Logging)
	m := metrics.New()

	st := state.Load(cfg.State.Path, log)
	log.Info().
		Int("wallets", len(st.Wallets)).
		Int("markets", len(st.MarketEvents)).
		Int("seen_trades", len(st.SeenTradeIDs)).
		Msg("state loaded")

	history := wallets.Restore(st.Wallets, cfg.State.MaxPerWallet)
	st.Wallets = history.Wallets

	engine, err := window.NewEngine(log, cfg.Windows, cfg.Signals)
	if err != nil {
		return nil, nil, fmt.Errorf("build window engine: %w", err)
	}
	engine.Restore(st.MarketEvents)

	g := gate.New(log, cfg.Gate)
	source := ingest.NewClient(log, cfg.Ingest)
	discord := notify.NewDiscord(log, cfg.Notify)
	if discord.Enabled() {
		log.Info().Msg("discord notifications enabled")
	}

	c := &Container{Log: log, Cfg: cfg, State: st}
	var checks []apihttp.HealthCheck

	// Deduper: redis survives restarts, memory is the default.
	switch cfg.Dedupe.Backend {
	case "redis":
		rdb, err := rdsdedupe.Connect(ctx, cfg.Dedupe.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		c.closeRedis = rdb.Close
		rd, err := rdsdedupe.NewDeduper(log, rdb, cfg.Dedupe)
		if err != nil {
			return nil, nil, fmt.Errorf("build redis deduper: %w", err)
		}
		c.deduper = rd
		checks = append(checks, apihttp.HealthCheck{Name: "redis", Probe: rd.Health})
		log.Info().Str("addr", cfg.Dedupe.Redis.Addr).Msg("redis deduper enabled")
	default:
		c.memDedupe = dedupe.NewMemory(log, cfg.Dedupe.TTL, 10*time.Minute)
		c.deduper = c.memDedupe
	}

	if cfg.PubSub.NATS.URL != "" {
		nc, err := natsps.New(log, cfg.PubSub.NATS)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		c.broadcaster = nc
		log.Info().Str("url", cfg.PubSub.NATS.URL).Msg("nats broadcaster enabled")
	}

	archiveWriter := archive.NewWriter(log, cfg.Archive.Dir)
	if cfg.Archive.ClickHouse.Enabled {
		conn, err := archive.Connect(ctx, &cfg.Archive.ClickHouse)
		if err != nil {
			return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		c.sink = archive.NewSink(log, conn, cfg.Archive.ClickHouse)
		checks = append(checks, apihttp.HealthCheck{Name: "clickhouse", Probe: conn.Ping})
		log.Info().Msg("clickhouse archive sink enabled")
	}

	c.Watcher = service.NewWatcher(log, cfg, service.WatcherDeps{
		Source:      source,
		Deduper:     c.deduper,
		History:     history,
		Gate:        g,
		State:       st,
		Discord:     discord,
		Broadcaster: c.broadcaster,
		Metrics:     m,
	})

	c.Publisher = service.NewPublisher(log, cfg, service.PublisherDeps{
		Source:      source,
		History:     history,
		Engine:      engine,
		Gate:        g,
		State:       st,
		Archive:     archiveWriter,
		Sink:        c.sink,
		Discord:     discord,
		Broadcaster: c.broadcaster,
		Metrics:     m,
	})

	api := apihttp.NewAPI(log, cfg.Feed, checks)
	router := apihttp.BuildRouter(
		api,
		m.Handler(),
		mw.NewLogging(log),
		mw.NewRateLimit(mw.RateBucket{
			RefillPerSec: cfg.API.RateLimit.RefillPerSec,
			Burst:        cfg.API.RateLimit.Burst,
		}),
	)
	c.HTTPSrv = apihttp.NewServer(log, cfg.API, router)

	cleanup := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		if c.sink != nil {
			if err := c.sink.Close(ctxClean); err != nil {
				log.Error().Err(err).Msg("clickhouse sink close failed")
			}
		}
		if c.broadcaster != nil {
			if err := c.broadcaster.Close(); err != nil {
				log.Error().Err(err).Msg("broadcaster close failed")
			}
		}
		if c.memDedupe != nil {
			c.memDedupe.Close()
		}
		if c.closeRedis != nil {
			if err := c.closeRedis(); err != nil {
				log.Error().Err(err).Msg("redis close failed")
			}
		}
		log.Info().Msg("dependencies cleaned up")
	}

	log.Info().Msg("wiring complete")
	return c, cleanup, nil
}
