package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/archive"
	"pmwatch/internal/config"
	"pmwatch/internal/domain"
	"pmwatch/internal/feed"
	"pmwatch/internal/gate"
	"pmwatch/internal/metrics"
	"pmwatch/internal/notify"
	"pmwatch/internal/state"
	"pmwatch/internal/wallets"
	"pmwatch/internal/window"
)

func newTestPublisher(t *testing.T, cfg *config.Config, source TradeSource) *Publisher {
	t.Helper()

	log := zerolog.Nop()
	st := state.Load(cfg.State.Path, log)

	history := wallets.Restore(st.Wallets, cfg.State.MaxPerWallet)
	st.Wallets = history.Wallets

	engine, err := window.NewEngine(log, cfg.Windows, cfg.Signals)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	engine.Restore(st.MarketEvents)

	return NewPublisher(log, cfg, PublisherDeps{
		Source:  source,
		History: history,
		Engine:  engine,
		Gate:    gate.New(log, cfg.Gate),
		State:   st,
		Archive: archive.NewWriter(log, cfg.Archive.Dir),
		Discord: notify.NewDiscord(log, cfg.Notify),
		Metrics: metrics.New(),
	})
}

// heatTrades builds a batch summing past the heat threshold inside the fast
// window, spread over three wallets.
func heatTrades(now int64) []domain.Trade {
	wallets := []string{"0xa", "0xb", "0xc"}
	out := make([]domain.Trade, 0, len(wallets))
	for i, w := range wallets {
		out = append(out, domain.Trade{
			ID:          "t" + w,
			ProxyWallet: w,
			Side:        domain.SideBuy,
			ConditionID: "0xcond",
			Size:        14_000,
			Price:       0.5, // notional 7000 each, 21000 total
			Timestamp:   now - int64(60*(i+1)),
		})
	}
	return out
}

// A burst of notional publishes one heat alert and regenerates the feed;
// re-running the same batch publishes nothing new.
func TestPublisherRunOnce_HeatSignalToFeed(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	now := time.Now().Unix()
	source := &fakeSource{trades: heatTrades(now)}
	p := newTestPublisher(t, cfg, source)

	fresh, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(fresh) != 1 || fresh[0].Type != domain.AlertHeat {
		t.Fatalf("published = %+v, want one heat alert", fresh)
	}
	if fresh[0].Notional != 21_000 {
		t.Fatalf("notional = %f, want 21000", fresh[0].Notional)
	}

	loaded := feed.Load(cfg.Feed.Out, zerolog.Nop())
	if len(loaded) != 1 || loaded[0].ConditionID != "0xcond" {
		t.Fatalf("feed = %+v", loaded)
	}
	if _, err := os.Stat(cfg.Feed.OutJSONL); err != nil {
		t.Fatalf("jsonl feed missing: %v", err)
	}

	month := time.Unix(fresh[0].Timestamp, 0).UTC().Format("2006-01")
	if _, err := os.Stat(filepath.Join(cfg.Archive.Dir, "alerts-"+month+".jsonl")); err != nil {
		t.Fatalf("archive partition missing: %v", err)
	}

	// Replay: same trades are seen, windows unchanged, cooldown holds.
	fresh, err = p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("replay published %d alerts", len(fresh))
	}
	if loaded := feed.Load(cfg.Feed.Out, zerolog.Nop()); len(loaded) != 1 {
		t.Fatalf("replay changed feed to %d alerts", len(loaded))
	}
}

// Quiet trades fold into windows without producing any signal.
func TestPublisherRunOnce_NoSignalNoAlert(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	now := time.Now().Unix()
	source := &fakeSource{trades: []domain.Trade{{
		ID:          "t1",
		ProxyWallet: "0xa",
		ConditionID: "0xcond",
		Size:        5000,
		Price:       0.5, // notional 2500, one wallet, no move
		Timestamp:   now - 60,
	}}}
	p := newTestPublisher(t, cfg, source)

	fresh, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("published %+v from a quiet batch", fresh)
	}
	if len(p.engine.Samples()["0xcond"]) != 1 {
		t.Fatal("qualifying trade not folded into window")
	}
}

// Sub-notional trades never enter the windows.
func TestPublisherRunOnce_SubNotionalExcluded(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	now := time.Now().Unix()
	source := &fakeSource{trades: []domain.Trade{{
		ID:          "t1",
		ProxyWallet: "0xa",
		ConditionID: "0xcond",
		Size:        100,
		Price:       0.5, // notional 50
		Timestamp:   now - 60,
	}}}
	p := newTestPublisher(t, cfg, source)

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(p.engine.Samples()) != 0 {
		t.Fatalf("sub-notional trade entered windows: %+v", p.engine.Samples())
	}
}

// The daily cap bounds a flood of simultaneous signals.
func TestPublisherRunOnce_DailyCap(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Gate.MaxPerDay = 2
	now := time.Now().Unix()

	// Seven markets all breach the heat threshold at once.
	var trades []domain.Trade
	for _, market := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"} {
		for i, w := range []string{"0xa", "0xb"} {
			trades = append(trades, domain.Trade{
				ID:          market + w,
				ProxyWallet: w,
				ConditionID: market,
				Size:        30_000,
				Price:       0.5, // 15000 each, 30000 per market
				Timestamp:   now - int64(60*(i+1)),
			})
		}
	}
	source := &fakeSource{trades: trades}
	p := newTestPublisher(t, cfg, source)

	fresh, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("published %d alerts, want cap 2", len(fresh))
	}
}

// Window snapshots survive a restart through the state file.
func TestPublisher_StateRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	now := time.Now().Unix()
	source := &fakeSource{trades: heatTrades(now)}

	p := newTestPublisher(t, cfg, source)
	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	// Fresh process, same state path: windows and cooldowns restored.
	p2 := newTestPublisher(t, cfg, source)
	if len(p2.engine.Samples()["0xcond"]) != 3 {
		t.Fatalf("window samples not restored: %+v", p2.engine.Samples())
	}
	fresh, err := p2.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("restarted run: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("restart re-published %d alerts", len(fresh))
	}
}
