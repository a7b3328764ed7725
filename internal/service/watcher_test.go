package service

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/config"
	"pmwatch/internal/dedupe"
	"pmwatch/internal/domain"
	"pmwatch/internal/gate"
	"pmwatch/internal/metrics"
	"pmwatch/internal/notify"
	"pmwatch/internal/state"
	"pmwatch/internal/wallets"
)

// fakeSource serves canned trades and markets.
type fakeSource struct {
	trades   []domain.Trade
	markets  map[string]*domain.Market
	fetchErr error
}

func (f *fakeSource) RecentTrades(context.Context, int, int) ([]domain.Trade, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]domain.Trade, len(f.trades))
	copy(out, f.trades)
	return out, nil
}

func (f *fakeSource) MarketByConditionID(_ context.Context, id string) (*domain.Market, error) {
	return f.markets[id], nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.State.Path = filepath.Join(dir, "state.json")
	cfg.Feed.Out = filepath.Join(dir, "alerts.json")
	cfg.Feed.OutJSONL = filepath.Join(dir, "alerts.jsonl")
	cfg.Archive.Dir = filepath.Join(dir, "archive")
	return cfg
}

func newTestWatcher(t *testing.T, cfg *config.Config, source TradeSource) *Watcher {
	t.Helper()

	log := zerolog.Nop()
	st := state.Load(cfg.State.Path, log)
	mem := dedupe.NewMemory(log, time.Hour, 0)
	t.Cleanup(mem.Close)

	history := wallets.Restore(st.Wallets, cfg.State.MaxPerWallet)
	st.Wallets = history.Wallets

	return NewWatcher(log, cfg, WatcherDeps{
		Source:  source,
		Deduper: mem,
		History: history,
		Gate:    gate.New(log, cfg.Gate),
		State:   st,
		Discord: notify.NewDiscord(log, cfg.Notify),
		Metrics: metrics.New(),
	})
}

func qualifyingTrade(id, wallet string, ts int64) domain.Trade {
	return domain.Trade{
		ID:          id,
		ProxyWallet: wallet,
		Side:        domain.SideBuy,
		ConditionID: "0xcond",
		Size:        10_000,
		Price:       0.5, // notional 5000
		Timestamp:   ts,
		Slug:        "some-market",
	}
}

// A qualifying trade from an unseen wallet alerts once; the same poll batch
// replayed alerts zero times.
func TestWatcherRunOnce_AlertsOncePerTrade(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	now := time.Now().Unix()
	source := &fakeSource{trades: []domain.Trade{qualifyingTrade("t1", "0xnew", now)}}
	w := newTestWatcher(t, cfg, source)

	alerts, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Score < 3 {
		t.Fatalf("score = %d, want >= 3", a.Score)
	}
	if !hasReason(a.Reasons, domain.ReasonNewWallet) {
		t.Fatalf("first trade should be a new wallet: %v", a.Reasons)
	}

	alerts, err = w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("replayed batch emitted %d alerts", len(alerts))
	}
}

// The seen set survives restarts through state: a rebuilt watcher with an
// empty in-process deduper must not re-count or re-alert trades from before
// the restart.
func TestWatcherRunOnce_RestartSkipsSeenTrades(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	now := time.Now().Unix()
	source := &fakeSource{trades: []domain.Trade{qualifyingTrade("t1", "0xnew", now)}}

	w := newTestWatcher(t, cfg, source)
	if alerts, err := w.RunOnce(context.Background()); err != nil || len(alerts) != 1 {
		t.Fatalf("first cycle: alerts=%d err=%v", len(alerts), err)
	}

	w2 := newTestWatcher(t, cfg, source)
	alerts, err := w2.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("cycle after restart: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("replayed trade alerted after restart: %+v", alerts[0])
	}
	if got := w2.history.Stats("0xnew", time.Unix(now, 0)).TradesTotal; got != 1 {
		t.Fatalf("trades total after restart = %d, want 1", got)
	}
}

// notify.format selects the stdout rendering: readable text by default, one
// JSON object per line for machines.
func TestWatcherRunOnce_OutputFormat(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		format string
		want   string
	}{
		{"text", "[score "},
		{"json", `"score":`},
	} {
		cfg := testConfig(t)
		cfg.Notify.Format = tc.format
		now := time.Now().Unix()
		source := &fakeSource{trades: []domain.Trade{qualifyingTrade("t1", "0xnew", now)}}

		w := newTestWatcher(t, cfg, source)
		var out bytes.Buffer
		w.out = &out

		if alerts, err := w.RunOnce(context.Background()); err != nil || len(alerts) != 1 {
			t.Fatalf("%s: alerts=%d err=%v", tc.format, len(alerts), err)
		}
		if !strings.Contains(out.String(), tc.want) {
			t.Fatalf("%s output missing %q:\n%s", tc.format, tc.want, out.String())
		}
	}
}

// A second qualifying trade from the same wallet in the same market stays
// silent within the watcher cooldown.
func TestWatcherRunOnce_WalletMarketCooldown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	now := time.Now().Unix()
	source := &fakeSource{trades: []domain.Trade{qualifyingTrade("t1", "0xnew", now)}}
	w := newTestWatcher(t, cfg, source)

	if alerts, _ := w.RunOnce(context.Background()); len(alerts) != 1 {
		t.Fatal("expected first alert")
	}

	source.trades = []domain.Trade{qualifyingTrade("t2", "0xnew", now + 60)}
	alerts, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("cooldown violated, got %d alerts", len(alerts))
	}
}

// Trades below the notional floor update wallet history but never alert,
// whatever their score would be.
func TestWatcherRunOnce_SubNotionalIsSilent(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	now := time.Now().Unix()
	small := qualifyingTrade("t1", "0xnew", now)
	small.Size = 100 // notional 50
	source := &fakeSource{trades: []domain.Trade{small}}
	w := newTestWatcher(t, cfg, source)

	alerts, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("sub-notional trade alerted: %+v", alerts[0])
	}
}

// Market metadata sharpens the score when the gamma lookup succeeds.
func TestWatcherRunOnce_MarketHeuristics(t *testing.T) {
	t.Parallel()

	liq := 40_000.0
	cfg := testConfig(t)
	now := time.Now().Unix()
	source := &fakeSource{
		trades:  []domain.Trade{qualifyingTrade("t1", "0xnew", now)},
		markets: map[string]*domain.Market{"0xcond": {ConditionID: "0xcond", LiquidityNum: &liq, Slug: "some-market"}},
	}
	w := newTestWatcher(t, cfg, source)

	alerts, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if !hasReason(alerts[0].Reasons, domain.ReasonLowLiquidity) {
		t.Fatalf("market heuristic missing: %v", alerts[0].Reasons)
	}
	// Cached for the next cycle.
	if w.st.Market("0xcond") == nil {
		t.Fatal("market not cached in state")
	}
}

// A fetch failure is returned to the loop; nothing is recorded.
func TestWatcherRunOnce_FetchError(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	source := &fakeSource{fetchErr: errors.New("boom")}
	w := newTestWatcher(t, cfg, source)

	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if len(w.history.Wallets) != 0 {
		t.Fatal("failed poll mutated history")
	}
}

// State lands on disk after a cycle so a restart resumes cooldowns.
func TestWatcherRunOnce_PersistsState(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	now := time.Now().Unix()
	source := &fakeSource{trades: []domain.Trade{qualifyingTrade("t1", "0xnew", now)}}
	w := newTestWatcher(t, cfg, source)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	reloaded := state.Load(cfg.State.Path, zerolog.Nop())
	key := domain.TradeAlertKey("0xnew", "0xcond")
	if _, ok := reloaded.LastAlert(key); !ok {
		t.Fatal("cooldown mark not persisted")
	}
	if reloaded.Wallets["0xnew"] == nil {
		t.Fatal("wallet history not persisted")
	}
}

func hasReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
