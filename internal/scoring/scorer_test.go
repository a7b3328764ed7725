package scoring

import (
	"reflect"
	"testing"
	"time"

	"pmwatch/internal/domain"
)

func f(v float64) *float64 { return &v }

func baseTrade() domain.Trade {
	return domain.Trade{
		ProxyWallet: "0xabc",
		Side:        domain.SideBuy,
		ConditionID: "0xcond",
		Size:        10_000,
		Price:       0.5,
		Timestamp:   time.Now().Add(-time.Hour).Unix(),
	}
}

// A fresh wallet hitting a thin market stacks six reasons for a score of 7.
func TestScore_StackedHeuristics(t *testing.T) {
	t.Parallel()

	trade := baseTrade() // notional 5000
	market := &domain.Market{
		ConditionID:  trade.ConditionID,
		LiquidityNum: f(40_000), // ratio 0.125, and below 50k
		Volume24hr:   f(20_000), // ratio 0.25, and below 25k
	}

	score, reasons := Score(trade, trade.Notional(), domain.WalletStats{}, market, 2000, time.Now())

	if score != 7 {
		t.Fatalf("score = %d, want 7", score)
	}
	want := []string{
		domain.ReasonLargeTrade,
		domain.ReasonNewWallet,
		domain.ReasonLargeVsLiquidity,
		domain.ReasonLowLiquidity,
		domain.ReasonLargeVs24hVolume,
		domain.ReasonLow24hVolume,
	}
	if !reflect.DeepEqual(reasons, want) {
		t.Fatalf("reasons = %v, want %v", reasons, want)
	}
}

// New-wallet means at most one retained trade prior to this one.
func TestScore_NewWalletBoundary(t *testing.T) {
	t.Parallel()

	trade := baseTrade()
	now := time.Now()

	_, reasons := Score(trade, trade.Notional(), domain.WalletStats{TradesTotal: 1}, nil, 2000, now)
	if !hasReason(reasons, domain.ReasonNewWallet) {
		t.Fatalf("one prior trade should still count as new, got %v", reasons)
	}

	_, reasons = Score(trade, trade.Notional(), domain.WalletStats{TradesTotal: 2}, nil, 2000, now)
	if hasReason(reasons, domain.ReasonNewWallet) {
		t.Fatalf("two prior trades must not count as new, got %v", reasons)
	}
}

func TestScore_ConcentratedActivity(t *testing.T) {
	t.Parallel()

	trade := baseTrade()
	now := time.Now()

	stats := domain.WalletStats{TradesTotal: 5, Trades7d: 3, UniqueMarkets7d: 3}
	_, reasons := Score(trade, trade.Notional(), stats, nil, 2000, now)
	if !hasReason(reasons, domain.ReasonConcentrated7d) {
		t.Fatalf("3 trades in 3 markets should be concentrated, got %v", reasons)
	}

	stats.UniqueMarkets7d = 4
	_, reasons = Score(trade, trade.Notional(), stats, nil, 2000, now)
	if hasReason(reasons, domain.ReasonConcentrated7d) {
		t.Fatalf("4 markets is spread out, got %v", reasons)
	}
}

// Zero liquidity/volume never divides; the ratio rules stay silent while the
// low-value rules still fire.
func TestScore_ZeroDenominators(t *testing.T) {
	t.Parallel()

	trade := baseTrade()
	market := &domain.Market{LiquidityNum: f(0), Volume24hr: f(0)}

	_, reasons := Score(trade, trade.Notional(), domain.WalletStats{TradesTotal: 10}, market, 2000, time.Now())

	if hasReason(reasons, domain.ReasonLargeVsLiquidity) || hasReason(reasons, domain.ReasonLargeVs24hVolume) {
		t.Fatalf("ratio rules fired on zero denominator: %v", reasons)
	}
	if !hasReason(reasons, domain.ReasonLowLiquidity) || !hasReason(reasons, domain.ReasonLow24hVolume) {
		t.Fatalf("low-value rules should fire at zero: %v", reasons)
	}
}

// Missing market metadata disables all four market rules.
func TestScore_MissingMarket(t *testing.T) {
	t.Parallel()

	trade := baseTrade()
	score, reasons := Score(trade, trade.Notional(), domain.WalletStats{TradesTotal: 10}, nil, 2000, time.Now())

	if score != 1 || !reflect.DeepEqual(reasons, []string{domain.ReasonLargeTrade}) {
		t.Fatalf("score = %d reasons = %v, want only large_trade", score, reasons)
	}
}

func TestScore_ExtremePriceBoundaries(t *testing.T) {
	t.Parallel()

	now := time.Now()
	for _, tc := range []struct {
		price float64
		want  bool
	}{
		{0.05, true},
		{0.95, true},
		{0.06, false},
		{0.94, false},
	} {
		trade := baseTrade()
		trade.Price = tc.price
		_, reasons := Score(trade, trade.Notional(), domain.WalletStats{TradesTotal: 10}, nil, 2000, now)
		if got := hasReason(reasons, domain.ReasonExtremePrice); got != tc.want {
			t.Errorf("price %.2f: extreme_price = %v, want %v", tc.price, got, tc.want)
		}
	}
}

// recent_trade is a label: it appears in reasons but moves no score.
func TestScore_RecentTradeLabelOnly(t *testing.T) {
	t.Parallel()

	now := time.Now()
	old := baseTrade()
	fresh := baseTrade()
	fresh.Timestamp = now.Unix() - 10

	oldScore, _ := Score(old, old.Notional(), domain.WalletStats{TradesTotal: 10}, nil, 2000, now)
	freshScore, freshReasons := Score(fresh, fresh.Notional(), domain.WalletStats{TradesTotal: 10}, nil, 2000, now)

	if oldScore != freshScore {
		t.Fatalf("recent trade changed score: %d vs %d", oldScore, freshScore)
	}
	if !hasReason(freshReasons, domain.ReasonRecentTrade) {
		t.Fatalf("fresh trade missing recent_trade label: %v", freshReasons)
	}
}

func TestBuildAlert_Thresholds(t *testing.T) {
	t.Parallel()

	now := time.Now()

	small := baseTrade()
	small.Size = 100 // notional 50
	if a := BuildAlert(small, domain.WalletStats{}, nil, 2000, 3, now); a != nil {
		t.Fatalf("sub-notional trade produced alert %+v", a)
	}

	dull := baseTrade()
	if a := BuildAlert(dull, domain.WalletStats{TradesTotal: 10}, nil, 2000, 3, now); a != nil {
		t.Fatalf("score 1 should miss min score 3, got %+v", a)
	}

	hot := baseTrade()
	a := BuildAlert(hot, domain.WalletStats{}, nil, 2000, 3, now)
	if a == nil {
		t.Fatal("expected alert for new wallet + large trade")
	}
	if a.Score != 3 || a.Notional != 5000 {
		t.Fatalf("alert score=%d notional=%.0f, want 3 and 5000", a.Score, a.Notional)
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
