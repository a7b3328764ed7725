// Package gate converts candidate signals into a bounded, non-repeating
// published set: threshold candidates pass through dedupe/cooldown, then a
// daily cap with deterministic ranking.
package gate

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/config"
	"pmwatch/internal/domain"
)

// Ledger is the slice of persisted state the gate needs: cooldown
// timestamps and the UTC-day counter.
type Ledger interface {
	LastAlert(key string) (int64, bool)
	MarkAlert(key string, ts int64)
	DailyCount(day string) int
	IncrDaily(day string)
}

// RankFunc orders candidates competing for remaining daily slots. Returns
// true when a should publish before b.
type RankFunc func(a, b domain.Candidate) bool

// defaultRank: triggering magnitude (normalized per type) descending, ties
// by earliest trade timestamp, then market id. Deterministic so re-runs and
// tests reproduce the same feed.
func defaultRank(a, b domain.Candidate) bool {
	if a.Magnitude != b.Magnitude {
		return a.Magnitude > b.Magnitude
	}
	if a.LatestTS != b.LatestTS {
		return a.LatestTS < b.LatestTS
	}
	return a.ConditionID < b.ConditionID
}

type Gate struct {
	log  zerolog.Logger
	cfg  config.GateConfig
	rank RankFunc
}

func New(log zerolog.Logger, cfg config.GateConfig) *Gate {
	return &Gate{log: log, cfg: cfg, rank: defaultRank}
}

// SetRank swaps the daily-cap ranking policy.
func (g *Gate) SetRank(rank RankFunc) {
	if rank != nil {
		g.rank = rank
	}
}

// Admit applies cooldown then the daily cap to publisher candidates.
// Accepted candidates are marked in the ledger (cooldown timestamp and
// daily counter); candidates dropped by the cap are not marked at all.
func (g *Gate) Admit(now time.Time, candidates []domain.Candidate, ledger Ledger) []domain.Candidate {
	nowTS := now.Unix()

	eligible := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		cooldown := g.cfg.CooldownFor(c.Type)
		if last, ok := ledger.LastAlert(c.Key); ok && nowTS-last < int64(cooldown/time.Second) {
			g.log.Debug().
				Str("key", c.Key).
				Int64("last_published", last).
				Msg("candidate suppressed by cooldown")
			continue
		}
		eligible = append(eligible, c)
	}

	day := domain.DayKeyUTC(nowTS)
	remaining := g.cfg.MaxPerDay - ledger.DailyCount(day)
	if remaining <= 0 {
		if len(eligible) > 0 {
			g.log.Info().Int("dropped", len(eligible)).Str("day", day).Msg("daily cap reached")
		}
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool { return g.rank(eligible[i], eligible[j]) })
	if len(eligible) > remaining {
		g.log.Info().
			Int("eligible", len(eligible)).
			Int("remaining", remaining).
			Msg("daily cap trims candidates")
		eligible = eligible[:remaining]
	}

	for _, c := range eligible {
		ledger.MarkAlert(c.Key, nowTS)
		ledger.IncrDaily(day)
	}
	return eligible
}

// AllowTrade applies the watcher cooldown for one wallet+market key and
// marks it when allowed. The daily cap applies only to the published feed,
// not to operator alerts.
func (g *Gate) AllowTrade(now time.Time, key string, ledger Ledger) bool {
	nowTS := now.Unix()
	if last, ok := ledger.LastAlert(key); ok && nowTS-last < int64(g.cfg.WatcherCooldown/time.Second) {
		return false
	}
	ledger.MarkAlert(key, nowTS)
	return true
}
