// Package wallets tracks each wallet's past qualifying trades, feeding the
// new-wallet and concentrated-activity heuristics.
package wallets

import (
	"time"

	"pmwatch/internal/domain"
)

// Lookback horizon of the 7d heuristics. Entries older than this are
// prunable without affecting any heuristic.
const HistoryWindow = 7 * 24 * time.Hour

type Entry struct {
	TS          int64   `json:"ts"`
	ConditionID string  `json:"condition_id"`
	Notional    float64 `json:"notional"`
}

type Record struct {
	FirstSeenTS int64    `json:"first_seen_ts,omitempty"`
	LastSeenTS  int64    `json:"last_seen_ts,omitempty"`
	Events      []Entry  `json:"events"`
	Markets     []string `json:"markets"`
}

// History is an append-and-query store of qualifying trades per wallet.
// Entries are appended in observation order and never edited. Not safe for
// concurrent writers; cross-process consistency comes from the state
// store's atomic persistence.
type History struct {
	Wallets map[string]*Record `json:"wallets"`

	maxPerWallet int
}

func New(maxPerWallet int) *History {
	if maxPerWallet <= 0 {
		maxPerWallet = 400
	}
	return &History{
		Wallets:      make(map[string]*Record),
		maxPerWallet: maxPerWallet,
	}
}

// Restore rebuilds a History around a persisted wallet map.
func Restore(wallets map[string]*Record, maxPerWallet int) *History {
	h := New(maxPerWallet)
	if wallets != nil {
		h.Wallets = wallets
	}
	return h
}

// Add appends the trade if its notional meets the qualifying threshold at
// call time. Sub-threshold trades leave the store untouched.
func (h *History) Add(trade domain.Trade, notional, minNotional float64) {
	if notional < minNotional {
		return
	}

	w := h.Wallets[trade.ProxyWallet]
	if w == nil {
		w = &Record{}
		h.Wallets[trade.ProxyWallet] = w
	}

	if w.FirstSeenTS == 0 {
		w.FirstSeenTS = trade.Timestamp
	}
	w.LastSeenTS = trade.Timestamp

	w.Events = append(w.Events, Entry{
		TS:          trade.Timestamp,
		ConditionID: trade.ConditionID,
		Notional:    notional,
	})

	if trade.ConditionID != "" && !contains(w.Markets, trade.ConditionID) {
		w.Markets = append(w.Markets, trade.ConditionID)
	}

	// Keep per-wallet state bounded: the 7d horizon plus a hard cap. The
	// heuristics only look back HistoryWindow, so this never changes their
	// answers.
	cutoff := trade.Timestamp - int64(HistoryWindow/time.Second)
	kept := w.Events[:0]
	for _, e := range w.Events {
		if e.TS >= cutoff {
			kept = append(kept, e)
		}
	}
	if len(kept) > h.maxPerWallet {
		kept = kept[len(kept)-h.maxPerWallet:]
	}
	w.Events = kept
}

// Stats reports retained totals and 7d counts for the wallet as of now.
// Unknown wallets report zeros.
func (h *History) Stats(wallet string, now time.Time) domain.WalletStats {
	stats := domain.WalletStats{ProxyWallet: wallet}

	w := h.Wallets[wallet]
	if w == nil {
		return stats
	}

	stats.FirstSeenTS = w.FirstSeenTS
	stats.TradesTotal = len(w.Events)
	stats.UniqueMarketsTotal = len(w.Markets)

	cutoff := now.Unix() - int64(HistoryWindow/time.Second)
	markets7d := make(map[string]struct{})
	var notionalSum float64
	for _, e := range w.Events {
		if e.TS < cutoff {
			continue
		}
		stats.Trades7d++
		notionalSum += e.Notional
		if e.ConditionID != "" {
			markets7d[e.ConditionID] = struct{}{}
		}
	}
	stats.UniqueMarkets7d = len(markets7d)
	if stats.Trades7d > 0 {
		stats.AvgNotional7d = notionalSum / float64(stats.Trades7d)
	}

	return stats
}

// Prune evicts wallets idle longer than keep, except those in keepWallets
// (wallets still referenced by the public feed).
func (h *History) Prune(now time.Time, keep time.Duration, keepWallets map[string]struct{}) {
	cutoff := now.Unix() - int64(keep/time.Second)
	for wallet, w := range h.Wallets {
		if _, ok := keepWallets[wallet]; ok {
			continue
		}
		last := w.LastSeenTS
		if last == 0 && len(w.Events) > 0 {
			last = w.Events[len(w.Events)-1].TS
		}
		if last < cutoff {
			delete(h.Wallets, wallet)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
