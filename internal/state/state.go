// Package state persists the watcher/publisher snapshot: wallet history,
// window samples, cooldown timestamps, daily counters, and seen trade ids.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/domain"
	"pmwatch/internal/wallets"
	"pmwatch/internal/window"
)

// State is the single JSON document read at process start and written
// atomically at process end. Loaded from a missing or corrupt file it is
// simply empty, never an error.
type State struct {
	UpdatedAt    int64                      `json:"updated_at"`
	Wallets      map[string]*wallets.Record `json:"wallets,omitempty"`
	MarketEvents map[string][]window.Sample `json:"market_events,omitempty"`
	Alerts       map[string]int64           `json:"alerts,omitempty"`       // dedupe key -> last published ts
	DailyAlerts  map[string]int             `json:"daily_alerts,omitempty"` // UTC day -> published count
	SeenTradeIDs []string                   `json:"seen_trade_ids,omitempty"`
	Markets      map[string]*domain.Market  `json:"markets,omitempty"`

	seen map[string]struct{}
}

func empty() *State {
	return &State{
		Wallets:      make(map[string]*wallets.Record),
		MarketEvents: make(map[string][]window.Sample),
		Alerts:       make(map[string]int64),
		DailyAlerts:  make(map[string]int),
		Markets:      make(map[string]*domain.Market),
		seen:         make(map[string]struct{}),
	}
}

// Load reads the state document. Any read or parse failure yields empty
// state with a warning; a fresh start must never be fatal.
func Load(path string, log zerolog.Logger) *State {
	st := empty()

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("state unreadable, starting empty")
		}
		return st
	}

	if err := json.Unmarshal(b, st); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("state corrupt, starting empty")
		return empty()
	}

	if st.Wallets == nil {
		st.Wallets = make(map[string]*wallets.Record)
	}
	if st.MarketEvents == nil {
		st.MarketEvents = make(map[string][]window.Sample)
	}
	if st.Alerts == nil {
		st.Alerts = make(map[string]int64)
	}
	if st.DailyAlerts == nil {
		st.DailyAlerts = make(map[string]int)
	}
	if st.Markets == nil {
		st.Markets = make(map[string]*domain.Market)
	}
	st.seen = make(map[string]struct{}, len(st.SeenTradeIDs))
	for _, id := range st.SeenTradeIDs {
		st.seen[id] = struct{}{}
	}

	return st
}

// Save serializes fully to a temp file then renames over the previous one,
// so a crash mid-write never corrupts existing state.
func (s *State) Save(path string) error {
	s.UpdatedAt = time.Now().UTC().Unix()

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	b = append(b, '\n')

	return AtomicWriteFile(path, b)
}

// AtomicWriteFile writes content fully to a temp file, then renames it over
// path. Parent directories are created as needed.
func AtomicWriteFile(path string, b []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", path, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// LastAlert returns the last publication time for a dedupe key.
func (s *State) LastAlert(key string) (int64, bool) {
	ts, ok := s.Alerts[key]
	return ts, ok
}

// MarkAlert records a publication time for a dedupe key.
func (s *State) MarkAlert(key string, ts int64) {
	s.Alerts[key] = ts
}

// DailyCount returns published alerts so far for a UTC day key.
func (s *State) DailyCount(day string) int {
	return s.DailyAlerts[day]
}

func (s *State) IncrDaily(day string) {
	s.DailyAlerts[day]++
}

// HasSeen reports whether a trade id was already observed.
func (s *State) HasSeen(tradeID string) bool {
	_, ok := s.seen[tradeID]
	return ok
}

// AddSeen records a trade id, keeping at most max ids (oldest dropped).
func (s *State) AddSeen(tradeID string, max int) {
	if s.HasSeen(tradeID) {
		return
	}
	s.SeenTradeIDs = append(s.SeenTradeIDs, tradeID)
	s.seen[tradeID] = struct{}{}
	if max > 0 && len(s.SeenTradeIDs) > max {
		drop := s.SeenTradeIDs[:len(s.SeenTradeIDs)-max]
		for _, id := range drop {
			delete(s.seen, id)
		}
		s.SeenTradeIDs = append([]string(nil), s.SeenTradeIDs[len(s.SeenTradeIDs)-max:]...)
	}
}

// Market returns the cached market metadata, if any.
func (s *State) Market(conditionID string) *domain.Market {
	return s.Markets[conditionID]
}

func (s *State) PutMarket(m *domain.Market) {
	if m != nil && m.ConditionID != "" {
		s.Markets[m.ConditionID] = m
	}
}

// Prune drops cooldown keys and daily counters older than keep, and market
// metadata for markets no longer referenced.
func (s *State) Prune(now time.Time, keep time.Duration, keepMarkets map[string]struct{}) {
	cutoff := now.Unix() - int64(keep/time.Second)
	for key, ts := range s.Alerts {
		if ts < cutoff {
			delete(s.Alerts, key)
		}
	}

	dayCutoff := now.UTC().AddDate(0, 0, -2).Format("2006-01-02")
	for day := range s.DailyAlerts {
		if day < dayCutoff {
			delete(s.DailyAlerts, day)
		}
	}

	for id := range s.Markets {
		if _, ok := keepMarkets[id]; !ok {
			delete(s.Markets, id)
		}
	}
}
