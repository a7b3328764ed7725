// Package feed renders the public alert feed: one JSON document
// (most-recent-first) and one newline-delimited stream (append order).
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"

	"pmwatch/internal/domain"
	"pmwatch/internal/state"
)

// Document is the alerts.json payload.
type Document struct {
	GeneratedAt int64                   `json:"generated_at"`
	Alerts      []domain.PublishedAlert `json:"alerts"`
	NewAlerts   int                     `json:"new_alerts"`
}

// Load reads the previous feed so new alerts merge into it. Missing or
// corrupt feeds start empty.
func Load(path string, log zerolog.Logger) []domain.PublishedAlert {
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("feed unreadable, starting empty")
		}
		return nil
	}

	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("feed corrupt, starting empty")
		return nil
	}
	return doc.Alerts
}

// Merge combines the previous feed with newly published alerts: previous
// entries below the notional floor fall out, the result is sorted most
// recent first, and retention caps the total.
func Merge(prev, fresh []domain.PublishedAlert, minNotional float64, maxAlerts int) []domain.PublishedAlert {
	combined := make([]domain.PublishedAlert, 0, len(prev)+len(fresh))
	for _, a := range prev {
		if a.Notional >= minNotional {
			combined = append(combined, a)
		}
	}
	combined = append(combined, fresh...)

	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Timestamp != combined[j].Timestamp {
			return combined[i].Timestamp > combined[j].Timestamp
		}
		return combined[i].ConditionID < combined[j].ConditionID
	})

	if maxAlerts > 0 && len(combined) > maxAlerts {
		combined = combined[:maxAlerts]
	}
	return combined
}

// Write persists both feed formats atomically. alerts are expected most
// recent first; the JSONL stream is emitted oldest first.
func Write(outPath, jsonlPath string, alerts []domain.PublishedAlert, newAlerts int, generatedAt int64) error {
	doc := Document{
		GeneratedAt: generatedAt,
		Alerts:      alerts,
		NewAlerts:   newAlerts,
	}
	if doc.Alerts == nil {
		doc.Alerts = []domain.PublishedAlert{}
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feed: %w", err)
	}
	b = append(b, '\n')
	if err := state.AtomicWriteFile(outPath, b); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}

	ascending := make([]domain.PublishedAlert, len(alerts))
	copy(ascending, alerts)
	sort.SliceStable(ascending, func(i, j int) bool {
		return ascending[i].Timestamp < ascending[j].Timestamp
	})

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, a := range ascending {
		if err := enc.Encode(a); err != nil {
			return fmt.Errorf("marshal feed line: %w", err)
		}
	}
	if err := state.AtomicWriteFile(jsonlPath, buf.Bytes()); err != nil {
		return fmt.Errorf("write feed jsonl: %w", err)
	}
	return nil
}
