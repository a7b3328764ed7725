// Package archive keeps an append-only log of every published alert,
// partitioned by UTC month, independent of the pruning the state store and
// public feed perform.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/domain"
)

type Writer struct {
	log zerolog.Logger
	dir string
}

func NewWriter(log zerolog.Logger, dir string) *Writer {
	return &Writer{log: log, dir: dir}
}

// Append writes one line per alert to the partition matching the alert's
// UTC month. Partitions are created on first write and only ever appended;
// failure here must not block the feed, so callers treat the error as
// non-fatal.
func (w *Writer) Append(alerts []domain.PublishedAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	batches := make(map[string][]domain.PublishedAlert)
	for _, a := range alerts {
		ts := a.Timestamp
		if ts <= 0 {
			ts = a.PublishedAt
		}
		batches[w.partition(ts)] = append(batches[w.partition(ts)], a)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	for path, batch := range batches {
		if err := appendLines(path, batch); err != nil {
			return fmt.Errorf("archive append %s: %w", path, err)
		}
		w.log.Debug().Str("partition", path).Int("alerts", len(batch)).Msg("archived alerts")
	}
	return nil
}

func (w *Writer) partition(ts int64) string {
	month := time.Unix(ts, 0).UTC().Format("2006-01")
	return filepath.Join(w.dir, fmt.Sprintf("alerts-%s.jsonl", month))
}

func appendLines(path string, alerts []domain.PublishedAlert) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, a := range alerts {
		if err := enc.Encode(a); err != nil {
			return err
		}
	}
	return nil
}
