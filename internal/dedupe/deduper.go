package dedupe

import "context"

// Deduper answers whether a trade id was already observed. Memory works for
// a single watcher process; redis covers restarts and overlapping runs.
type Deduper interface {
	// Seen marks the id and reports whether it was already present.
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)
}
