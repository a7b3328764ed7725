package pubsub

import "context"

// Broadcaster fans accepted alerts out to subscribers. Delivery is best
// effort: a failed publish is logged by the caller, never fatal to a run.
type Broadcaster interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}
