package messaging

import (
	"context"
)

// Broker defines the interface for message brokers.
//
// Subscribe delivers raw payloads on the returned channel. The channel
// is closed when the subscription is lost (context cancelled or
// transport failure); callers that need a live subscription must call
// Subscribe again. Delivery is best-effort: no ordering and no
// exactly-once guarantee.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
