package broker

import (
	"context"
	"errors"
	"time"
)

// ErrNoMessage is returned by Subscription.Receive when nothing arrived
// within the timeout. Callers keep polling; the stream is not over.
var ErrNoMessage = errors.New("broker: no message")

// ErrNotFound is returned by KV.Get on a cache miss.
var ErrNotFound = errors.New("broker: key not found")

// JobQueue is a named queue with push and indefinite blocking pop.
// One consumer receives each payload; delivery is at-most-once.
type JobQueue interface {
	Enqueue(ctx context.Context, payload []byte) error
	Dequeue(ctx context.Context) ([]byte, error)
	Close() error
}

// ResultBus is a publish/subscribe fabric keyed by channel name.
// Channel history is not retained: a late subscriber misses everything,
// so subscribers must be confirmed before the producer starts.
type ResultBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

type Subscription interface {
	// Receive blocks up to timeout for the next payload and returns
	// ErrNoMessage if none arrived.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// KV is a TTL'd key/value store used by the context cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
