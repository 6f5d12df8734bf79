package broker

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs all three broker roles: the job queue (RPUSH/BLPOP on a
// list), the result bus (pub/sub) and the context cache KV (SET with
// expiry). A single client is shared across requests; initialize at
// process start, close at shutdown.
type Redis struct {
	rdb   *redis.Client
	queue string
}

func NewRedis(addr, password string, db int, queue string) *Redis {
	return &Redis{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		queue: queue,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

// --- JobQueue ---

func (r *Redis) Enqueue(ctx context.Context, payload []byte) error {
	return r.rdb.RPush(ctx, r.queue, payload).Err()
}

// Dequeue blocks until the next job arrives or ctx is canceled.
func (r *Redis) Dequeue(ctx context.Context) ([]byte, error) {
	vals, err := r.rdb.BLPop(ctx, 0, r.queue).Result()
	if err != nil {
		return nil, err
	}
	// BLPOP returns [key, value].
	return []byte(vals[1]), nil
}

// --- ResultBus ---

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe returns only after the broker confirmed the subscription,
// so a job enqueued afterwards cannot publish into the void.
func (r *Redis) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return &redisSubscription{ps: ps}, nil
}

type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNoMessage
		}
		raw, err := s.ps.ReceiveTimeout(ctx, remaining)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return nil, ErrNoMessage
			}
			return nil, err
		}
		msg, ok := raw.(*redis.Message)
		if !ok {
			// subscription acks, pongs
			continue
		}
		return []byte(msg.Payload), nil
	}
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}

// --- KV ---

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

func (r *Redis) SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}
