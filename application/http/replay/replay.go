// Package replay queues requests for another process, or a later run, to
// dispatch. Requests travel in their RPC encoding, so only the attributes
// of [rpc.Keys] survive the trip.
package replay

import (
	"context"
	"sync"
	"time"

	"scan-http/application/http/message"
	"scan-http/application/http/rpc"
	"scan-http/config"
	"scan-http/lib/ds/queue"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ErrEmpty = errors.New("replay queue is empty")

type Queue interface {
	Push(ctx context.Context, req *message.Request) error
	// Pop returns the oldest request, or ErrEmpty.
	Pop(ctx context.Context) (*message.Request, error)
	Len(ctx context.Context) (int64, error)
}

// New opens the queue cfg selects. A Redis backend is pinged before it is
// returned.
func New(ctx context.Context, cfg config.Queue) (Queue, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryQueue(), nil
	case "redis":
	default:
		return nil, errors.Errorf("unknown queue backend %q", cfg.Backend)
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", cfg.RedisAddr)
	}

	return NewRedisQueue(client, cfg.Key), nil
}

type MemoryQueue struct {
	mu    sync.Mutex
	queue queue.Queue[[]byte]
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{queue: queue.NewNaive[[]byte](0)}
}

func (q *MemoryQueue) Push(_ context.Context, req *message.Request) error {
	payload, err := rpc.Encode(req)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.queue.Enqueue(payload)
	return nil
}

func (q *MemoryQueue) Pop(_ context.Context) (*message.Request, error) {
	q.mu.Lock()
	payload, err := q.queue.Dequeue()
	q.mu.Unlock()

	if errors.Is(err, queue.ErrQueueEmpty) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}

	return decode(payload)
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return int64(q.queue.Len()), nil
}

// RedisQueue keeps requests in a Redis list: pushed on the left, popped
// from the right.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, req *message.Request) error {
	payload, err := rpc.Encode(req)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return errors.Wrapf(err, "pushing to %q", q.key)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*message.Request, error) {
	payload, err := q.client.RPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, errors.Wrapf(err, "popping from %q", q.key)
	}

	return decode(payload)
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "measuring %q", q.key)
	}
	return n, nil
}

func (q *RedisQueue) Close() error { return q.client.Close() }

func decode(payload []byte) (*message.Request, error) {
	req, err := rpc.Decode(payload)
	if err != nil {
		return nil, errors.Wrap(err, "decoding request")
	}
	return req, nil
}
