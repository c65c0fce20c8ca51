package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// EventBroker fans solve events out to stream subscribers.
type EventBroker interface {
	Subscribe(solveID string) chan SSEEvent
	Unsubscribe(solveID string, ch chan SSEEvent)
	Publish(solveID string, evt SSEEvent)
}

// RedisBroker implements EventBroker over Redis Pub/Sub, for multi-replica
// deployments where the solve may run on a different instance than the
// stream connection.
type RedisBroker struct {
	rdb *redis.Client

	mu  sync.Mutex
	sub map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt), sub: map[chan SSEEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(solveID string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(solveID))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.sub[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt SSEEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying PubSub; the reader goroutine then drains
// and closes the channel itself, so the channel is closed exactly once.
func (b *RedisBroker) Unsubscribe(solveID string, ch chan SSEEvent) {
	b.mu.Lock()
	ps := b.sub[ch]
	delete(b.sub, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(solveID string, evt SSEEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(solveID), data).Err()
}

func (b *RedisBroker) chanName(solveID string) string { return "solve:" + solveID }
