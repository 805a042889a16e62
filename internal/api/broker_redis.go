package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"marketsync/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so event streams
// work when more than one instance receives webhooks behind a balancer.
// Each subscription retains its *redis.PubSub; Unsubscribe closes that, the
// forwarding goroutine drains out, and only it ever closes the event
// channel. A send on the channel can therefore never race its close.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan model.OrderEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{
		rdb:  redis.NewClient(opt),
		subs: map[chan model.OrderEvent]*redis.PubSub{},
	}, nil
}

func (b *RedisBroker) Subscribe(topic string) chan model.OrderEvent {
	ch := make(chan model.OrderEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(topic))
	// initial consume to ensure the subscription is live
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go forward(ps.Channel(), ch)
	return ch
}

// forward copies pubsub messages onto ch, dropping when the subscriber is
// slow. It is the sole closer of ch and exits when Unsubscribe closes the
// pubsub (which ends msgs).
func forward(msgs <-chan *redis.Message, ch chan model.OrderEvent) {
	defer close(ch)
	for msg := range msgs {
		var evt model.OrderEvent
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

func (b *RedisBroker) Unsubscribe(_ string, ch chan model.OrderEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(topic string, evt model.OrderEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(topic), data).Err()
}

func (b *RedisBroker) chanName(topic string) string { return "orders:" + topic }
