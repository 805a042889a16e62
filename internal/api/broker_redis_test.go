package api

import (
	"encoding/json"
	"testing"

	redis "github.com/redis/go-redis/v9"

	"marketsync/internal/model"
)

func redisMessage(t *testing.T, evt model.OrderEvent) *redis.Message {
	t.Helper()
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	return &redis.Message{Payload: string(data)}
}

func TestForwardDeliversAndClosesOnce(t *testing.T) {
	msgs := make(chan *redis.Message, 2)
	msgs <- redisMessage(t, model.OrderEvent{ExternalNumber: "YM-1", Transition: model.TransitionReserve})
	msgs <- &redis.Message{Payload: "not json"} // skipped, not fatal
	close(msgs)

	ch := make(chan model.OrderEvent, 4)
	forward(msgs, ch)

	evt, ok := <-ch
	if !ok || evt.ExternalNumber != "YM-1" || evt.Transition != model.TransitionReserve {
		t.Fatalf("got %+v ok=%v", evt, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after pubsub ended")
	}
}

func TestForwardDropsWhenSubscriberIsFull(t *testing.T) {
	msgs := make(chan *redis.Message, 5)
	for i := 0; i < 5; i++ {
		msgs <- redisMessage(t, model.OrderEvent{ExternalNumber: "YM-1"})
	}
	close(msgs)

	// Nobody drains; forward must finish anyway by dropping past capacity.
	ch := make(chan model.OrderEvent, 1)
	forward(msgs, ch)

	if _, ok := <-ch; !ok {
		t.Fatal("buffered event lost")
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed")
	}
}

func TestRedisUnsubscribeDoesNotCloseChannel(t *testing.T) {
	// The forwarding goroutine owns the close; Unsubscribe only tears down
	// the pubsub. An unknown channel is a no-op either way.
	b := &RedisBroker{subs: map[chan model.OrderEvent]*redis.PubSub{}}
	ch := make(chan model.OrderEvent, 1)
	b.Unsubscribe("YM-1", ch)

	select {
	case _, ok := <-ch:
		t.Fatalf("channel touched by Unsubscribe: ok=%v", ok)
	default:
	}
	// ch stays writable: no send-on-closed panic is possible here.
	ch <- model.OrderEvent{ExternalNumber: "YM-1"}
}
