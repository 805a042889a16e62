package api

import (
	"sync"

	"marketsync/internal/model"
)

// TopicAll receives every order event regardless of external number.
const TopicAll = "*"

// EventBroker fans order transition events out to stream subscribers.
type EventBroker interface {
	Subscribe(topic string) chan model.OrderEvent
	Unsubscribe(topic string, ch chan model.OrderEvent)
	Publish(topic string, evt model.OrderEvent)
}

// Broker is the in-process implementation used when REDIS_URL is unset.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.OrderEvent]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.OrderEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan model.OrderEvent {
	ch := make(chan model.OrderEvent, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan model.OrderEvent]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan model.OrderEvent) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(topic string, evt model.OrderEvent) {
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
