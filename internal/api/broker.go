package api

import (
	"encoding/json"
	"sync"
)

// Event topics.
const (
	TopicVehicles = "vehicles"
	TopicRoutes   = "routes"
)

// Event is one broadcast message. Data is pre-encoded so every broker
// delivers identical bytes.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newEvent(typ string, data any) Event {
	b, err := json.Marshal(data)
	if err != nil {
		b = []byte("null")
	}
	return Event{Type: typ, Data: b}
}

// EventBroker fans events out to subscribers of a topic. Publish never
// blocks; slow subscribers drop events.
type EventBroker interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
	Close() error
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *Broker) Publish(topic string, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, m := range b.subs {
		for ch := range m {
			close(ch)
		}
		delete(b.subs, topic)
	}
	return nil
}
