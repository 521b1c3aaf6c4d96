package webhooks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Publisher fans events out to every configured endpoint.
type Publisher struct {
	URLs  []string
	Queue *Queue
}

func NewPublisher(urls []string, q *Queue) *Publisher {
	return &Publisher{URLs: urls, Queue: q}
}

// Emit enqueues one delivery per endpoint. It never blocks on the network.
func (p *Publisher) Emit(eventType string, data any) error {
	if p == nil || len(p.URLs) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("webhook %s: %w", eventType, err)
	}
	for _, u := range p.URLs {
		p.Queue.Enqueue(Delivery{ID: uuid.NewString(), URL: u, EventType: eventType, Payload: body})
	}
	return nil
}
