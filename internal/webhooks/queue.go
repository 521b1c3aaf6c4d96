package webhooks

import (
	"sync"
	"time"
)

// Delivery is one event addressed to one endpoint.
type Delivery struct {
	ID            string
	URL           string
	EventType     string
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
}

// maxDeadLetters bounds the retained failures.
const maxDeadLetters = 100

// Queue holds pending deliveries in memory. Deliveries do not survive a
// restart.
type Queue struct {
	mu      sync.Mutex
	pending []Delivery
	dead    []Delivery
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Enqueue(d Delivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
}

// Due removes and returns up to limit deliveries whose next attempt is at or
// before now.
func (q *Queue) Due(now time.Time, limit int) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Delivery
	kept := q.pending[:0]
	for _, d := range q.pending {
		if len(out) < limit && !d.NextAttemptAt.After(now) {
			out = append(out, d)
			continue
		}
		kept = append(kept, d)
	}
	q.pending = kept
	return out
}

// DeadLetter records a delivery that exhausted its attempts.
func (q *Queue) DeadLetter(d Delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, d)
	if len(q.dead) > maxDeadLetters {
		q.dead = q.dead[len(q.dead)-maxDeadLetters:]
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) DeadLetters() []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Delivery(nil), q.dead...)
}
