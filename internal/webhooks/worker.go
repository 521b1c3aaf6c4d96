package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ecoroute/internal/metrics"
)

type Worker struct {
	Queue       *Queue
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	log         *zap.Logger
	now         func() time.Time
}

func NewWorker(q *Queue, secret string, maxAttempts int, log *zap.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		Queue:       q,
		Secret:      secret,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		log:         log,
		now:         time.Now,
	}
}

// Run delivers due webhooks every Interval until ctx ends.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce attempts every due delivery and returns how many succeeded.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	delivered := 0
	for _, d := range w.Queue.Due(w.now(), 50) {
		if w.attempt(ctx, &d) {
			delivered++
			continue
		}
		d.Attempts++
		if d.Attempts >= w.MaxAttempts {
			w.log.Warn("webhook delivery failed permanently",
				zap.String("event_type", d.EventType), zap.String("url", d.URL),
				zap.Int("attempts", d.Attempts), zap.String("error", d.LastError))
			metrics.WebhookDeliveries.WithLabelValues(d.EventType, "failed").Inc()
			w.Queue.DeadLetter(d)
			continue
		}
		d.NextAttemptAt = w.now().Add(nextBackoff(d.Attempts))
		w.Queue.Enqueue(d)
	}
	return delivered
}

func (w *Worker) attempt(ctx context.Context, d *Delivery) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Payload))
	if err != nil {
		d.LastError = err.Error()
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.EventType)
	if w.Secret != "" {
		req.Header.Set("X-Signature", Sign(w.Secret, d.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := float64(time.Since(start).Milliseconds())
	status := "retry"
	defer func() {
		metrics.WebhookLatency.WithLabelValues(d.EventType, status).Observe(latency)
	}()
	if err != nil {
		d.LastError = err.Error()
		d.ResponseCode = 0
		metrics.WebhookDeliveries.WithLabelValues(d.EventType, status).Inc()
		return false
	}
	_ = resp.Body.Close()
	d.ResponseCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.LastError = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		metrics.WebhookDeliveries.WithLabelValues(d.EventType, status).Inc()
		return false
	}
	status = "delivered"
	metrics.WebhookDeliveries.WithLabelValues(d.EventType, status).Inc()
	return true
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 12 {
		attempts = 12
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
