// Package delivery pushes job lifecycle events to webhook subscribers.
// Events are queued in a bounded channel and delivered by a worker pool with
// retries and a circuit breaker per destination host. A full buffer drops
// the event.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"jobkernel/internal/apperrors"
	"jobkernel/pkg/circuitbreaker"
	"jobkernel/pkg/cloudevent"
)

// ErrBufferFull is returned when the queue is full and the event is dropped.
var ErrBufferFull = errors.New("delivery buffer full, event dropped")

// Delivery is one event bound for one destination.
type Delivery struct {
	Payload     *cloudevent.CloudEvent
	Destination string // webhook URL
	SigningKey  string // HMAC key, empty for unsigned
	requeues    int
}

// Stats holds queue statistics.
type Stats struct {
	QueueDepth    int   `json:"queueDepth"`
	Queued        int64 `json:"queued"`
	Delivered     int64 `json:"delivered"`
	Failed        int64 `json:"failed"`
	Dropped       int64 `json:"dropped"`
	Requeued      int64 `json:"requeued"`
	RetriesTotal  int64 `json:"retriesTotal"`
	BreakersTotal int   `json:"breakersTotal"`
	BreakersOpen  int   `json:"breakersOpen"`
}

// MetricsRecorder is an optional interface for recording delivery metrics.
type MetricsRecorder interface {
	RecordDeliveryDelivered(ctx context.Context, durationSeconds float64)
	RecordDeliveryFailed(ctx context.Context)
	RecordDeliveryDropped(ctx context.Context)
	RecordDeliveryRequeued(ctx context.Context)
	RecordDeliveryQueueSize(ctx context.Context, size int64)
	RecordBreakerTransition(ctx context.Context, to string)
}

// Queue is an in-memory webhook delivery queue.
type Queue struct {
	queue    chan *Delivery
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	config   Config
	logger   *slog.Logger
	metrics  MetricsRecorder

	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool

	parkMu  sync.Mutex
	parked  sync.WaitGroup
	closing bool
}

// NewQueue starts a queue and its workers.
func NewQueue(cfg Config, metrics MetricsRecorder) *Queue {
	cfg = cfg.withDefaults()

	q := &Queue{
		queue:    make(chan *Delivery, cfg.BufferSize),
		sender:   cloudevent.NewSender(cfg.HTTPTimeout),
		config:   cfg,
		logger:   slog.With("component", "delivery"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}
	q.breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
		Threshold:     cfg.BreakerThreshold,
		Cooldown:      cfg.BreakerCooldown,
		OnStateChange: q.onBreakerChange,
	})

	q.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go q.worker()
	}
	if metrics != nil {
		go q.reportQueueSize()
	}

	q.logger.Info("Delivery queue started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return q
}

// Enqueue queues d without blocking.
func (q *Queue) Enqueue(d *Delivery) error {
	if q.closed.Load() {
		return apperrors.Unavailable("delivery queue")
	}

	select {
	case q.queue <- d:
		q.queued.Add(1)
		return nil
	default:
		q.drop("Delivery dropped, buffer full", d)
		return ErrBufferFull
	}
}

// Stats returns current queue statistics.
func (q *Queue) Stats() Stats {
	breakerStats := q.breakers.Stats()
	return Stats{
		QueueDepth:    len(q.queue),
		Queued:        q.queued.Load(),
		Delivered:     q.delivered.Load(),
		Failed:        q.failed.Load(),
		Dropped:       q.dropped.Load(),
		Requeued:      q.requeued.Load(),
		RetriesTotal:  q.retriesTotal.Load(),
		BreakersTotal: breakerStats.Total,
		BreakersOpen:  breakerStats.Open,
	}
}

// Close stops accepting deliveries and waits for the workers to drain the
// queue, bounded by ctx. Deliveries parked behind an open breaker are dropped.
func (q *Queue) Close(ctx context.Context) error {
	if q.closed.Swap(true) {
		return nil
	}

	q.logger.Info("Delivery queue shutting down", "queued", len(q.queue))
	q.parkMu.Lock()
	q.closing = true
	q.parkMu.Unlock()
	close(q.shutdown)

	done := make(chan struct{})
	go func() {
		q.parked.Wait()
		q.wg.Wait()
		q.dropRemaining()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Delivery queue shutdown complete",
			"delivered", q.delivered.Load(),
			"failed", q.failed.Load(),
			"dropped", q.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		q.logger.Warn("Delivery queue shutdown timed out", "remaining", len(q.queue))
		return ctx.Err()
	}
}

func (q *Queue) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.shutdown:
			return
		case <-ticker.C:
			q.metrics.RecordDeliveryQueueSize(context.Background(), int64(len(q.queue)))
		}
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.shutdown:
			q.drainQueue()
			return
		case d := <-q.queue:
			q.deliver(d)
		}
	}
}

func (q *Queue) drainQueue() {
	for {
		select {
		case d := <-q.queue:
			q.deliver(d)
		default:
			return
		}
	}
}

func (q *Queue) deliver(d *Delivery) {
	host := extractHost(d.Destination)
	breaker := q.breakers.Get(host)

	if !breaker.Allow() {
		q.requeue(d, host)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := q.sendWithRetry(ctx, d); err != nil {
		breaker.RecordFailure()
		q.failed.Add(1)
		if q.metrics != nil {
			q.metrics.RecordDeliveryFailed(ctx)
		}
		q.logger.Warn("Delivery failed",
			"destination", host,
			"type", d.Payload.Type,
			"correlationId", d.Payload.CorrelationID,
			"error", err,
		)
		return
	}

	breaker.RecordSuccess()
	q.delivered.Add(1)
	if q.metrics != nil {
		q.metrics.RecordDeliveryDelivered(ctx, time.Since(start).Seconds())
	}
}

// requeue parks d for one cooldown period so the breaker can recover.
func (q *Queue) requeue(d *Delivery, host string) {
	if d.requeues >= q.config.MaxRequeues {
		q.drop("Delivery dropped, max requeues reached", d)
		return
	}
	q.parkMu.Lock()
	if q.closing {
		q.parkMu.Unlock()
		q.drop("Delivery dropped, breaker open during shutdown", d)
		return
	}
	q.parked.Add(1)
	q.parkMu.Unlock()

	d.requeues++
	q.requeued.Add(1)
	if q.metrics != nil {
		q.metrics.RecordDeliveryRequeued(context.Background())
	}

	go func() {
		defer q.parked.Done()

		timer := time.NewTimer(q.config.BreakerCooldown)
		defer timer.Stop()
		select {
		case <-q.shutdown:
			q.drop("Delivery dropped, breaker open during shutdown", d)
			return
		case <-timer.C:
		}

		select {
		case q.queue <- d:
			q.logger.Debug("Delivery requeued", "destination", host, "requeues", d.requeues)
		default:
			q.drop("Delivery dropped on requeue, buffer full", d)
		}
	}()
}

// dropRemaining accounts for deliveries requeued after the workers exited.
func (q *Queue) dropRemaining() {
	for {
		select {
		case d := <-q.queue:
			q.drop("Delivery dropped, queue closed", d)
		default:
			return
		}
	}
}

func (q *Queue) sendWithRetry(ctx context.Context, d *Delivery) error {
	var lastErr error
	for attempt := range q.config.MaxRetries + 1 {
		if attempt > 0 {
			q.retriesTotal.Add(1)
			if err := q.config.Retry.Wait(ctx, attempt); err != nil {
				return err
			}
		}

		lastErr = q.sender.Send(ctx, d.Destination, d.Payload, d.SigningKey)
		if lastErr == nil {
			return nil
		}
		if cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (q *Queue) drop(msg string, d *Delivery) {
	q.dropped.Add(1)
	if q.metrics != nil {
		q.metrics.RecordDeliveryDropped(context.Background())
	}
	q.logger.Warn(msg, "destination", extractHost(d.Destination), "type", d.Payload.Type, "requeues", d.requeues)
}

func (q *Queue) onBreakerChange(host string, from, to circuitbreaker.State) {
	q.logger.Info("Circuit breaker changed state", "destination", host, "from", from.String(), "to", to.String())
	if q.metrics != nil {
		q.metrics.RecordBreakerTransition(context.Background(), to.String())
	}
}

// extractHost returns the host of rawURL, used to key circuit breakers.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
