package delivery

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/eventbus"
	"jobkernel/internal/job"
)

// Enqueuer accepts deliveries without blocking.
type Enqueuer interface {
	Enqueue(d *Delivery) error
}

// Subscriptions is the event source webhooks attach to.
type Subscriptions interface {
	Subscribe(sub eventbus.Subscriber[job.Event]) error
	Unsubscribe(sub eventbus.Subscriber[job.Event]) error
}

// Webhook is an event bus subscriber that forwards every job event to a URL.
type Webhook struct {
	ID  string `json:"id"`
	URL string `json:"url"`

	key     string
	builder *job.EventBuilder
	queue   Enqueuer
}

// Deliver implements eventbus.Subscriber. It only enqueues; the HTTP request
// happens on a queue worker.
func (w *Webhook) Deliver(e job.Event) {
	// Enqueue failures are counted and logged by the queue.
	_ = w.queue.Enqueue(&Delivery{
		Payload:     w.builder.Build(e),
		Destination: w.URL,
		SigningKey:  w.key,
	})
}

// Registry tracks webhook subscriptions by id.
type Registry struct {
	mu       sync.RWMutex
	webhooks map[string]*Webhook

	source  Subscriptions
	queue   Enqueuer
	builder *job.EventBuilder
	logger  *slog.Logger
}

// NewRegistry creates a registry whose webhooks subscribe to source and
// deliver through queue.
func NewRegistry(source Subscriptions, queue Enqueuer, builder *job.EventBuilder) *Registry {
	return &Registry{
		webhooks: make(map[string]*Webhook),
		source:   source,
		queue:    queue,
		builder:  builder,
		logger:   slog.With("component", "webhooks"),
	}
}

// Add validates rawURL and subscribes a new webhook. Events published before
// Add returns are not delivered to it.
func (r *Registry) Add(ctx context.Context, rawURL, signingKey string) (*Webhook, error) {
	if rawURL == "" {
		return nil, apperrors.Validation("url", "webhook URL is required")
	}
	if err := job.ValidateURL(rawURL); err != nil {
		return nil, apperrors.Validation("url", "invalid webhook URL: "+err.Error())
	}

	w := &Webhook{
		ID:      uuid.NewString(),
		URL:     rawURL,
		key:     signingKey,
		builder: r.builder,
		queue:   r.queue,
	}
	if err := r.source.Subscribe(w); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.webhooks[w.ID] = w
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Webhook subscribed", "subscription", w.ID, "destination", extractHost(rawURL))
	return w, nil
}

// Remove unsubscribes the webhook with id.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	w, ok := r.webhooks[id]
	delete(r.webhooks, id)
	r.mu.Unlock()

	if !ok {
		return apperrors.NotFound("subscription", id)
	}
	if err := r.source.Unsubscribe(w); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Webhook unsubscribed", "subscription", id)
	return nil
}

// List returns the registered webhooks ordered by id.
func (r *Registry) List() []*Webhook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Webhook, 0, len(r.webhooks))
	for _, w := range r.webhooks {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b *Webhook) int { return strings.Compare(a.ID, b.ID) })
	return out
}
