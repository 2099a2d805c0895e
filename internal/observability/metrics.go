// Package observability provides the kernel's OpenTelemetry metrics,
// exported in Prometheus format.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics. It satisfies the MetricsRecorder
// interface of every component.
type Metrics struct {
	meter metric.Meter

	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	JobsCreated     metric.Int64Counter
	StorePersist    metric.Float64Histogram
	StorePersistErr metric.Int64Counter

	BusPublished   metric.Int64Counter
	BusDeliveries  metric.Int64Counter
	BusSubscribers metric.Int64Gauge

	CommandDuration metric.Float64Histogram
	CommandFailures metric.Int64Counter
	CommandsActive  metric.Int64UpDownCounter

	FacadeTransitions metric.Int64Counter

	DeliveryDuration  metric.Float64Histogram
	DeliveryDelivered metric.Int64Counter
	DeliveryFailed    metric.Int64Counter
	DeliveryDropped   metric.Int64Counter
	DeliveryRequeued  metric.Int64Counter
	DeliveryQueueSize metric.Int64Gauge
	BreakerChanges    metric.Int64Counter
}

// instruments creates instruments and keeps the first error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *instruments) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64Gauge {
	g, err := b.meter.Int64Gauge(name, metric.WithDescription(desc))
	b.keep(err)
	return g
}

func (b *instruments) seconds(name, desc string, buckets ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	b.keep(err)
	return h
}

func (b *instruments) keep(err error) {
	if b.err == nil {
		b.err = err
	}
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("jobkernel")
	b := &instruments{meter: meter}
	fast := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	m := &Metrics{
		meter: meter,

		HTTPRequestDuration: b.seconds("http_request_duration_seconds", "HTTP request latency in seconds", fast...),
		HTTPRequestsTotal:   b.counter("http_requests_total", "Total number of HTTP requests"),
		HTTPErrorsTotal:     b.counter("http_errors_total", "Total number of HTTP errors (4xx and 5xx)"),

		JobsCreated:     b.counter("jobs_created_total", "Total number of jobs created"),
		StorePersist:    b.seconds("jobstore_persist_duration_seconds", "Snapshot save latency in seconds", fast...),
		StorePersistErr: b.counter("jobstore_persist_errors_total", "Snapshot saves that failed and were rolled back"),

		BusPublished:   b.counter("eventbus_published_total", "Events published on a bus"),
		BusDeliveries:  b.counter("eventbus_deliveries_total", "Events handed to subscribers"),
		BusSubscribers: b.gauge("eventbus_subscribers", "Current subscribers per bus"),

		CommandDuration: b.seconds("dispatcher_command_duration_seconds", "Engine command latency in seconds",
			0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120),
		CommandFailures: b.counter("dispatcher_command_failures_total", "Commands that ended in a failure reply"),
		CommandsActive:  b.upDown("dispatcher_commands_active", "Commands currently executing (saturation)"),

		FacadeTransitions: b.counter("facade_transitions_total", "Request state transitions in the facade"),

		DeliveryDuration:  b.seconds("delivery_duration_seconds", "Webhook delivery latency in seconds", fast...),
		DeliveryDelivered: b.counter("delivery_delivered_total", "Webhook events delivered"),
		DeliveryFailed:    b.counter("delivery_failed_total", "Webhook events failed after retries"),
		DeliveryDropped:   b.counter("delivery_dropped_total", "Webhook events dropped (buffer full or max requeues)"),
		DeliveryRequeued:  b.counter("delivery_requeued_total", "Webhook events requeued behind an open circuit"),
		DeliveryQueueSize: b.gauge("delivery_queue_size", "Webhook events waiting in the queue (saturation)"),
		BreakerChanges:    b.counter("delivery_breaker_transitions_total", "Circuit breaker state changes"),
	}
	if b.err != nil {
		return nil, nil, b.err
	}
	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics. route is the matched route
// pattern, not the raw path.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(methodAttr(method), routeAttr(route), statusAttr(statusCode))

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobCreated records a committed job creation.
func (m *Metrics) RecordJobCreated(ctx context.Context) {
	m.JobsCreated.Add(ctx, 1)
}

// RecordStorePersist records a snapshot save.
func (m *Metrics) RecordStorePersist(ctx context.Context, success bool, durationSeconds float64) {
	m.StorePersist.Record(ctx, durationSeconds, metric.WithAttributes(successAttr(success)))
	if !success {
		m.StorePersistErr.Add(ctx, 1)
	}
}

// RecordBusPublished records one publish and its fan-out.
func (m *Metrics) RecordBusPublished(ctx context.Context, bus string, deliveries int) {
	attrs := metric.WithAttributes(busAttr(bus))
	m.BusPublished.Add(ctx, 1, attrs)
	m.BusDeliveries.Add(ctx, int64(deliveries), attrs)
}

// RecordBusSubscribers records the membership size of a bus.
func (m *Metrics) RecordBusSubscribers(ctx context.Context, bus string, members int64) {
	m.BusSubscribers.Record(ctx, members, metric.WithAttributes(busAttr(bus)))
}

// RecordCommand records a finished dispatcher command.
func (m *Metrics) RecordCommand(ctx context.Context, command string, success bool, durationSeconds float64) {
	m.CommandDuration.Record(ctx, durationSeconds, metric.WithAttributes(commandAttr(command), successAttr(success)))
	if !success {
		m.CommandFailures.Add(ctx, 1, metric.WithAttributes(commandAttr(command)))
	}
}

// RecordCommandsInFlight adjusts the number of executing commands.
func (m *Metrics) RecordCommandsInFlight(ctx context.Context, delta int64) {
	m.CommandsActive.Add(ctx, delta)
}

// RecordFacadeTransition records a request entering state.
func (m *Metrics) RecordFacadeTransition(ctx context.Context, request, state string) {
	m.FacadeTransitions.Add(ctx, 1, metric.WithAttributes(commandAttr(request), stateAttr(state)))
}

// RecordDeliveryDelivered records a successful webhook delivery.
func (m *Metrics) RecordDeliveryDelivered(ctx context.Context, durationSeconds float64) {
	m.DeliveryDelivered.Add(ctx, 1)
	m.DeliveryDuration.Record(ctx, durationSeconds)
}

// RecordDeliveryFailed records a webhook delivery that exhausted its retries.
func (m *Metrics) RecordDeliveryFailed(ctx context.Context) {
	m.DeliveryFailed.Add(ctx, 1)
}

// RecordDeliveryDropped records a dropped webhook event.
func (m *Metrics) RecordDeliveryDropped(ctx context.Context) {
	m.DeliveryDropped.Add(ctx, 1)
}

// RecordDeliveryRequeued records a webhook event parked behind an open circuit.
func (m *Metrics) RecordDeliveryRequeued(ctx context.Context) {
	m.DeliveryRequeued.Add(ctx, 1)
}

// RecordDeliveryQueueSize records the current queue depth.
func (m *Metrics) RecordDeliveryQueueSize(ctx context.Context, size int64) {
	m.DeliveryQueueSize.Record(ctx, size)
}

// RecordBreakerTransition records a circuit breaker entering state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, to string) {
	m.BreakerChanges.Add(ctx, 1, metric.WithAttributes(stateAttr(to)))
}
