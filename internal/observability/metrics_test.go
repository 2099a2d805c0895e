package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"jobkernel/internal/delivery"
	"jobkernel/internal/dispatcher"
	"jobkernel/internal/eventbus"
	"jobkernel/internal/facade"
	"jobkernel/internal/jobstore"
)

// Metrics must plug into every component.
var (
	_ eventbus.MetricsRecorder   = (*Metrics)(nil)
	_ jobstore.MetricsRecorder   = (*Metrics)(nil)
	_ dispatcher.MetricsRecorder = (*Metrics)(nil)
	_ facade.MetricsRecorder     = (*Metrics)(nil)
	_ delivery.MetricsRecorder   = (*Metrics)(nil)
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	metrics, handler, err := NewMetrics(context.Background())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	if metrics == nil || handler == nil {
		t.Fatal("expected metrics and handler")
	}
}

func TestMetrics_Exported(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	m.RecordHTTPRequest(ctx, "POST", "/v1/jobs", 201, 0.01)
	m.RecordHTTPRequest(ctx, "GET", "", 404, 0.001)
	m.RecordJobCreated(ctx)
	m.RecordStorePersist(ctx, false, 0.002)
	m.RecordBusPublished(ctx, "jobs", 3)
	m.RecordBusSubscribers(ctx, "jobs", 3)
	m.RecordCommand(ctx, "Ping", true, 0.001)
	m.RecordCommandsInFlight(ctx, 1)
	m.RecordFacadeTransition(ctx, "Ping", "completed")
	m.RecordDeliveryDelivered(ctx, 0.2)
	m.RecordDeliveryFailed(ctx)
	m.RecordDeliveryDropped(ctx)
	m.RecordDeliveryRequeued(ctx)
	m.RecordDeliveryQueueSize(ctx, 7)
	m.RecordBreakerTransition(ctx, "open")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{
		"http_requests_total",
		"jobs_created",
		"jobstore_persist_errors",
		"eventbus_deliveries",
		"dispatcher_command_duration_seconds",
		"facade_transitions",
		"delivery_queue_size",
		"delivery_breaker_transitions",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}

func TestStatusAttr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{404, "4xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		if got := statusAttr(tt.code).Value.AsString(); got != tt.want {
			t.Errorf("statusAttr(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestRouteAttr(t *testing.T) {
	t.Parallel()
	if got := routeAttr("").Value.AsString(); got != "unmatched" {
		t.Errorf("routeAttr(\"\") = %q", got)
	}
	if got := routeAttr("/v1/jobs/{jobId}").Value.AsString(); got != "/v1/jobs/{jobId}" {
		t.Errorf("route pattern altered: %q", got)
	}
}
