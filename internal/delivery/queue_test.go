package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobkernel/internal/testutil"
	"jobkernel/pkg/backoff"
	"jobkernel/pkg/cloudevent"
)

func testConfig() Config {
	return Config{
		BufferSize:      100,
		Workers:         1,
		HTTPTimeout:     5 * time.Second,
		Retry:           backoff.Policy{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond},
		BreakerCooldown: 50 * time.Millisecond,
	}
}

func newDelivery(dest string) *Delivery {
	return &Delivery{
		Payload:     cloudevent.New("jobkernel.job.created", "test", "1", "evt-1", nil),
		Destination: dest,
	}
}

func closeQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestQueue_Enqueue(t *testing.T) {
	t.Parallel()
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	q := NewQueue(testConfig(), nil)
	defer closeQueue(t, q)

	if err := q.Enqueue(newDelivery(server.URL)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	testutil.MustWaitForCount(t, &received, 1, testutil.WithTimeout(5*time.Second))
	testutil.MustWaitFor(t, func() bool { return q.Stats().Delivered == 1 }, testutil.WithTimeout(5*time.Second))
}

func TestQueue_BufferFull(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.BufferSize = 2
	q := NewQueue(cfg, nil)

	var fullErrs int
	for range 6 {
		if err := q.Enqueue(newDelivery(server.URL)); err == ErrBufferFull {
			fullErrs++
		}
	}
	close(release)

	if fullErrs == 0 {
		t.Error("expected some deliveries to be rejected")
	}
	if q.Stats().Dropped != int64(fullErrs) {
		t.Errorf("expected %d dropped, got %d", fullErrs, q.Stats().Dropped)
	}
	closeQueue(t, q)
}

func TestQueue_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	q := NewQueue(testConfig(), nil)
	defer closeQueue(t, q)

	q.Enqueue(newDelivery(server.URL))
	testutil.MustWaitFor(t, func() bool { return q.Stats().Delivered == 1 }, testutil.WithTimeout(5*time.Second))

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
	if q.Stats().RetriesTotal != 2 {
		t.Errorf("expected 2 retries, got %d", q.Stats().RetriesTotal)
	}
}

func TestQueue_NoRetryOn4xx(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	q := NewQueue(testConfig(), nil)
	defer closeQueue(t, q)

	q.Enqueue(newDelivery(server.URL))
	testutil.MustWaitFor(t, func() bool { return q.Stats().Failed == 1 }, testutil.WithTimeout(5*time.Second))

	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestQueue_OpenBreakerRequeues(t *testing.T) {
	t.Parallel()
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRetries = -1
	cfg.BreakerThreshold = 2
	q := NewQueue(cfg, nil)
	defer closeQueue(t, q)

	for range 4 {
		q.Enqueue(newDelivery(server.URL))
	}
	testutil.MustWaitFor(t, func() bool { return q.Stats().Requeued > 0 },
		testutil.WithTimeout(5*time.Second), testutil.WithInterval(5*time.Millisecond))

	healthy.Store(true)
	testutil.MustWaitFor(t, func() bool { return q.Stats().Delivered == 2 },
		testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	stats := q.Stats()
	if stats.Failed != 2 {
		t.Errorf("expected the two deliveries before the breaker opened to fail, got %d", stats.Failed)
	}
	if stats.BreakersOpen != 0 {
		t.Errorf("expected breaker to close after recovery, got %d open", stats.BreakersOpen)
	}
}

func TestQueue_Headers(t *testing.T) {
	t.Parallel()
	var (
		mu      sync.Mutex
		headers http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	q := NewQueue(testConfig(), nil)
	defer closeQueue(t, q)

	d := newDelivery(server.URL)
	d.Payload.CorrelationID = "corr-1"
	d.SigningKey = "secret-key"
	q.Enqueue(d)
	testutil.MustWaitFor(t, func() bool { return q.Stats().Delivered == 1 }, testutil.WithTimeout(5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	if got := headers.Get("Ce-Type"); got != "jobkernel.job.created" {
		t.Errorf("Ce-Type = %q", got)
	}
	if got := headers.Get("Ce-Correlationid"); got != "corr-1" {
		t.Errorf("Ce-Correlationid = %q", got)
	}
	if sig := headers.Get(cloudevent.SignatureHeader); len(sig) < 10 || sig[:7] != "sha256=" {
		t.Errorf("unexpected signature %q", sig)
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	t.Parallel()
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Workers = 2
	q := NewQueue(cfg, nil)
	for range 10 {
		q.Enqueue(newDelivery(server.URL))
	}
	closeQueue(t, q)

	if received.Load() != 10 {
		t.Errorf("expected 10 deliveries, got %d", received.Load())
	}
	if err := q.Enqueue(newDelivery(server.URL)); err == nil {
		t.Error("expected Enqueue to fail after Close")
	}
}

func TestExtractHost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"https://hooks.example.com/path?q=1", "hooks.example.com"},
		{"http://127.0.0.1:8080/x", "127.0.0.1:8080"},
		{"not a url", "not a url"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractHost(tt.in); got != tt.want {
			t.Errorf("extractHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}.withDefaults()
	if cfg.BufferSize != 10000 || cfg.Workers != 10 || cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.BreakerThreshold != 5 || cfg.BreakerCooldown != 30*time.Second || cfg.MaxRequeues != 10 {
		t.Errorf("unexpected breaker defaults: %+v", cfg)
	}
	if cfg.Retry.Initial != 100*time.Millisecond || cfg.MaxRetries != 3 {
		t.Errorf("unexpected retry defaults: %+v", cfg)
	}
	if got := (Config{MaxRetries: -1}).withDefaults().MaxRetries; got != 0 {
		t.Errorf("negative MaxRetries must disable retries, got %d", got)
	}

	kept := Config{Workers: 3, MaxRetries: 1}.withDefaults()
	if kept.Workers != 3 || kept.MaxRetries != 1 {
		t.Errorf("valid values must be preserved: %+v", kept)
	}
}
