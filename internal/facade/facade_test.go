package facade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/dispatcher"
	"jobkernel/internal/engine"
	"jobkernel/internal/engine/enginetest"
	"jobkernel/internal/testutil"
)

func newFacade(t *testing.T, eng engine.Engine) *Facade {
	t.Helper()
	d := dispatcher.New(eng, dispatcher.Config{CommandTimeout: 5 * time.Second}, nil)
	f := New(d, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.Close(ctx)
		d.Close(ctx)
	})
	return f
}

// countingDispatcher records every dispatch and answers with Pong.
type countingDispatcher struct {
	mu       sync.Mutex
	requests []dispatcher.Request
	err      error
}

func (c *countingDispatcher) Dispatch(ctx context.Context, req dispatcher.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.requests = append(c.requests, req)
	req.ReplyTo <- dispatcher.Pong{Envelope: dispatcher.Envelope{CorrelationID: req.CorrelationID}}
	return nil
}

func (c *countingDispatcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func TestFacade_ContainerLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := enginetest.New(engine.Image{ID: "sha256:abc"})
	f := newFacade(t, fake)

	images, err := f.ListImages(ctx, "c0")
	if err != nil || len(images.Images) != 1 {
		t.Fatalf("ListImages = %+v, %v", images, err)
	}

	created, err := f.CreateContainer(ctx, "c1", CreateContainer{Image: "alpine", Command: []string{"true"}})
	if err != nil {
		t.Fatalf("CreateContainer failed: %v", err)
	}
	if created.CorrelationID != "c1" {
		t.Errorf("correlation not preserved: %q", created.CorrelationID)
	}

	started, err := f.StartContainer(ctx, "c2", StartContainer{ContainerID: created.ContainerID})
	if err != nil || started.AlreadyStarted {
		t.Fatalf("StartContainer = %+v, %v", started, err)
	}
	if _, err := f.ContainerLogs(ctx, "c3", GetContainerLogs{ContainerID: created.ContainerID}); err != nil {
		t.Fatalf("ContainerLogs failed: %v", err)
	}
	if _, err := f.StopContainer(ctx, "c4", StopContainer{ContainerID: created.ContainerID}); err != nil {
		t.Fatalf("StopContainer failed: %v", err)
	}
	if _, err := f.RemoveContainer(ctx, "c5", RemoveContainer{ContainerID: created.ContainerID}); err != nil {
		t.Fatalf("RemoveContainer failed: %v", err)
	}
	if err := f.Ready(ctx); err != nil {
		t.Fatalf("Ready failed: %v", err)
	}

	stats := f.Stats()
	if stats.Completed != 7 || stats.Failed != 0 || stats.Pending != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestFacade_ValidationBeforeDispatch(t *testing.T) {
	t.Parallel()
	d := &countingDispatcher{}
	f := New(d, nil)
	defer f.Close(context.Background())

	tests := []struct {
		name string
		req  Request
	}{
		{"nil request", nil},
		{"create without image", CreateContainer{}},
		{"start without id", StartContainer{}},
		{"stop with negative timeout", StopContainer{ContainerID: "x", Timeout: -time.Second}},
		{"remove without id", RemoveContainer{}},
		{"logs with negative tail", GetContainerLogs{ContainerID: "x", Tail: -1}},
	}
	for _, tt := range tests {
		if _, err := f.Submit(context.Background(), "c", tt.req); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tt.name, err)
		}
	}
	if d.count() != 0 {
		t.Errorf("invalid requests reached the dispatcher %d times", d.count())
	}
	if s := f.Stats(); s.Completed+s.Failed+s.Rejected != 0 {
		t.Errorf("invalid requests must not be tracked: %+v", s)
	}
}

func TestFacade_DispatchesExactlyOnce(t *testing.T) {
	t.Parallel()
	d := &countingDispatcher{}
	f := New(d, nil)
	defer f.Close(context.Background())

	out, err := f.Submit(context.Background(), "once", Ping{})
	if err != nil {
		t.Fatal(err)
	}
	r, ok := <-out
	if !ok || r.Correlation() != "once" {
		t.Fatalf("unexpected result %+v", r)
	}
	if _, open := <-out; open {
		t.Error("expected result channel to be closed after the reply")
	}
	if d.count() != 1 {
		t.Errorf("expected 1 dispatch, got %d", d.count())
	}
	if d.requests[0].CorrelationID != "once" || d.requests[0].Command.Name() != "Ping" {
		t.Errorf("unexpected dispatched request %+v", d.requests[0])
	}
}

func TestFacade_DispatchRejected(t *testing.T) {
	t.Parallel()
	d := &countingDispatcher{err: apperrors.Unavailable("dispatcher")}
	f := New(d, nil)
	defer f.Close(context.Background())

	if _, err := f.Submit(context.Background(), "c", Ping{}); !errors.Is(err, apperrors.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if s := f.Stats(); s.Rejected != 1 || s.Pending != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestFacade_FailureBecomesDispatchError(t *testing.T) {
	t.Parallel()
	f := newFacade(t, enginetest.New())

	_, err := f.StartContainer(context.Background(), "missing", StartContainer{ContainerID: "ghost"})
	if !errors.Is(err, apperrors.ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected engine not-found to stay visible, got %v", err)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.CorrelationID != "missing" {
		t.Errorf("expected correlation id on error, got %+v", appErr)
	}
	if s := f.Stats(); s.Failed != 1 {
		t.Errorf("expected 1 failed request, got %+v", s)
	}
}

func TestFacade_ConcurrentCorrelation(t *testing.T) {
	t.Parallel()
	const n = 50
	fake := enginetest.New()
	fake.Hook = func(ctx context.Context, method string) error {
		if method == enginetest.MethodStopContainer {
			return errors.New("engine unavailable")
		}
		return nil
	}
	f := newFacade(t, fake)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			corr := fmt.Sprintf("req-%d", i)
			var req Request = Ping{}
			if i%2 == 0 {
				req = StopContainer{ContainerID: "x"}
			}
			out, err := f.Submit(context.Background(), corr, req)
			if err != nil {
				t.Errorf("Submit %s: %v", corr, err)
				return
			}
			r := <-out
			if r.Correlation() != corr {
				t.Errorf("reply for %s carried %s", corr, r.Correlation())
			}
			if _, failed := r.(*dispatcher.Failure); failed != (i%2 == 0) {
				t.Errorf("%s: failed=%v", corr, failed)
			}
		}()
	}
	wg.Wait()

	s := f.Stats()
	if s.Completed != n/2 || s.Failed != n/2 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestFacade_CloseWaitsForPending(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	fake := enginetest.New()
	fake.Hook = func(ctx context.Context, method string) error {
		<-release
		return nil
	}
	d := dispatcher.New(fake, dispatcher.Config{}, nil)
	defer d.Close(context.Background())
	f := New(d, nil)

	out, err := f.Submit(context.Background(), "pending", Ping{})
	if err != nil {
		t.Fatal(err)
	}
	testutil.MustWaitFor(t, func() bool { return f.Stats().Pending == 1 },
		testutil.WithTimeout(5*time.Second), testutil.WithInterval(5*time.Millisecond))

	closed := make(chan error, 1)
	go func() { closed <- f.Close(context.Background()) }()

	select {
	case err := <-closed:
		t.Fatalf("Close returned with a request pending: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if r := <-out; r.Correlation() != "pending" {
		t.Errorf("unexpected result %+v", r)
	}
	if err := <-closed; err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestFacade_CloseTimeoutFailsPending(t *testing.T) {
	t.Parallel()
	fake := enginetest.New()
	fake.Hook = func(ctx context.Context, method string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	d := dispatcher.New(fake, dispatcher.Config{}, nil)
	defer d.Close(context.Background())
	f := New(d, nil)

	out, err := f.Submit(context.Background(), "stuck", Ping{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	failure, ok := (<-out).(*dispatcher.Failure)
	if !ok || failure.Reason != "facade closed" || failure.CorrelationID != "stuck" {
		t.Errorf("unexpected result %+v", failure)
	}
}

func TestFacade_SubmitAfterClose(t *testing.T) {
	t.Parallel()
	f := New(&countingDispatcher{}, nil)
	if err := f.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := f.Submit(context.Background(), "late", Ping{}); !errors.Is(err, apperrors.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if f.Stats() != (Stats{}) {
		t.Error("expected zero stats from a closed facade")
	}
}

func TestFacade_WatchEvents(t *testing.T) {
	t.Parallel()
	f := newFacade(t, enginetest.New())

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := f.WatchEvents(ctx, "watch")
	if err != nil {
		t.Fatalf("WatchEvents failed: %v", err)
	}
	defer stream.Stop()

	cancel()
	select {
	case _, open := <-stream.Events:
		if open {
			t.Error("expected no events")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end with its context")
	}
}
