// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/containerevent"
	"jobkernel/internal/engine"
)

// Method names passed to Hook.
const (
	MethodListImages      = "ListImages"
	MethodCreateContainer = "CreateContainer"
	MethodStartContainer  = "StartContainer"
	MethodStopContainer   = "StopContainer"
	MethodRemoveContainer = "RemoveContainer"
	MethodContainerLogs   = "ContainerLogs"
	MethodEvents          = "Events"
	MethodPing            = "Ping"
)

type fakeContainer struct {
	spec    engine.ContainerSpec
	running bool
	logs    []engine.LogEntry
}

// Fake is a goroutine-safe engine. Hook, when set before use, runs at the
// start of every call; a non-nil return fails the call.
type Fake struct {
	Hook func(ctx context.Context, method string) error

	mu         sync.Mutex
	images     []engine.Image
	containers map[string]*fakeContainer
	nextID     int
	events     chan containerevent.Event
	calls      atomic.Int64
	closed     atomic.Bool
}

// New creates a fake holding images.
func New(images ...engine.Image) *Fake {
	return &Fake{
		images:     images,
		containers: make(map[string]*fakeContainer),
		events:     make(chan containerevent.Event, 64),
	}
}

// Calls returns the number of engine calls made.
func (f *Fake) Calls() int64 { return f.calls.Load() }

// Closed reports whether Close was called.
func (f *Fake) Closed() bool { return f.closed.Load() }

// Emit queues an event for the Events stream.
func (f *Fake) Emit(ev containerevent.Event) { f.events <- ev }

// SetLogs replaces the log lines of container id.
func (f *Fake) SetLogs(id string, logs ...engine.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		c.logs = logs
	}
}

// Running reports whether container id exists and is running.
func (f *Fake) Running(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	return ok && c.running
}

func (f *Fake) enter(ctx context.Context, method string) error {
	f.calls.Add(1)
	if f.Hook != nil {
		if err := f.Hook(ctx, method); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (f *Fake) container(id string) (*fakeContainer, error) {
	c, ok := f.containers[id]
	if !ok {
		return nil, apperrors.NotFound("container", id)
	}
	return c, nil
}

func (f *Fake) ListImages(ctx context.Context) ([]engine.Image, error) {
	if err := f.enter(ctx, MethodListImages); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Image(nil), f.images...), nil
}

func (f *Fake) CreateContainer(ctx context.Context, spec engine.ContainerSpec) (string, error) {
	if err := f.enter(ctx, MethodCreateContainer); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.containers[id] = &fakeContainer{spec: spec}
	return id, nil
}

func (f *Fake) StartContainer(ctx context.Context, id string) (bool, error) {
	if err := f.enter(ctx, MethodStartContainer); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.container(id)
	if err != nil {
		return false, err
	}
	if c.running {
		return true, nil
	}
	c.running = true
	return false, nil
}

func (f *Fake) StopContainer(ctx context.Context, id string, _ time.Duration) error {
	if err := f.enter(ctx, MethodStopContainer); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.container(id)
	if err != nil {
		return err
	}
	c.running = false
	return nil
}

func (f *Fake) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := f.enter(ctx, MethodRemoveContainer); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.container(id)
	if err != nil {
		return err
	}
	if c.running && !force {
		return apperrors.Conflict("container", id, "container "+id+" is running")
	}
	delete(f.containers, id)
	return nil
}

func (f *Fake) ContainerLogs(ctx context.Context, id string, opts engine.LogOptions) ([]engine.LogEntry, error) {
	if err := f.enter(ctx, MethodContainerLogs); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.container(id)
	if err != nil {
		return nil, err
	}
	logs := c.logs
	if opts.Tail > 0 && opts.Tail < len(logs) {
		logs = logs[len(logs)-opts.Tail:]
	}
	return append([]engine.LogEntry(nil), logs...), nil
}

// Events streams values passed to Emit until ctx is done.
func (f *Fake) Events(ctx context.Context) (<-chan containerevent.Event, <-chan error) {
	out := make(chan containerevent.Event)
	errs := make(chan error, 1)
	if err := f.enter(ctx, MethodEvents); err != nil {
		errs <- err
		close(out)
		return out, errs
	}
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-f.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errs
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.enter(ctx, MethodPing)
}

func (f *Fake) Close() error {
	f.closed.Store(true)
	return nil
}

var _ engine.Engine = (*Fake)(nil)
