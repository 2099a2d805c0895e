//go:build integration

package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/containerevent"
	"jobkernel/internal/engine"
	"jobkernel/internal/testutil"
)

const testImage = "alpine:latest"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{PullIfMissing: true})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Ping(ctx); err != nil {
		t.Skipf("Docker daemon not reachable: %v", err)
	}
	return e
}

func TestEngine_ContainerLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	events, errs := e.Events(ctx)

	name := fmt.Sprintf("jobkernel-it-%d", time.Now().UnixNano())
	id, err := e.CreateContainer(ctx, engine.ContainerSpec{
		Name:     name,
		Image:    testImage,
		Command:  []string{"sh", "-c", "echo hello from jobkernel; echo oops >&2"},
		MemoryMB: 64,
	})
	if err != nil {
		t.Fatalf("CreateContainer failed: %v", err)
	}
	t.Cleanup(func() { _ = e.RemoveContainer(context.Background(), id, true) })

	already, err := e.StartContainer(ctx, id)
	if err != nil {
		t.Fatalf("StartContainer failed: %v", err)
	}
	if already {
		t.Error("fresh container reported as already started")
	}

	var logs []engine.LogEntry
	testutil.MustWaitFor(t, func() bool {
		logs, err = e.ContainerLogs(ctx, id, engine.LogOptions{})
		return err == nil && len(logs) >= 2
	}, testutil.WithTimeout(30*time.Second), testutil.WithInterval(250*time.Millisecond))

	streams := map[string]string{}
	for _, l := range logs {
		streams[l.Stream] += l.Line
	}
	if !strings.Contains(streams["stdout"], "hello from jobkernel") || !strings.Contains(streams["stderr"], "oops") {
		t.Errorf("unexpected logs: %+v", logs)
	}

	// Die must arrive with a parseable exit code for our container.
	deadline := time.After(30 * time.Second)
	for died := false; !died; {
		select {
		case ev := <-events:
			if ev.Meta().ContainerID != id {
				continue
			}
			if d, ok := ev.(containerevent.Died); ok {
				code, err := d.ExitCode()
				if err != nil || code != 0 {
					t.Errorf("ExitCode() = %d, %v", code, err)
				}
				died = true
			}
		case err := <-errs:
			t.Fatalf("event stream failed: %v", err)
		case <-deadline:
			t.Fatal("timed out waiting for die event")
		}
	}

	if err := e.RemoveContainer(ctx, id, false); err != nil {
		t.Fatalf("RemoveContainer failed: %v", err)
	}
	if err := e.RemoveContainer(ctx, id, false); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second remove: expected not found, got %v", err)
	}
}

func TestEngine_StopRunningContainer(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	id, err := e.CreateContainer(ctx, engine.ContainerSpec{
		Image:   testImage,
		Command: []string{"sleep", "300"},
	})
	if err != nil {
		t.Fatalf("CreateContainer failed: %v", err)
	}
	t.Cleanup(func() { _ = e.RemoveContainer(context.Background(), id, true) })

	if _, err := e.StartContainer(ctx, id); err != nil {
		t.Fatalf("StartContainer failed: %v", err)
	}
	already, err := e.StartContainer(ctx, id)
	if err != nil || !already {
		t.Errorf("second start = %v, %v; want already started", already, err)
	}

	if err := e.RemoveContainer(ctx, id, false); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("removing a running container: expected conflict, got %v", err)
	}

	if err := e.StopContainer(ctx, id, time.Second); err != nil {
		t.Fatalf("StopContainer failed: %v", err)
	}
}

func TestEngine_ListImages(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	images, err := e.ListImages(ctx)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	for _, img := range images {
		if img.ID == "" {
			t.Errorf("image without id: %+v", img)
		}
	}
}

func TestEngine_MissingContainer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.StartContainer(ctx, "jobkernel-does-not-exist"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := e.ContainerLogs(ctx, "jobkernel-does-not-exist", engine.LogOptions{}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
