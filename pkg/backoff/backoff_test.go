package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicy_DelayDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{6, 3200 * time.Millisecond},
		{7, 5 * time.Second},
		{30, 5 * time.Second},
	}

	var p Policy
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_DelayJitterBounds(t *testing.T) {
	t.Parallel()
	p := Policy{Initial: time.Second, Max: time.Minute, Jitter: 0.5}

	for range 200 {
		got := p.Delay(2)
		if got < time.Second || got > 2*time.Second {
			t.Fatalf("Delay(2) = %v, want within [1s, 2s]", got)
		}
	}
}

func TestPolicy_JitterClamped(t *testing.T) {
	t.Parallel()
	p := Policy{Initial: time.Second, Jitter: -3}
	if got := p.Delay(1); got != time.Second {
		t.Errorf("negative jitter should be ignored, got %v", got)
	}
}

func TestPolicy_WaitCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Policy{Initial: time.Hour, Max: time.Hour}.Wait(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPolicy_WaitElapses(t *testing.T) {
	t.Parallel()
	if err := (Policy{Initial: time.Millisecond}).Wait(context.Background(), 1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
