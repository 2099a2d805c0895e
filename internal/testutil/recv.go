package testutil

import (
	"testing"
	"time"
)

// MustReceive waits for a value on ch and fails the test on timeout. ok is
// false when ch was closed. Only WithTimeout applies.
func MustReceive[T any](tb testing.TB, ch <-chan T, opts ...WaitOption) (v T, ok bool) {
	tb.Helper()

	o := resolve(opts)

	timer := time.NewTimer(o.Timeout)
	defer timer.Stop()

	select {
	case v, ok = <-ch:
		return v, ok
	case <-timer.C:
		tb.Fatalf("timed out after %s waiting to receive", o.Timeout)
		return v, false
	}
}

// MustNotReceive fails the test if ch yields a value, or is closed, within d.
func MustNotReceive[T any](tb testing.TB, ch <-chan T, d time.Duration) {
	tb.Helper()

	select {
	case v, ok := <-ch:
		if ok {
			tb.Fatalf("unexpected value received: %v", v)
		}
		tb.Fatal("channel closed unexpectedly")
	case <-time.After(d):
	}
}
