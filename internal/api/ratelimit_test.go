package api

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	l := NewLimiter(1, 2)
	t.Cleanup(l.Close)
	l.now = func() time.Time { return now }

	for i := range 2 {
		if !l.Allow("a") {
			t.Fatalf("request %d rejected within burst", i)
		}
	}
	if l.Allow("a") {
		t.Error("request beyond burst allowed")
	}
	if !l.Allow("b") {
		t.Error("second client throttled by the first")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("token not refilled after one second")
	}

	now = now.Add(idleTTL + time.Second)
	l.Allow("c")
	l.sweep()
	if got := l.Len(); got != 1 {
		t.Errorf("Len after sweep = %d, want 1", got)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	l := NewLimiter(0, 0)
	t.Cleanup(l.Close)
	for range 100 {
		if !l.Allow("a") {
			t.Fatal("unlimited limiter rejected a request")
		}
	}
}
