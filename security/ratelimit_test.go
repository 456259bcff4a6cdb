package security

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimiterAllowWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, discardLogger())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("client-1") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if rl.Allow("client-1") {
		t.Fatal("request allowed beyond burst")
	}
}

func TestRateLimiterIsolatesIdentifiers(t *testing.T) {
	rl := NewRateLimiter(1, 1, discardLogger())
	defer rl.Stop()

	if !rl.Allow("client-1") {
		t.Fatal("first request for client-1 denied")
	}
	if rl.Allow("client-1") {
		t.Fatal("second request for client-1 allowed")
	}
	// Exhausting one identifier must not affect another.
	if !rl.Allow("client-2") {
		t.Fatal("first request for client-2 denied")
	}
}

func TestRateLimiterLRUEviction(t *testing.T) {
	rl := NewRateLimiterWithConfig(1, 1, 2, discardLogger())
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	// Touch "a" so "b" becomes the eviction candidate.
	rl.Allow("a")
	rl.Allow("c")

	rl.mu.Lock()
	_, aTracked := rl.limiters["a"]
	_, bTracked := rl.limiters["b"]
	_, cTracked := rl.limiters["c"]
	size := rl.lruList.Len()
	rl.mu.Unlock()

	if size != 2 {
		t.Fatalf("tracked entries = %d, want 2", size)
	}
	if !aTracked || bTracked || !cTracked {
		t.Fatalf("tracked a=%v b=%v c=%v, want a and c only", aTracked, bTracked, cTracked)
	}

	// "b" was evicted, so it gets a fresh bucket.
	if !rl.Allow("b") {
		t.Fatal("evicted identifier denied a fresh bucket")
	}
}

func TestRateLimiterCapStaysBounded(t *testing.T) {
	rl := NewRateLimiterWithConfig(100, 100, 8, discardLogger())
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		rl.Allow(fmt.Sprintf("attacker-%d", i))
	}

	rl.mu.Lock()
	size := len(rl.limiters)
	rl.mu.Unlock()
	if size > 8 {
		t.Fatalf("tracked entries = %d, want <= 8", size)
	}
}

func TestRateLimiterNilSafe(t *testing.T) {
	var rl *RateLimiter
	if !rl.Allow("anyone") {
		t.Fatal("nil limiter denied a request")
	}
}

func TestRateLimiterStopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, discardLogger())
	rl.Stop()
	rl.Stop()
}
