package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/appleid-oauth/instrumentation"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 20, nil)
	defer rl.Stop()

	if rl == nil {
		t.Fatal("NewRateLimiter() returned nil")
	}
	if rl.rate != 10 {
		t.Errorf("rate = %v, want 10", rl.rate)
	}
	if rl.burst != 20 {
		t.Errorf("burst = %d, want 20", rl.burst)
	}
	if rl.maxEntries != DefaultRateLimitMaxEntries {
		t.Errorf("maxEntries = %d, want %d", rl.maxEntries, DefaultRateLimitMaxEntries)
	}
	if rl.logger == nil {
		t.Error("logger should not be nil")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(10, 5, slog.Default())
	defer rl.Stop()

	identifier := "203.0.113.1"

	// First requests up to burst should be allowed
	for i := 0; i < 5; i++ {
		if !rl.Allow(identifier) {
			t.Errorf("Allow() request %d should be allowed", i+1)
		}
	}

	if rl.Allow(identifier) {
		t.Error("Allow() should return false when rate limited")
	}
}

func TestRateLimiter_Allow_MultipleIdentifiers(t *testing.T) {
	rl := NewRateLimiter(10, 2, slog.Default())
	defer rl.Stop()

	id1 := "203.0.113.1"
	id2 := "203.0.113.2"

	for i := 0; i < 2; i++ {
		if !rl.Allow(id1) {
			t.Errorf("Allow(id1) request %d should be allowed", i+1)
		}
	}
	if rl.Allow(id1) {
		t.Error("Allow(id1) should return false when rate limited")
	}
	if !rl.Allow(id2) {
		t.Error("Allow(id2) should be allowed (different identifier)")
	}
}

func TestRateLimiter_Allow_RefillOverTime(t *testing.T) {
	rl := NewRateLimiter(2, 2, slog.Default())
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }

	identifier := "203.0.113.1"
	for i := 0; i < 2; i++ {
		if !rl.Allow(identifier) {
			t.Errorf("Allow() request %d should be allowed", i+1)
		}
	}
	if rl.Allow(identifier) {
		t.Error("Allow() should return false when rate limited")
	}

	// One token refills after 500ms at 2 req/s
	now = now.Add(550 * time.Millisecond)
	if !rl.Allow(identifier) {
		t.Error("Allow() should be allowed after token refill")
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiterWithConfig(RateLimiterConfig{
		RequestsPerSecond: 10,
		Burst:             1,
		MaxEntries:        2,
	})
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("a") // a becomes most recent
	rl.Allow("c") // evicts b

	stats := rl.GetStats()
	if stats.CurrentEntries != 2 {
		t.Errorf("CurrentEntries = %d, want 2", stats.CurrentEntries)
	}
	if stats.TotalEvictions != 1 {
		t.Errorf("TotalEvictions = %d, want 1", stats.TotalEvictions)
	}

	rl.mu.Lock()
	_, hasA := rl.limiters["a"]
	_, hasB := rl.limiters["b"]
	rl.mu.Unlock()
	if !hasA || hasB {
		t.Errorf("expected b to be evicted, got hasA=%v hasB=%v", hasA, hasB)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 20, slog.Default())
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("id-1")
	rl.Allow("id-2")
	rl.Allow("id-3")

	if got := rl.GetStats().CurrentEntries; got != 3 {
		t.Errorf("initial limiter count = %d, want 3", got)
	}

	now = now.Add(time.Hour)
	rl.Cleanup(30 * time.Minute)

	stats := rl.GetStats()
	if stats.CurrentEntries != 0 {
		t.Errorf("final limiter count = %d, want 0", stats.CurrentEntries)
	}
	if stats.TotalCleanups != 1 {
		t.Errorf("TotalCleanups = %d, want 1", stats.TotalCleanups)
	}
}

func TestRateLimiter_Cleanup_KeepsActive(t *testing.T) {
	rl := NewRateLimiter(10, 20, slog.Default())
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("id-1")
	now = now.Add(time.Hour)
	rl.Allow("id-2")

	rl.Cleanup(30 * time.Minute)

	rl.mu.Lock()
	finalCount := len(rl.limiters)
	_, hasActive := rl.limiters["id-2"]
	rl.mu.Unlock()

	if finalCount != 1 {
		t.Errorf("final limiter count = %d, want 1", finalCount)
	}
	if !hasActive {
		t.Error("active limiter should not be cleaned up")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100, 100, slog.Default())
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			identifier := fmt.Sprintf("identifier-%d", id)
			for j := 0; j < 10; j++ {
				rl.Allow(identifier)
			}
		}(i)
	}
	wg.Wait()

	if got := rl.GetStats().CurrentEntries; got != 10 {
		t.Errorf("CurrentEntries = %d, want 10", got)
	}
}

func TestRateLimiter_Stop(t *testing.T) {
	rl := NewRateLimiter(10, 20, slog.Default())

	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_Instrumentation(t *testing.T) {
	inst, err := instrumentation.New(instrumentation.Config{Enabled: true})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	rl := NewRateLimiterWithConfig(RateLimiterConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		MaxEntries:        1,
		Instrumentation:   inst,
	})
	defer rl.Stop()

	// Creating and evicting limiters must not panic with metrics attached
	rl.Allow("a")
	rl.Allow("b")
	rl.Cleanup(0)
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, 1, slog.Default())
	defer rl.Stop()

	var limited []string
	handler := rl.Middleware(
		func(r *http.Request) string { return r.RemoteAddr },
		func(_ *http.Request, key string) { limited = append(limited, key) },
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/apple/login", nil)
		req.RemoteAddr = "203.0.113.1"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve(); rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec := serve()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if len(limited) != 1 || limited[0] != "203.0.113.1" {
		t.Errorf("onLimited calls = %v, want [203.0.113.1]", limited)
	}
}
