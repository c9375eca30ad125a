package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(clock *testClock) *Tracker {
	return NewTracker(Config{
		FailureThreshold: 3,
		Cooldown:         10 * time.Second,
		MaxRetryAfter:    30 * time.Second,
		Clock:            clock.Now,
	}, zerolog.Nop())
}

func TestNewTracker_Defaults(t *testing.T) {
	tracker := NewTracker(Config{}, zerolog.Nop())

	if tracker.cfg.FailureThreshold != DefaultFailureThreshold {
		t.Errorf("FailureThreshold = %d, want %d", tracker.cfg.FailureThreshold, DefaultFailureThreshold)
	}
	if tracker.cfg.Cooldown != DefaultCooldown {
		t.Errorf("Cooldown = %v, want %v", tracker.cfg.Cooldown, DefaultCooldown)
	}
	if !tracker.ShouldAllowRequest(context.Background()) {
		t.Error("fresh tracker should allow requests")
	}
}

func TestTracker_ConsecutiveFailuresOpenCooldown(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker := newTestTracker(clock)

	tracker.RecordFailure(ctx)
	tracker.RecordFailure(ctx)
	if !tracker.ShouldAllowRequest(ctx) {
		t.Fatal("requests should be allowed below the threshold")
	}

	tracker.RecordFailure(ctx)
	if tracker.ShouldAllowRequest(ctx) {
		t.Fatal("requests should be blocked once the threshold is reached")
	}

	clock.Advance(9 * time.Second)
	if tracker.ShouldAllowRequest(ctx) {
		t.Error("cooldown ended early")
	}

	clock.Advance(time.Second)
	if !tracker.ShouldAllowRequest(ctx) {
		t.Error("requests should be allowed after the cooldown")
	}
}

func TestTracker_SuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker := newTestTracker(clock)

	tracker.RecordFailure(ctx)
	tracker.RecordFailure(ctx)
	tracker.RecordSuccess()
	tracker.RecordFailure(ctx)
	tracker.RecordFailure(ctx)

	if !tracker.ShouldAllowRequest(ctx) {
		t.Error("a success should reset the consecutive failure count")
	}
	if got := tracker.GetState(ctx).ConsecutiveFailures; got != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", got)
	}
}

func TestTracker_UpdateFromResponse(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		retryAfter  string
		wantBlocked bool
		wantFails   int
	}{
		{name: "ok", status: http.StatusOK, wantBlocked: false, wantFails: 0},
		{name: "not found is not a failure", status: http.StatusNotFound, wantBlocked: false, wantFails: 0},
		{name: "server error", status: http.StatusInternalServerError, wantBlocked: false, wantFails: 1},
		{name: "429 with retry-after", status: http.StatusTooManyRequests, retryAfter: "5", wantBlocked: true, wantFails: 1},
		{name: "503 with retry-after", status: http.StatusServiceUnavailable, retryAfter: "2", wantBlocked: true, wantFails: 1},
		{name: "429 without retry-after", status: http.StatusTooManyRequests, wantBlocked: false, wantFails: 1},
		{name: "retry-after ignored on 200", status: http.StatusOK, retryAfter: "5", wantBlocked: false, wantFails: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
			tracker := newTestTracker(clock)

			headers := http.Header{}
			if tt.retryAfter != "" {
				headers.Set("Retry-After", tt.retryAfter)
			}
			tracker.UpdateFromResponse(ctx, tt.status, headers)

			state := tracker.GetState(ctx)
			if got := state.IsBlocked(clock.Now()); got != tt.wantBlocked {
				t.Errorf("IsBlocked() = %v, want %v", got, tt.wantBlocked)
			}
			if state.ConsecutiveFailures != tt.wantFails {
				t.Errorf("ConsecutiveFailures = %d, want %d", state.ConsecutiveFailures, tt.wantFails)
			}
		})
	}
}

func TestTracker_RetryAfterCapped(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker := newTestTracker(clock)

	headers := http.Header{}
	headers.Set("Retry-After", "3600")
	tracker.UpdateFromResponse(ctx, http.StatusTooManyRequests, headers)

	state := tracker.GetState(ctx)
	if got := state.TimeUntilReset(clock.Now()); got != 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want capped 30s", got)
	}
}

func TestTracker_Reset(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker := newTestTracker(clock)

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(ctx)
	}
	tracker.Reset(ctx)

	if !tracker.ShouldAllowRequest(ctx) {
		t.Error("Reset() should clear the cooldown")
	}
	if !tracker.GetState(ctx).IsHealthy {
		t.Error("state should be healthy after Reset()")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "empty", value: "", wantOK: false},
		{name: "seconds", value: "7", want: 7 * time.Second, wantOK: true},
		{name: "negative", value: "-1", wantOK: false},
		{name: "http date", value: now.Add(20 * time.Second).Format(http.TimeFormat), want: 20 * time.Second, wantOK: true},
		{name: "date in past", value: now.Add(-time.Minute).Format(http.TimeFormat), wantOK: false},
		{name: "garbage", value: "soon", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now)
			if ok != tt.wantOK {
				t.Fatalf("parseRetryAfter(%q) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestTracker_SharedCooldownViaRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	t.Cleanup(func() {
		client.Del(context.Background(), RedisKeyBlockedUntil)
		client.Close()
	})
	client.Del(ctx, RedisKeyBlockedUntil)

	cfg := Config{FailureThreshold: 1, Cooldown: 30 * time.Second, Redis: client}
	first := NewTracker(cfg, zerolog.Nop())
	second := NewTracker(cfg, zerolog.Nop())

	first.RecordFailure(ctx)

	if second.ShouldAllowRequest(ctx) {
		t.Error("second instance should observe the shared cooldown")
	}

	first.Reset(ctx)
	if !second.ShouldAllowRequest(ctx) {
		t.Error("shared cooldown should be cleared by Reset()")
	}
}
