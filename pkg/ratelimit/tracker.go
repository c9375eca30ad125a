package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the upstream gate.
var (
	upstreamConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_upstream_consecutive_failures",
		Help: "Consecutive upstream failures since the last success",
	})

	upstreamBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_upstream_blocks_total",
		Help: "Total number of requests blocked by an active upstream cooldown",
	})

	upstreamCooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_upstream_cooldowns_total",
		Help: "Total number of cooldowns opened by reason",
	}, []string{"reason"})
)

// Config configures a Tracker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens a cooldown.
	FailureThreshold int

	// Cooldown is the block duration after FailureThreshold is reached.
	Cooldown time.Duration

	// MaxRetryAfter caps Retry-After durations.
	MaxRetryAfter time.Duration

	// Redis optionally shares cooldowns between instances.
	Redis *redis.Client

	// Clock returns the current time (time.Now when nil).
	Clock func() time.Time
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
		MaxRetryAfter:    DefaultMaxRetryAfter,
	}
}

// Tracker monitors upstream failures and gates requests.
type Tracker struct {
	mu     sync.Mutex
	state  State
	cfg    Config
	logger zerolog.Logger
}

// NewTracker creates a new gate. Zero config values fall back to defaults.
func NewTracker(cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MaxRetryAfter <= 0 {
		cfg.MaxRetryAfter = DefaultMaxRetryAfter
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	t := &Tracker{cfg: cfg, logger: logger}
	t.state.UpdateHealth(cfg.Clock())
	return t
}

// GetState returns a copy of the current state. When Redis is configured a
// longer cooldown opened by another instance is merged in.
func (t *Tracker) GetState(ctx context.Context) State {
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()

	if t.cfg.Redis != nil {
		ms, err := t.cfg.Redis.Get(ctx, RedisKeyBlockedUntil).Int64()
		switch {
		case err == nil:
			if shared := time.UnixMilli(ms); shared.After(state.BlockedUntil) {
				state.BlockedUntil = shared
			}
		case err != redis.Nil:
			t.logger.Warn().Err(err).Msg("Failed to read shared upstream cooldown")
		}
	}

	state.UpdateHealth(t.cfg.Clock())
	return state
}

// ShouldAllowRequest reports whether a request may be sent now.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) bool {
	now := t.cfg.Clock()
	state := t.GetState(ctx)

	if state.IsBlocked(now) {
		t.logger.Warn().
			Int("consecutive_failures", state.ConsecutiveFailures).
			Dur("wait_duration", state.TimeUntilReset(now)).
			Msg("Upstream cooldown active - blocking request")

		upstreamBlocksTotal.Inc()
		return false
	}

	return true
}

// UpdateFromResponse records the outcome of one upstream response.
// 429 and 503 responses honor Retry-After; 5xx and 429 count as failures.
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) {
	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable {
		if d, ok := parseRetryAfter(headers.Get("Retry-After"), t.cfg.Clock()); ok {
			if d > t.cfg.MaxRetryAfter {
				d = t.cfg.MaxRetryAfter
			}
			t.block(ctx, d, "retry_after")
		}
	}

	if statusCode >= 500 || statusCode == http.StatusTooManyRequests {
		t.RecordFailure(ctx)
		return
	}
	t.RecordSuccess()
}

// RecordFailure counts a failed request (network error or retryable status).
func (t *Tracker) RecordFailure(ctx context.Context) {
	t.mu.Lock()
	t.state.ConsecutiveFailures++
	t.state.LastUpdate = t.cfg.Clock()
	failures := t.state.ConsecutiveFailures
	trip := failures >= t.cfg.FailureThreshold
	if trip {
		t.state.ConsecutiveFailures = 0
	}
	t.state.UpdateHealth(t.state.LastUpdate)
	t.mu.Unlock()

	upstreamConsecutiveFailures.Set(float64(failures))

	if trip {
		t.logger.Error().
			Int("consecutive_failures", failures).
			Dur("cooldown", t.cfg.Cooldown).
			Msg("Upstream failure threshold reached - opening cooldown")
		t.block(ctx, t.cfg.Cooldown, "failures")
		upstreamConsecutiveFailures.Set(0)
	}
}

// RecordSuccess resets the failure counter.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.ConsecutiveFailures = 0
	t.state.LastUpdate = t.cfg.Clock()
	t.state.UpdateHealth(t.state.LastUpdate)
	upstreamConsecutiveFailures.Set(0)
}

// Reset clears any cooldown and failure count.
func (t *Tracker) Reset(ctx context.Context) {
	t.mu.Lock()
	t.state = State{LastUpdate: t.cfg.Clock()}
	t.state.UpdateHealth(t.state.LastUpdate)
	t.mu.Unlock()

	if t.cfg.Redis != nil {
		if err := t.cfg.Redis.Del(ctx, RedisKeyBlockedUntil).Err(); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to clear shared upstream cooldown")
		}
	}
}

func (t *Tracker) block(ctx context.Context, d time.Duration, reason string) {
	if d <= 0 {
		return
	}
	until := t.cfg.Clock().Add(d)

	t.mu.Lock()
	if until.After(t.state.BlockedUntil) {
		t.state.BlockedUntil = until
	}
	t.state.UpdateHealth(t.cfg.Clock())
	t.mu.Unlock()

	upstreamCooldownsTotal.WithLabelValues(reason).Inc()
	t.logger.Warn().
		Str("reason", reason).
		Time("blocked_until", until).
		Msg("Upstream cooldown opened")

	if t.cfg.Redis != nil {
		if err := t.cfg.Redis.Set(ctx, RedisKeyBlockedUntil, until.UnixMilli(), d).Err(); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to share upstream cooldown")
		}
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}
