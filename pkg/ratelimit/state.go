// Package ratelimit gates requests to the upstream ERP. It honors
// Retry-After on 429/503 responses and opens a cooldown after a run of
// consecutive upstream failures so a failing ERP is not hammered.
package ratelimit

import (
	"time"
)

// Redis key for the shared cooldown deadline.
const RedisKeyBlockedUntil = "storefront:upstream:blocked_until"

// Defaults for the failure gate.
const (
	// DefaultFailureThreshold opens a cooldown after this many consecutive failures.
	DefaultFailureThreshold = 5

	// DefaultCooldown is how long requests are blocked once the threshold is reached.
	DefaultCooldown = 10 * time.Second

	// DefaultMaxRetryAfter caps Retry-After values sent by the upstream.
	DefaultMaxRetryAfter = 60 * time.Second
)

// State is the current upstream health as seen by this process.
type State struct {
	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// BlockedUntil is the end of the active cooldown (zero when none).
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is the time of the last recorded response.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when no cooldown is active and no failures are pending.
	IsHealthy bool `json:"is_healthy"`
}

// IsBlocked reports whether a cooldown is active at now.
func (s *State) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilReset returns the remaining cooldown, or 0 when none is active.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy.
func (s *State) UpdateHealth(now time.Time) {
	s.IsHealthy = !s.IsBlocked(now) && s.ConsecutiveFailures == 0
}
