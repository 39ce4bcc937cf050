// Package ratelimit tracks provider rate limiting and gates requests.
// The team API answers 429 Too Many Requests with a Retry-After header; the
// resulting cooldown is stored in Redis so every client sharing the same token
// backs off together, and a local token bucket paces outgoing calls.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Redis keys for cooldown state storage.
const (
	RedisKeyCooldownUntil = "teamadmin:rate_limit:cooldown_until"
	RedisKeyLastUpdate    = "teamadmin:rate_limit:last_update"
	RedisKeyHits          = "teamadmin:rate_limit:hits"
)

const (
	// DefaultRetryAfter is used when a 429 response carries no usable Retry-After header.
	DefaultRetryAfter = 5 * time.Second

	// MaxCooldown caps the cooldown taken from a Retry-After header.
	MaxCooldown = 5 * time.Minute
)

// CooldownState represents the current provider rate limit state.
type CooldownState struct {
	// Until is the time before which no request should be sent.
	Until time.Time `json:"until"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`

	// Hits counts 429 responses observed since the state was created.
	Hits int64 `json:"hits"`
}

// Active returns true while the cooldown window is open.
func (s *CooldownState) Active() bool {
	return time.Now().Before(s.Until)
}

// Remaining returns the time left in the cooldown window, or 0.
func (s *CooldownState) Remaining() time.Duration {
	d := time.Until(s.Until)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state is older than maxAge.
func (s *CooldownState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// ParseRetryAfter reads the Retry-After header as delay-seconds or an HTTP date.
// Missing or malformed values yield DefaultRetryAfter; results are capped at MaxCooldown.
func ParseRetryAfter(headers http.Header, now time.Time) time.Duration {
	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return DefaultRetryAfter
	}

	var d time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(raw); err == nil {
		d = at.Sub(now)
	} else {
		return DefaultRetryAfter
	}

	if d <= 0 {
		return DefaultRetryAfter
	}
	if d > MaxCooldown {
		return MaxCooldown
	}
	return d
}
