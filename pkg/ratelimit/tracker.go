package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamadmin_rate_limit_hits_total",
		Help: "Total number of 429 responses received from the team API",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "teamadmin_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit cooldown to pass",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// extendCooldown sets KEYS[1] to ARGV[1] (unix ms) with a PX of ARGV[2] unless
// the stored cooldown already ends later.
var extendCooldown = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if tonumber(ARGV[1]) > cur then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
return 0
`)

// Tracker gates requests on the provider cooldown and a local request rate.
// With a nil Redis client the cooldown is kept in process memory.
type Tracker struct {
	redis   *redis.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu    sync.Mutex
	local CooldownState
}

// NewTracker creates a new rate limit tracker. requestsPerSecond <= 0 disables local pacing.
func NewTracker(redisClient *redis.Client, requestsPerSecond float64, logger zerolog.Logger) *Tracker {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}

	return &Tracker{
		redis:   redisClient,
		limiter: limiter,
		logger:  logger,
	}
}

// GetState returns the current cooldown state.
func (t *Tracker) GetState(ctx context.Context) (*CooldownState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	untilMs, err := t.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	lastMs, err := t.redis.Get(ctx, RedisKeyLastUpdate).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	hits, err := t.redis.Get(ctx, RedisKeyHits).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get hits: %w", err)
	}

	state := &CooldownState{Hits: hits}
	if untilMs > 0 {
		state.Until = time.UnixMilli(untilMs)
	}
	if lastMs > 0 {
		state.LastUpdate = time.UnixMilli(lastMs)
	}
	return state, nil
}

// UpdateFromResponse records a cooldown when status is 429 and returns its length.
// Other statuses are ignored and return 0.
func (t *Tracker) UpdateFromResponse(ctx context.Context, status int, headers http.Header) (time.Duration, error) {
	if status != http.StatusTooManyRequests {
		return 0, nil
	}

	now := time.Now()
	wait := ParseRetryAfter(headers, now)
	until := now.Add(wait)
	rateLimitHitsTotal.Inc()

	if t.redis == nil {
		t.mu.Lock()
		if until.After(t.local.Until) {
			t.local.Until = until
		}
		t.local.LastUpdate = now
		t.local.Hits++
		t.mu.Unlock()
	} else {
		err := extendCooldown.Run(ctx, t.redis, []string{RedisKeyCooldownUntil},
			until.UnixMilli(), wait.Milliseconds()).Err()
		if err != nil {
			return wait, fmt.Errorf("store cooldown in redis: %w", err)
		}
		pipe := t.redis.Pipeline()
		pipe.Set(ctx, RedisKeyLastUpdate, strconv.FormatInt(now.UnixMilli(), 10), 0)
		pipe.Incr(ctx, RedisKeyHits)
		if _, err := pipe.Exec(ctx); err != nil {
			return wait, fmt.Errorf("store cooldown in redis: %w", err)
		}
	}

	t.logger.Warn().
		Dur("retry_after", wait).
		Time("cooldown_until", until).
		Msg("Team API rate limit hit - cooling down")

	return wait, nil
}

// Wait blocks until the cooldown has passed and the local limiter grants a slot.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		// Cooldown state is advisory; pacing still applies.
		t.logger.Warn().Err(err).Msg("Rate limit state unavailable")
	} else if remaining := state.Remaining(); remaining > 0 {
		t.logger.Debug().Dur("remaining", remaining).Msg("Waiting for rate limit cooldown")
		start := time.Now()
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
	}
	return nil
}
