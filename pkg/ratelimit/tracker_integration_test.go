//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/teamadmin/internal/testutil"
)

func TestTracker_Redis_SharedCooldown(t *testing.T) {
	redisClient := testutil.StartRedis(t)
	ctx := context.Background()

	writer := NewTracker(redisClient, 0, zerolog.Nop())
	reader := NewTracker(redisClient, 0, zerolog.Nop())

	wait, err := writer.UpdateFromResponse(ctx, http.StatusTooManyRequests, http.Header{"Retry-After": {"30"}})
	if err != nil {
		t.Fatalf("UpdateFromResponse: %v", err)
	}
	if wait != 30*time.Second {
		t.Errorf("wait = %v, want 30s", wait)
	}

	state, err := reader.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !state.Active() {
		t.Error("second tracker should see the cooldown written by the first")
	}
	if state.Hits != 1 {
		t.Errorf("Hits = %d, want 1", state.Hits)
	}

	ttl, err := redisClient.TTL(ctx, RedisKeyCooldownUntil).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > 30*time.Second {
		t.Errorf("cooldown key TTL = %v, want (0, 30s]", ttl)
	}
}

func TestTracker_Redis_EmptyState(t *testing.T) {
	redisClient := testutil.StartRedis(t)

	tracker := NewTracker(redisClient, 0, zerolog.Nop())
	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.Active() {
		t.Error("fresh Redis should report no cooldown")
	}
}

func TestTracker_Redis_ShorterRetryAfterKeepsLongerCooldown(t *testing.T) {
	redisClient := testutil.StartRedis(t)
	ctx := context.Background()

	first := NewTracker(redisClient, 0, zerolog.Nop())
	second := NewTracker(redisClient, 0, zerolog.Nop())

	if _, err := first.UpdateFromResponse(ctx, http.StatusTooManyRequests, http.Header{"Retry-After": {"60"}}); err != nil {
		t.Fatalf("UpdateFromResponse (60s): %v", err)
	}
	long, err := first.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	wait, err := second.UpdateFromResponse(ctx, http.StatusTooManyRequests, http.Header{"Retry-After": {"1"}})
	if err != nil {
		t.Fatalf("UpdateFromResponse (1s): %v", err)
	}
	if wait != time.Second {
		t.Errorf("wait = %v, want 1s", wait)
	}

	state, err := first.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !state.Until.Equal(long.Until) {
		t.Errorf("Until = %v, want the longer cooldown %v", state.Until, long.Until)
	}
	if state.Hits != 2 {
		t.Errorf("Hits = %d, want 2", state.Hits)
	}

	ttl, err := redisClient.TTL(ctx, RedisKeyCooldownUntil).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 30*time.Second {
		t.Errorf("cooldown key TTL = %v, want the 60s cooldown kept", ttl)
	}

	// A longer Retry-After still extends the cooldown.
	if _, err := second.UpdateFromResponse(ctx, http.StatusTooManyRequests, http.Header{"Retry-After": {"120"}}); err != nil {
		t.Fatalf("UpdateFromResponse (120s): %v", err)
	}
	state, err = first.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !state.Until.After(long.Until) {
		t.Errorf("Until = %v, want later than %v", state.Until, long.Until)
	}
}
