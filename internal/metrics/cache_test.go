package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client, "test:metrics:", 5*time.Minute)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	snap := &types.MetricsSnapshot{
		LearnerID: "l1",
		SessionID: "s1",
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Accuracy:  types.AccuracyMetrics{Overall: 0.8, Trend: types.AccuracyStable},
		Progress:  types.ProgressMetrics{Completed: 7, Target: 20, Pace: types.PaceOnTrack},
	}
	alerts := []types.Alert{{
		Kind:     types.AlertLowEngagement,
		Severity: types.SeverityWarning,
		Message:  "activity dropped",
	}}

	if err := cache.Save(ctx, &interfaces.CacheEntry{Snapshot: snap, Alerts: alerts}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entry, err := cache.Load(ctx, "l1", "s1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if entry.Snapshot.Accuracy.Overall != 0.8 {
		t.Errorf("expected overall 0.8, got %f", entry.Snapshot.Accuracy.Overall)
	}
	if entry.Snapshot.Progress.Completed != 7 {
		t.Errorf("expected 7 completed, got %d", entry.Snapshot.Progress.Completed)
	}
	if len(entry.Alerts) != 1 || entry.Alerts[0].Kind != types.AlertLowEngagement {
		t.Errorf("alerts did not survive the round trip: %v", entry.Alerts)
	}
}

func TestCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.Load(context.Background(), "nobody", "nothing")
	if !errors.Is(err, interfaces.ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	snap := &types.MetricsSnapshot{LearnerID: "l1", SessionID: "s1", Timestamp: time.Now()}
	if err := cache.Save(ctx, &interfaces.CacheEntry{Snapshot: snap}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := cache.Load(ctx, "l1", "s1"); err != nil {
		t.Fatalf("Load before expiry failed: %v", err)
	}

	mr.FastForward(6 * time.Minute)

	_, err := cache.Load(ctx, "l1", "s1")
	if !errors.Is(err, interfaces.ErrSnapshotNotFound) {
		t.Errorf("expected expiry to surface ErrSnapshotNotFound, got %v", err)
	}
}

func TestCacheOverwrite(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	first := &types.MetricsSnapshot{LearnerID: "l1", SessionID: "s1", Progress: types.ProgressMetrics{Completed: 1}}
	second := &types.MetricsSnapshot{LearnerID: "l1", SessionID: "s1", Progress: types.ProgressMetrics{Completed: 2}}

	if err := cache.Save(ctx, &interfaces.CacheEntry{Snapshot: first}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := cache.Save(ctx, &interfaces.CacheEntry{Snapshot: second}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entry, err := cache.Load(ctx, "l1", "s1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if entry.Snapshot.Progress.Completed != 2 {
		t.Errorf("latest snapshot should win, got %d", entry.Snapshot.Progress.Completed)
	}
}

func TestCacheKeyIsolation(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	snap := &types.MetricsSnapshot{LearnerID: "l1", SessionID: "s1"}
	if err := cache.Save(ctx, &interfaces.CacheEntry{Snapshot: snap}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := cache.Load(ctx, "l1", "s2"); !errors.Is(err, interfaces.ErrSnapshotNotFound) {
		t.Errorf("different session must not hit, got %v", err)
	}
	if _, err := cache.Load(ctx, "l2", "s1"); !errors.Is(err, interfaces.ErrSnapshotNotFound) {
		t.Errorf("different learner must not hit, got %v", err)
	}
}
