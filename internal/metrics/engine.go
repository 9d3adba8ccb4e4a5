// Package metrics computes rolling performance statistics for in-progress
// learning sessions and evaluates them against alert thresholds.
package metrics

import (
	"context"
	"fmt"
	"log"
	"sync"

	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

// Engine implements interfaces.Collector. One engine serves all monitored
// pairs; per-pair state is limited to the cached baseline profile and the
// snapshot history.
type Engine struct {
	store    interfaces.EventStore
	cache    interfaces.SnapshotCache
	tunables *Tunables
	history  *History

	mu        sync.RWMutex
	baselines map[string]*types.BaselineProfile // pairKey -> profile
}

// NewEngine creates a metrics engine.
func NewEngine(store interfaces.EventStore, cache interfaces.SnapshotCache, tunables *Tunables) *Engine {
	return &Engine{
		store:     store,
		cache:     cache,
		tunables:  tunables,
		history:   NewHistory(tunables.Metrics().HistoryRetention),
		baselines: make(map[string]*types.BaselineProfile),
	}
}

// Prepare verifies the session exists and establishes the pair's baseline
// profile ahead of its push loop.
func (e *Engine) Prepare(ctx context.Context, learnerID, sessionID string) error {
	if _, err := e.store.SessionMeta(ctx, sessionID); err != nil {
		return err
	}
	_, err := e.baselineFor(ctx, learnerID, sessionID)
	return err
}

// Forget releases the pair's baseline and snapshot history.
func (e *Engine) Forget(learnerID, sessionID string) {
	e.mu.Lock()
	delete(e.baselines, pairKey(learnerID, sessionID))
	e.mu.Unlock()

	e.history.Forget(learnerID, sessionID)
}

// Baseline returns the cached baseline profile for a pair, if established.
func (e *Engine) Baseline(learnerID, sessionID string) *types.BaselineProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baselines[pairKey(learnerID, sessionID)]
}

// History exposes the short-term snapshot history for trend lookups.
func (e *Engine) History() *History {
	return e.history
}

// Collect runs one collection cycle for a pair: fetch the session's events,
// compute each sub-metric, cache the snapshot with its alerts, and record it
// in the history. A failure in one sub-metric is reported inside the
// snapshot without aborting the cycle; only an unreachable store or an
// unknown session fails the cycle as a whole.
func (e *Engine) Collect(ctx context.Context, learnerID, sessionID string) (*types.MetricsSnapshot, []types.Alert, error) {
	cfg := e.tunables.Metrics()

	meta, err := e.store.SessionMeta(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	events, err := e.store.EventsSince(ctx, learnerID, sessionID, meta.CreatedAt)
	if err != nil {
		return nil, nil, err
	}

	baseline, err := e.baselineFor(ctx, learnerID, sessionID)
	if err != nil {
		// Trend comparisons degrade to window-local classification.
		log.Printf("Baseline unavailable for learner=%s session=%s: %v", learnerID, sessionID, err)
		baseline = nil
	}

	now := clockNow()
	snap := &types.MetricsSnapshot{
		LearnerID: learnerID,
		SessionID: sessionID,
		Timestamp: now,
	}

	guard(snap, "speed", func() {
		snap.Speed = computeSpeed(events, now, cfg)
	})
	guard(snap, "accuracy", func() {
		snap.Accuracy = computeAccuracy(events, cfg)
	})
	guard(snap, "progress", func() {
		snap.Progress = computeProgress(events, meta, baseline, now, cfg)
	})
	guard(snap, "engagement", func() {
		snap.Engagement = computeEngagement(events, now, cfg)
	})
	guard(snap, "difficulty", func() {
		snap.Difficulty = computeDifficulty(events, meta, now, cfg)
	})

	alerts := evaluateAlerts(snap, cfg, now)

	// A cache write failure leaves the previous entry authoritative until
	// its TTL; the cycle still succeeds.
	if err := e.cache.Save(ctx, &interfaces.CacheEntry{Snapshot: snap, Alerts: alerts}); err != nil {
		log.Printf("Failed to cache snapshot for learner=%s session=%s: %v", learnerID, sessionID, err)
	}

	e.history.Append(snap)

	return snap, alerts, nil
}

// baselineFor returns the pair's baseline, computing and caching it on first
// use. The profile lives for the monitored session's lifetime.
func (e *Engine) baselineFor(ctx context.Context, learnerID, sessionID string) (*types.BaselineProfile, error) {
	key := pairKey(learnerID, sessionID)

	e.mu.RLock()
	if profile, ok := e.baselines[key]; ok {
		e.mu.RUnlock()
		return profile, nil
	}
	e.mu.RUnlock()

	cfg := e.tunables.Metrics()
	profile, err := e.store.HistoricalPerformance(ctx, learnerID, cfg.BaselineLookback)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	// Another collector may have raced us here; first write wins so the
	// profile stays immutable for the session's lifetime.
	if existing, ok := e.baselines[key]; ok {
		profile = existing
	} else {
		e.baselines[key] = profile
	}
	e.mu.Unlock()

	return profile, nil
}

// guard isolates one sub-metric computation so an unexpected failure marks
// that sub-metric instead of aborting the snapshot.
func guard(snap *types.MetricsSnapshot, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			snap.Errors = append(snap.Errors, fmt.Sprintf("%s: %v", name, r))
			log.Printf("Sub-metric %s failed for learner=%s session=%s: %v", name, snap.LearnerID, snap.SessionID, r)
		}
	}()
	fn()
}
