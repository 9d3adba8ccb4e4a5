// Package interfaces defines the contracts between the monitoring pipeline's
// components so each side can be tested against fakes.
package interfaces

import (
	"context"
	"time"

	"classpulse/pkg/types"
)

// EventStore is the read-only query surface over the persisted activity log.
// The relational storage of answer records belongs to the wider platform;
// this subsystem only consumes it.
type EventStore interface {
	// EventsSince returns the learner's answer events for the session with
	// CreatedAt >= since, ordered oldest first.
	EventsSince(ctx context.Context, learnerID, sessionID string, since time.Time) ([]types.AnswerEvent, error)

	// SessionMeta returns the session record or ErrSessionNotFound.
	SessionMeta(ctx context.Context, sessionID string) (*types.SessionMeta, error)

	// HistoricalPerformance aggregates the learner's activity over the
	// lookback period into a baseline profile. A learner with no history
	// yields a zero-valued profile, not an error.
	HistoricalPerformance(ctx context.Context, learnerID string, lookbackDays int) (*types.BaselineProfile, error)
}

// CacheEntry is what one collection cycle writes to the snapshot cache.
// Alerts ride along with the snapshot; the entry's TTL is their retention.
type CacheEntry struct {
	Snapshot *types.MetricsSnapshot `json:"snapshot"`
	Alerts   []types.Alert          `json:"alerts"`
}

// SnapshotCache stores the latest snapshot per (learner, session) with a
// bounded TTL. Concurrent writers for the same key overwrite; snapshots are
// monotonic in time so last-write-wins is correct.
type SnapshotCache interface {
	Save(ctx context.Context, entry *CacheEntry) error
	Load(ctx context.Context, learnerID, sessionID string) (*CacheEntry, error)
	Close() error
}

// Collector produces metrics snapshots for a monitored (learner, session)
// pair. Implemented by the metrics engine.
type Collector interface {
	// Collect runs one collection cycle: fetch events, compute sub-metrics,
	// cache the snapshot, and evaluate alerts.
	Collect(ctx context.Context, learnerID, sessionID string) (*types.MetricsSnapshot, []types.Alert, error)

	// Prepare establishes the baseline profile for a pair before its push
	// loop starts.
	Prepare(ctx context.Context, learnerID, sessionID string) error

	// Forget releases per-pair state (baseline, history) after monitoring
	// stops.
	Forget(learnerID, sessionID string)
}
