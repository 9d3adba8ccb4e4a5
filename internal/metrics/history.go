package metrics

import (
	"sync"
	"time"

	"classpulse/pkg/types"
)

// History keeps a time-ordered run of recent snapshots per monitored pair
// for short-term trend lookups. Entries older than the retention window are
// pruned on every append.
type History struct {
	mu        sync.RWMutex
	retention time.Duration
	entries   map[string][]*types.MetricsSnapshot
}

// NewHistory creates a snapshot history with the given retention window.
func NewHistory(retention time.Duration) *History {
	return &History{
		retention: retention,
		entries:   make(map[string][]*types.MetricsSnapshot),
	}
}

// Append records a snapshot and prunes expired entries for its pair.
func (h *History) Append(snap *types.MetricsSnapshot) {
	key := pairKey(snap.LearnerID, snap.SessionID)
	cutoff := snap.Timestamp.Add(-h.retention)

	h.mu.Lock()
	defer h.mu.Unlock()

	run := append(h.entries[key], snap)
	start := 0
	for start < len(run) && run[start].Timestamp.Before(cutoff) {
		start++
	}
	h.entries[key] = run[start:]
}

// Recent returns the pair's snapshots with Timestamp >= since, oldest first.
func (h *History) Recent(learnerID, sessionID string, since time.Time) []*types.MetricsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	run := h.entries[pairKey(learnerID, sessionID)]
	var out []*types.MetricsSnapshot
	for _, snap := range run {
		if !snap.Timestamp.Before(since) {
			out = append(out, snap)
		}
	}
	return out
}

// Forget drops all history for a pair once monitoring stops.
func (h *History) Forget(learnerID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, pairKey(learnerID, sessionID))
}

func pairKey(learnerID, sessionID string) string {
	return learnerID + ":" + sessionID
}
