package metrics

import (
	"testing"
	"time"

	"classpulse/pkg/types"
)

func snapAt(learnerID, sessionID string, ts time.Time) *types.MetricsSnapshot {
	return &types.MetricsSnapshot{LearnerID: learnerID, SessionID: sessionID, Timestamp: ts}
}

func TestHistoryAppendAndRecent(t *testing.T) {
	h := NewHistory(30 * time.Minute)
	now := time.Now()

	for i := 4; i >= 0; i-- {
		h.Append(snapAt("l1", "s1", now.Add(-time.Duration(i)*time.Minute)))
	}

	all := h.Recent("l1", "s1", now.Add(-time.Hour))
	if len(all) != 5 {
		t.Fatalf("expected 5 snapshots, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Error("snapshots should come back oldest first")
		}
	}

	recent := h.Recent("l1", "s1", now.Add(-90*time.Second))
	if len(recent) != 2 {
		t.Errorf("expected 2 snapshots within 90s, got %d", len(recent))
	}
}

func TestHistoryPrunesExpired(t *testing.T) {
	h := NewHistory(10 * time.Minute)
	now := time.Now()

	h.Append(snapAt("l1", "s1", now.Add(-time.Hour)))
	h.Append(snapAt("l1", "s1", now))

	all := h.Recent("l1", "s1", now.Add(-2*time.Hour))
	if len(all) != 1 {
		t.Errorf("expired snapshot should be pruned on append, got %d", len(all))
	}
}

func TestHistoryPairIsolation(t *testing.T) {
	h := NewHistory(30 * time.Minute)
	now := time.Now()

	h.Append(snapAt("l1", "s1", now))
	h.Append(snapAt("l1", "s2", now))
	h.Append(snapAt("l2", "s1", now))

	if n := len(h.Recent("l1", "s1", now.Add(-time.Minute))); n != 1 {
		t.Errorf("expected 1 snapshot for l1/s1, got %d", n)
	}
}

func TestHistoryForget(t *testing.T) {
	h := NewHistory(30 * time.Minute)
	now := time.Now()

	h.Append(snapAt("l1", "s1", now))
	h.Append(snapAt("l1", "s2", now))
	h.Forget("l1", "s1")

	if n := len(h.Recent("l1", "s1", now.Add(-time.Minute))); n != 0 {
		t.Errorf("forgotten pair should have no history, got %d", n)
	}
	if n := len(h.Recent("l1", "s2", now.Add(-time.Minute))); n != 1 {
		t.Errorf("other pair should be untouched, got %d", n)
	}
}
