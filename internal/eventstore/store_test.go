package eventstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Options{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedSession(t *testing.T, store *Store, sessionID, learnerID string, createdAt time.Time) {
	t.Helper()

	err := store.InsertSession(context.Background(), &types.SessionMeta{
		ID:              sessionID,
		LearnerID:       learnerID,
		DifficultyLevel: 3,
		TargetCount:     20,
		CreatedAt:       createdAt,
		Status:          "active",
	})
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
}

func seedEvent(t *testing.T, store *Store, id, learnerID, sessionID string, correct bool, timeSpent float64, createdAt time.Time) {
	t.Helper()

	err := store.InsertEvent(context.Background(), &types.AnswerEvent{
		ID:         id,
		LearnerID:  learnerID,
		SessionID:  sessionID,
		Correct:    correct,
		TimeSpent:  timeSpent,
		Difficulty: 3,
		CreatedAt:  createdAt,
	})
	if err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}
}

func TestSessionMeta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Now().Add(-10 * time.Minute).UTC().Truncate(time.Second)
	seedSession(t, store, "sess-1", "learner-1", created)

	meta, err := store.SessionMeta(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SessionMeta failed: %v", err)
	}
	if meta.LearnerID != "learner-1" {
		t.Errorf("expected learner-1, got %s", meta.LearnerID)
	}
	if meta.TargetCount != 20 {
		t.Errorf("expected target 20, got %d", meta.TargetCount)
	}
	if meta.Ended() {
		t.Error("active session should not report ended")
	}
}

func TestSessionMetaNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SessionMeta(context.Background(), "nope")
	if !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestEndSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedSession(t, store, "sess-1", "learner-1", time.Now().Add(-time.Hour))

	if err := store.EndSession(ctx, "sess-1"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	meta, err := store.SessionMeta(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SessionMeta failed: %v", err)
	}
	if !meta.Ended() {
		t.Error("ended session should report ended")
	}
	if meta.EndedAt == nil {
		t.Error("ended session should carry ended_at")
	}
}

func TestEventsSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	seedSession(t, store, "sess-1", "learner-1", base)

	for i := 0; i < 5; i++ {
		seedEvent(t, store, fmt.Sprintf("e%d", i), "learner-1", "sess-1",
			i%2 == 0, 30.0+float64(i), base.Add(time.Duration(i)*time.Minute))
	}
	// Different learner and session rows must not leak in.
	seedSession(t, store, "sess-2", "learner-2", base)
	seedEvent(t, store, "other-1", "learner-2", "sess-2", true, 25, base.Add(time.Minute))

	events, err := store.EventsSince(ctx, "learner-1", "sess-1", base)
	if err != nil {
		t.Fatalf("EventsSince failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].CreatedAt.Before(events[i-1].CreatedAt) {
			t.Error("events should be ordered oldest first")
		}
	}

	// The since bound excludes older events.
	events, err = store.EventsSince(ctx, "learner-1", "sess-1", base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("EventsSince failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events after cutoff, got %d", len(events))
	}
}

func TestEventsSinceEmpty(t *testing.T) {
	store := newTestStore(t)

	events, err := store.EventsSince(context.Background(), "learner-1", "sess-1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("EventsSince failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestHistoricalPerformance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	seedSession(t, store, "old-sess", "learner-1", base)
	if err := store.EndSession(ctx, "old-sess"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	// 4 events, 3 correct, times 20/30/40/50 -> avg 35, accuracy 0.75.
	times := []float64{20, 30, 40, 50}
	for i, ts := range times {
		seedEvent(t, store, fmt.Sprintf("h%d", i), "learner-1", "old-sess",
			i != 0, ts, base.Add(time.Duration(i)*time.Minute))
	}

	profile, err := store.HistoricalPerformance(ctx, "learner-1", 30)
	if err != nil {
		t.Fatalf("HistoricalPerformance failed: %v", err)
	}

	if profile.SampleCount != 4 {
		t.Errorf("expected 4 samples, got %d", profile.SampleCount)
	}
	if profile.TypicalAnswerTime != 35 {
		t.Errorf("expected typical answer time 35, got %f", profile.TypicalAnswerTime)
	}
	if profile.TypicalAccuracy != 0.75 {
		t.Errorf("expected typical accuracy 0.75, got %f", profile.TypicalAccuracy)
	}
	if profile.PreferredDifficulty != 3 {
		t.Errorf("expected preferred difficulty 3, got %d", profile.PreferredDifficulty)
	}
}

func TestHistoricalPerformanceNoHistory(t *testing.T) {
	store := newTestStore(t)

	profile, err := store.HistoricalPerformance(context.Background(), "fresh-learner", 30)
	if err != nil {
		t.Fatalf("HistoricalPerformance failed: %v", err)
	}
	if profile.SampleCount != 0 {
		t.Errorf("expected zero samples, got %d", profile.SampleCount)
	}
	if profile.TypicalAnswerTime != 0 || profile.TypicalAccuracy != 0 {
		t.Error("learner with no history should yield a zero-valued profile")
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
