package push

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classpulse/internal/config"
	"classpulse/internal/metrics"
	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

type fakeCollector struct {
	mu         sync.Mutex
	prepareErr error
	collectErr error
	alerts     []types.Alert
	prepares   int
	collects   int
	forgets    int
}

func (f *fakeCollector) Prepare(ctx context.Context, learnerID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepares++
	return f.prepareErr
}

func (f *fakeCollector) Collect(ctx context.Context, learnerID, sessionID string) (*types.MetricsSnapshot, []types.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collects++
	if f.collectErr != nil {
		return nil, nil, f.collectErr
	}
	snap := &types.MetricsSnapshot{LearnerID: learnerID, SessionID: sessionID, Timestamp: time.Now()}
	return snap, f.alerts, nil
}

func (f *fakeCollector) Forget(learnerID, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgets++
}

func (f *fakeCollector) counts() (prepares, collects, forgets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepares, f.collects, f.forgets
}

type fakeSessionStore struct {
	mu    sync.Mutex
	ended bool
}

func (f *fakeSessionStore) EventsSince(ctx context.Context, learnerID, sessionID string, since time.Time) ([]types.AnswerEvent, error) {
	return nil, nil
}

func (f *fakeSessionStore) SessionMeta(ctx context.Context, sessionID string) (*types.SessionMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta := &types.SessionMeta{ID: sessionID, LearnerID: "l1", Status: "active", CreatedAt: time.Now().Add(-time.Hour)}
	if f.ended {
		meta.Status = "ended"
	}
	return meta, nil
}

func (f *fakeSessionStore) HistoricalPerformance(ctx context.Context, learnerID string, lookbackDays int) (*types.BaselineProfile, error) {
	return &types.BaselineProfile{LearnerID: learnerID}, nil
}

func (f *fakeSessionStore) endSession() {
	f.mu.Lock()
	f.ended = true
	f.mu.Unlock()
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	frames []map[string]interface{}
}

func (f *fakeBroadcaster) BroadcastSession(learnerID, sessionID string, msg map[string]interface{}) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, msg)
	return 1
}

func (f *fakeBroadcaster) snapshot() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, len(f.frames))
	copy(out, f.frames)
	return out
}

func newTestService(pushInterval time.Duration) (*Service, *fakeCollector, *fakeSessionStore, *fakeBroadcaster) {
	collector := &fakeCollector{}
	store := &fakeSessionStore{}
	broadcaster := &fakeBroadcaster{}
	tunables := metrics.NewTunables(config.DefaultConfig().Metrics, pushInterval)
	svc := NewService(collector, store, broadcaster, tunables)
	return svc, collector, store, broadcaster
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestStartIdempotent(t *testing.T) {
	svc, collector, _, _ := newTestService(time.Hour)
	defer svc.StopAll()

	if !svc.Start("l1", "s1") {
		t.Fatal("first Start should succeed")
	}
	if !svc.Start("l1", "s1") {
		t.Fatal("second Start should be a successful no-op")
	}

	if svc.ActiveCount() != 1 {
		t.Errorf("expected 1 active monitor, got %d", svc.ActiveCount())
	}
	if prepares, _, _ := collector.counts(); prepares != 1 {
		t.Errorf("baseline preparation should run once, got %d", prepares)
	}
}

func TestStartFailsWhenPrepareFails(t *testing.T) {
	svc, collector, _, _ := newTestService(time.Hour)
	collector.prepareErr = interfaces.ErrSessionNotFound

	if svc.Start("l1", "missing") {
		t.Fatal("Start should fail for an unpreparable session")
	}
	if svc.IsActive("l1", "missing") {
		t.Error("failed Start must not leave a monitor behind")
	}
}

func TestStopUnknownPairIsNoOp(t *testing.T) {
	svc, collector, _, broadcaster := newTestService(time.Hour)

	svc.Stop("l1", "never-started")

	if _, _, forgets := collector.counts(); forgets != 0 {
		t.Error("stopping an unmonitored pair should not touch the collector")
	}
	if len(broadcaster.snapshot()) != 0 {
		t.Error("stopping an unmonitored pair should not broadcast")
	}
}

func TestStopBroadcastsFinalSnapshot(t *testing.T) {
	svc, collector, _, broadcaster := newTestService(time.Hour)

	if !svc.Start("l1", "s1") {
		t.Fatal("Start failed")
	}
	svc.Stop("l1", "s1")

	if svc.IsActive("l1", "s1") {
		t.Error("pair should be inactive after Stop")
	}
	if _, _, forgets := collector.counts(); forgets != 1 {
		t.Errorf("Stop should release collector state, got %d forgets", forgets)
	}

	frames := broadcaster.snapshot()
	if len(frames) != 1 {
		t.Fatalf("expected one monitoring_stopped frame, got %d", len(frames))
	}
	if frames[0]["type"] != types.FrameMonitoringStopped {
		t.Errorf("expected monitoring_stopped, got %v", frames[0]["type"])
	}
	if _, ok := frames[0]["final_metrics"]; !ok {
		t.Error("monitoring_stopped should carry the closing snapshot")
	}

	// Stop again: already inactive, nothing more happens.
	svc.Stop("l1", "s1")
	if len(broadcaster.snapshot()) != 1 {
		t.Error("repeated Stop must not broadcast again")
	}
}

func TestPushLoopOrdersMetricsBeforeAlerts(t *testing.T) {
	svc, collector, _, broadcaster := newTestService(20 * time.Millisecond)
	defer svc.StopAll()

	collector.alerts = []types.Alert{{
		Kind:     types.AlertConsecutiveErrors,
		Severity: types.SeverityCritical,
	}}

	if !svc.Start("l1", "s1") {
		t.Fatal("Start failed")
	}

	if !waitFor(t, 2*time.Second, func() bool {
		frames := broadcaster.snapshot()
		alerts := 0
		for _, f := range frames {
			if f["type"] == types.FrameAlert {
				alerts++
			}
		}
		return alerts >= 2
	}) {
		t.Fatal("push loop never delivered alerts")
	}

	sawMetrics := false
	for _, f := range broadcaster.snapshot() {
		switch f["type"] {
		case types.FrameRealTimeMetrics:
			sawMetrics = true
		case types.FrameAlert:
			if !sawMetrics {
				t.Fatal("an alert frame arrived before any metrics frame")
			}
			if f["urgent"] != true {
				t.Error("critical alerts should be flagged urgent")
			}
		}
	}
}

func TestPushLoopSurvivesCollectErrors(t *testing.T) {
	svc, collector, _, broadcaster := newTestService(20 * time.Millisecond)
	defer svc.StopAll()

	collector.collectErr = errors.New("store briefly down")

	if !svc.Start("l1", "s1") {
		t.Fatal("Start failed")
	}

	if !waitFor(t, 2*time.Second, func() bool {
		_, collects, _ := collector.counts()
		return collects >= 3
	}) {
		t.Fatal("push loop stopped retrying after errors")
	}

	if !svc.IsActive("l1", "s1") {
		t.Error("collection errors must not terminate the loop")
	}
	if len(broadcaster.snapshot()) != 0 {
		t.Error("failed cycles must not broadcast")
	}
}

func TestPushLoopSelfTerminatesWhenSessionEnds(t *testing.T) {
	svc, collector, store, broadcaster := newTestService(20 * time.Millisecond)

	if !svc.Start("l1", "s1") {
		t.Fatal("Start failed")
	}

	store.endSession()

	if !waitFor(t, 2*time.Second, func() bool { return !svc.IsActive("l1", "s1") }) {
		t.Fatal("loop never self-terminated after the session ended")
	}

	if !waitFor(t, time.Second, func() bool {
		frames := broadcaster.snapshot()
		for _, f := range frames {
			if f["type"] == types.FrameMonitoringStopped {
				return true
			}
		}
		return false
	}) {
		t.Error("self-termination should broadcast monitoring_stopped")
	}

	if !waitFor(t, time.Second, func() bool {
		_, _, forgets := collector.counts()
		return forgets == 1
	}) {
		t.Error("self-termination should release collector state")
	}
}

func TestStopAll(t *testing.T) {
	svc, _, _, _ := newTestService(time.Hour)

	svc.Start("l1", "s1")
	svc.Start("l2", "s2")
	svc.Start("l3", "s3")

	svc.StopAll()

	if svc.ActiveCount() != 0 {
		t.Errorf("expected no active monitors, got %d", svc.ActiveCount())
	}
}

func TestApplyConfig(t *testing.T) {
	svc, _, _, _ := newTestService(time.Second)

	applied := svc.ApplyConfig(map[string]interface{}{
		"push_interval_seconds": 3.0,
		"bogus":                 1.0,
	})

	if applied["push_interval_seconds"] != 3.0 {
		t.Errorf("expected applied interval, got %v", applied)
	}
	if _, ok := applied["bogus"]; ok {
		t.Error("unknown keys must not be reported as applied")
	}
}
