// Package push owns the per-session monitoring lifecycle: one loop per
// actively monitored (learner, session) pair that collects metrics and fans
// them out to the pair's live connections.
package push

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"classpulse/internal/metrics"
	"classpulse/internal/websocket"
	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

// Broadcaster is the slice of the connection registry the push loops need.
type Broadcaster interface {
	BroadcastSession(learnerID, sessionID string, msg map[string]interface{}) int
}

// Service runs the push loops. Each monitored pair is inactive or active;
// Start and Stop transition between the two and both are idempotent.
type Service struct {
	collector interfaces.Collector
	store     interfaces.EventStore
	registry  Broadcaster
	tunables  *metrics.Tunables

	mu       sync.Mutex
	monitors map[string]*monitor
}

// monitor is one active push loop's tracked handle. Stop cancels the loop's
// context and joins on done, so a completed Stop never leaves the task
// running.
type monitor struct {
	learnerID string
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewService creates a push service.
func NewService(collector interfaces.Collector, store interfaces.EventStore, registry Broadcaster, tunables *metrics.Tunables) *Service {
	return &Service{
		collector: collector,
		store:     store,
		registry:  registry,
		tunables:  tunables,
		monitors:  make(map[string]*monitor),
	}
}

// Start begins monitoring a pair. Starting an already-monitored pair is a
// no-op returning true. Returns false when the session cannot be prepared,
// for example because it does not exist.
func (s *Service) Start(learnerID, sessionID string) bool {
	key := monitorKey(learnerID, sessionID)

	s.mu.Lock()
	if _, ok := s.monitors[key]; ok {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	// Baseline establishment does store IO; keep it outside the lock.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := s.collector.Prepare(ctx, learnerID, sessionID)
	cancel()
	if err != nil {
		log.Printf("Cannot start monitoring learner=%s session=%s: %v", learnerID, sessionID, err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[key]; ok {
		return true
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	m := &monitor{
		learnerID: learnerID,
		sessionID: sessionID,
		cancel:    loopCancel,
		done:      make(chan struct{}),
	}
	s.monitors[key] = m
	go s.run(loopCtx, m)

	log.Printf("Monitoring started: learner=%s session=%s", learnerID, sessionID)
	return true
}

// Stop cancels the pair's loop, waits for it to exit, takes a closing
// snapshot, and broadcasts monitoring_stopped. Stopping an unmonitored pair
// is a no-op.
func (s *Service) Stop(learnerID, sessionID string) {
	key := monitorKey(learnerID, sessionID)

	s.mu.Lock()
	m, ok := s.monitors[key]
	if ok {
		delete(s.monitors, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	m.cancel()
	<-m.done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fields := map[string]interface{}{
		"learner_id": learnerID,
		"session_id": sessionID,
	}
	if snap, _, err := s.collector.Collect(ctx, learnerID, sessionID); err == nil {
		fields["final_metrics"] = snap
	} else {
		log.Printf("Closing snapshot failed for learner=%s session=%s: %v", learnerID, sessionID, err)
	}
	s.registry.BroadcastSession(learnerID, sessionID, websocket.Frame(types.FrameMonitoringStopped, fields))

	s.collector.Forget(learnerID, sessionID)
	log.Printf("Monitoring stopped: learner=%s session=%s", learnerID, sessionID)
}

// StopAll stops every active monitor. Used during shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	pairs := make([][2]string, 0, len(s.monitors))
	for _, m := range s.monitors {
		pairs = append(pairs, [2]string{m.learnerID, m.sessionID})
	}
	s.mu.Unlock()

	for _, p := range pairs {
		s.Stop(p[0], p[1])
	}
}

// IsActive reports whether a pair is currently monitored.
func (s *Service) IsActive(learnerID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitors[monitorKey(learnerID, sessionID)]
	return ok
}

// ActiveCount returns the number of running push loops.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.monitors)
}

// ApplyConfig implements the update_config surface: it adjusts the shared
// tunables for subsequent ticks, process-wide.
func (s *Service) ApplyConfig(changes map[string]interface{}) map[string]interface{} {
	applied := s.tunables.Apply(changes)
	if len(applied) > 0 {
		log.Printf("Runtime config updated: %v", applied)
	}
	return applied
}

// run is one pair's push loop. Each tick collects a snapshot and broadcasts
// it, then any alerts, to the session's connections. Collection errors skip
// the broadcast for that tick without terminating the loop; the loop
// self-terminates when the session record reports closed.
func (s *Service) run(ctx context.Context, m *monitor) {
	defer close(m.done)

	for {
		// Re-read each tick so update_config takes effect immediately.
		interval := s.tunables.PushInterval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		tickCtx, cancel := context.WithTimeout(ctx, interval*4+time.Second)
		ended := s.tick(tickCtx, m)
		cancel()

		if ended {
			key := monitorKey(m.learnerID, m.sessionID)
			if s.removeIfCurrent(key, m) {
				s.registry.BroadcastSession(m.learnerID, m.sessionID,
					websocket.Frame(types.FrameMonitoringStopped, map[string]interface{}{
						"learner_id": m.learnerID,
						"session_id": m.sessionID,
						"reason":     "session ended",
					}))
				s.collector.Forget(m.learnerID, m.sessionID)
				log.Printf("Monitoring self-terminated, session closed: learner=%s session=%s", m.learnerID, m.sessionID)
			}
			return
		}
	}
}

// tick runs one collection cycle and broadcast. Returns true when the
// session has closed and the loop should end.
func (s *Service) tick(ctx context.Context, m *monitor) bool {
	meta, err := s.store.SessionMeta(ctx, m.sessionID)
	if err == nil && meta.Ended() {
		return true
	}

	snap, alerts, err := s.collector.Collect(ctx, m.learnerID, m.sessionID)
	if err != nil {
		// Skip the broadcast this tick; the cached snapshot stays
		// authoritative and the loop retries next tick.
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			log.Printf("Collection skipped, session unknown: learner=%s session=%s", m.learnerID, m.sessionID)
		} else {
			log.Printf("Collection failed: learner=%s session=%s: %v", m.learnerID, m.sessionID, err)
		}
		return false
	}

	// The metrics frame always precedes alert frames from the same snapshot.
	s.registry.BroadcastSession(m.learnerID, m.sessionID,
		websocket.Frame(types.FrameRealTimeMetrics, map[string]interface{}{
			"metrics": snap,
		}))

	for _, alert := range alerts {
		s.registry.BroadcastSession(m.learnerID, m.sessionID,
			websocket.Frame(types.FrameAlert, map[string]interface{}{
				"alert":  alert,
				"urgent": alert.Severity == types.SeverityCritical,
			}))
	}

	return false
}

// removeIfCurrent deletes the monitor entry only if it is still the one
// registered, so a concurrent Stop keeps sole ownership of its broadcast.
func (s *Service) removeIfCurrent(key string, m *monitor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitors[key] == m {
		delete(s.monitors, key)
		return true
	}
	return false
}

func monitorKey(learnerID, sessionID string) string {
	return learnerID + ":" + sessionID
}
