package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"classpulse/pkg/types"
)

// Registry tracks live push-capable connections keyed by learner and
// partitioned by session. Mutation is serialized per learner bucket rather
// than under one process-wide lock, so fan-out for one learner never stalls
// unrelated learners.
type Registry struct {
	mu      sync.RWMutex // protects the bucket map only
	buckets map[string]*learnerBucket

	maxPerLearner     int
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// learnerBucket owns one learner's registrations.
type learnerBucket struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Connection // sessionID -> connID -> conn
	count    int
}

// Options configures registry limits and heartbeat cadence.
type Options struct {
	MaxPerLearner     int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// NewRegistry creates a connection registry.
func NewRegistry(opts Options) *Registry {
	if opts.MaxPerLearner <= 0 {
		opts.MaxPerLearner = 5
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 5 * time.Minute
	}
	return &Registry{
		buckets:           make(map[string]*learnerBucket),
		maxPerLearner:     opts.MaxPerLearner,
		heartbeatInterval: opts.HeartbeatInterval,
		heartbeatTimeout:  opts.HeartbeatTimeout,
	}
}

// Register stores a registration, starts its heartbeat task, and sends the
// connection_established frame. Returns false when the learner already holds
// the maximum allowed connections; the caller must close the connection.
func (r *Registry) Register(conn *Connection) bool {
	if conn == nil {
		return false
	}

	// Take the bucket lock before releasing the map lock so a concurrent
	// prune cannot drop the bucket between lookup and insert.
	r.mu.Lock()
	bucket := r.buckets[conn.LearnerID()]
	if bucket == nil {
		bucket = &learnerBucket{sessions: make(map[string]map[string]*Connection)}
		r.buckets[conn.LearnerID()] = bucket
	}
	bucket.mu.Lock()
	r.mu.Unlock()

	if bucket.count >= r.maxPerLearner {
		bucket.mu.Unlock()
		return false
	}
	sess := bucket.sessions[conn.SessionID()]
	if sess == nil {
		sess = make(map[string]*Connection)
		bucket.sessions[conn.SessionID()] = sess
	}
	sess[conn.ID()] = conn
	bucket.count++
	bucket.mu.Unlock()

	go r.heartbeatLoop(conn)

	if err := conn.WriteJSON(Frame(types.FrameConnectionEstablished, map[string]interface{}{
		"learner_id": conn.LearnerID(),
		"session_id": conn.SessionID(),
	})); err != nil {
		log.Printf("Failed to send connection_established to learner=%s: %v", conn.LearnerID(), err)
	}

	log.Printf("Connection registered: learner=%s session=%s conn=%s", conn.LearnerID(), conn.SessionID(), conn.ID())
	return true
}

// Unregister removes a registration, closes the connection (which cancels
// its heartbeat task), and prunes now-empty session and learner buckets.
// Idempotent; this is the single disconnect path for every trigger.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	bucket := r.bucket(conn.LearnerID())
	if bucket == nil {
		_ = conn.Close()
		return
	}

	removed := false
	bucket.mu.Lock()
	if sess, ok := bucket.sessions[conn.SessionID()]; ok {
		if sess[conn.ID()] == conn {
			delete(sess, conn.ID())
			bucket.count--
			removed = true
			if len(sess) == 0 {
				delete(bucket.sessions, conn.SessionID())
			}
		}
	}
	empty := bucket.count == 0
	bucket.mu.Unlock()

	if empty {
		r.dropBucketIfEmpty(conn.LearnerID(), bucket)
	}

	_ = conn.Close()

	if removed {
		log.Printf("Connection unregistered: learner=%s session=%s conn=%s", conn.LearnerID(), conn.SessionID(), conn.ID())
	}
}

// Send delivers one message best-effort. A transport failure removes the
// connection through the same path as an explicit disconnect.
func (r *Registry) Send(conn *Connection, msg map[string]interface{}) error {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Send failed, removing connection learner=%s conn=%s: %v", conn.LearnerID(), conn.ID(), err)
		r.Unregister(conn)
		return err
	}
	return nil
}

// BroadcastSession fans a message out to the pair's live connections.
// Individual failures remove the failing connection without aborting
// delivery to the others. Returns the number of successful sends.
func (r *Registry) BroadcastSession(learnerID, sessionID string, msg map[string]interface{}) int {
	bucket := r.bucket(learnerID)
	if bucket == nil {
		return 0
	}

	bucket.mu.RLock()
	conns := make([]*Connection, 0, len(bucket.sessions[sessionID]))
	for _, conn := range bucket.sessions[sessionID] {
		conns = append(conns, conn)
	}
	bucket.mu.RUnlock()

	sent := 0
	for _, conn := range conns {
		if r.Send(conn, msg) == nil {
			sent++
		}
	}
	return sent
}

// BroadcastLearner fans a message out to all of the learner's connections
// across sessions.
func (r *Registry) BroadcastLearner(learnerID string, msg map[string]interface{}) int {
	bucket := r.bucket(learnerID)
	if bucket == nil {
		return 0
	}

	bucket.mu.RLock()
	var conns []*Connection
	for _, sess := range bucket.sessions {
		for _, conn := range sess {
			conns = append(conns, conn)
		}
	}
	bucket.mu.RUnlock()

	sent := 0
	for _, conn := range conns {
		if r.Send(conn, msg) == nil {
			sent++
		}
	}
	return sent
}

// Stats returns the registry's administrative summary.
func (r *Registry) Stats() types.RegistryStats {
	r.mu.RLock()
	buckets := make([]*learnerBucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		buckets = append(buckets, b)
	}
	r.mu.RUnlock()

	stats := types.RegistryStats{}
	sessions := make(map[string]bool)
	for _, b := range buckets {
		b.mu.RLock()
		if b.count > 0 {
			stats.Learners++
			stats.TotalConnections += b.count
			for sessionID := range b.sessions {
				sessions[sessionID] = true
			}
		}
		b.mu.RUnlock()
	}
	stats.Sessions = len(sessions)
	return stats
}

// Connections lists a learner's live registrations; sessionID narrows to one
// session when non-empty.
func (r *Registry) Connections(learnerID, sessionID string) []types.ConnectionInfo {
	bucket := r.bucket(learnerID)
	if bucket == nil {
		return nil
	}

	bucket.mu.RLock()
	defer bucket.mu.RUnlock()

	var infos []types.ConnectionInfo
	for sid, sess := range bucket.sessions {
		if sessionID != "" && sid != sessionID {
			continue
		}
		for _, conn := range sess {
			infos = append(infos, conn.Info())
		}
	}
	return infos
}

// DisconnectLearner force-closes a learner's connections, whole-learner or
// narrowed to one session. Returns the number of connections dropped.
func (r *Registry) DisconnectLearner(learnerID, sessionID string) int {
	bucket := r.bucket(learnerID)
	if bucket == nil {
		return 0
	}

	bucket.mu.RLock()
	var conns []*Connection
	for sid, sess := range bucket.sessions {
		if sessionID != "" && sid != sessionID {
			continue
		}
		for _, conn := range sess {
			conns = append(conns, conn)
		}
	}
	bucket.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.CloseWithCode(types.CloseAdminDisconnect, "disconnected by administrator")
		r.Unregister(conn)
	}
	return len(conns)
}

// CleanupStale closes connections whose last heartbeat exceeds the timeout.
// Returns the number of connections removed.
func (r *Registry) CleanupStale() int {
	r.mu.RLock()
	buckets := make([]*learnerBucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		buckets = append(buckets, b)
	}
	r.mu.RUnlock()

	cutoff := time.Now().Add(-r.heartbeatTimeout)
	removed := 0
	for _, b := range buckets {
		b.mu.RLock()
		var stale []*Connection
		for _, sess := range b.sessions {
			for _, conn := range sess {
				if conn.LastHeartbeat().Before(cutoff) {
					stale = append(stale, conn)
				}
			}
		}
		b.mu.RUnlock()

		for _, conn := range stale {
			log.Printf("Closing stale connection: learner=%s conn=%s last_heartbeat=%s",
				conn.LearnerID(), conn.ID(), conn.LastHeartbeat().Format(time.RFC3339))
			_ = conn.CloseWithCode(types.CloseHeartbeatTimeout, "heartbeat timeout")
			r.Unregister(conn)
			removed++
		}
	}
	return removed
}

// RunSweeper periodically cleans up stale connections until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.CleanupStale(); n > 0 {
				log.Printf("Stale connection sweep removed %d connections", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// CloseAll closes every connection during shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	buckets := make([]*learnerBucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		buckets = append(buckets, b)
	}
	r.mu.RUnlock()

	for _, b := range buckets {
		b.mu.RLock()
		var conns []*Connection
		for _, sess := range b.sessions {
			for _, conn := range sess {
				conns = append(conns, conn)
			}
		}
		b.mu.RUnlock()

		for _, conn := range conns {
			r.Unregister(conn)
		}
	}
}

// heartbeatLoop is the per-connection liveness task. It sends heartbeat
// frames on the configured interval and removes the connection when a send
// fails; it exits when the connection closes.
func (r *Registry) heartbeatLoop(conn *Connection) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := conn.WriteJSON(Frame(types.FrameHeartbeat, map[string]interface{}{
				"server_time": time.Now().UTC().Format(time.RFC3339),
			}))
			if err != nil {
				log.Printf("Heartbeat failed, removing connection learner=%s conn=%s: %v",
					conn.LearnerID(), conn.ID(), err)
				r.Unregister(conn)
				return
			}
			conn.Touch()

		case <-conn.Done():
			return
		}
	}
}

// bucket returns the learner's bucket, or nil when none exists.
func (r *Registry) bucket(learnerID string) *learnerBucket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buckets[learnerID]
}

// dropBucketIfEmpty removes a learner's bucket once its last registration is
// gone. The count is reread under both locks; Register holds the bucket lock
// from before it leaves the map, so an in-flight insert is always observed.
func (r *Registry) dropBucketIfEmpty(learnerID string, bucket *learnerBucket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buckets[learnerID] != bucket {
		return
	}
	bucket.mu.RLock()
	empty := bucket.count == 0
	bucket.mu.RUnlock()
	if empty {
		delete(r.buckets, learnerID)
	}
}
