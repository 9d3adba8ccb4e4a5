package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the platform's edge; the monitor
		// itself accepts any origin.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// ConfigSink receives update_config payloads from clients.
type ConfigSink interface {
	ApplyConfig(changes map[string]interface{}) map[string]interface{}
}

// Handler upgrades client connections and services their inbound messages.
type Handler struct {
	registry     *Registry
	store        interfaces.EventStore
	collector    interfaces.Collector
	configSink   ConfigSink
	bufferSize   int
	writeTimeout time.Duration
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, store interfaces.EventStore, collector interfaces.Collector, configSink ConfigSink, bufferSize int, writeTimeout time.Duration) *Handler {
	return &Handler{
		registry:     registry,
		store:        store,
		collector:    collector,
		configSink:   configSink,
		bufferSize:   bufferSize,
		writeTimeout: writeTimeout,
	}
}

// HandleWebSocket validates the request, upgrades it, and registers the
// connection. Validation happens before the upgrade so rejected requests get
// proper HTTP status codes; cap refusal happens after, with a close frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	learnerID := r.URL.Query().Get("learner_id")
	sessionID := r.URL.Query().Get("session_id")

	if learnerID == "" || sessionID == "" {
		http.Error(w, "Missing required query parameters: learner_id, session_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidID(learnerID) {
		http.Error(w, "Invalid learner_id format", http.StatusBadRequest)
		return
	}
	if !types.IsValidID(sessionID) {
		http.Error(w, "Invalid session_id format", http.StatusBadRequest)
		return
	}

	meta, err := h.store.SessionMeta(r.Context(), sessionID)
	if err != nil {
		if err == interfaces.ErrSessionNotFound {
			http.Error(w, "Session not found", http.StatusNotFound)
		} else {
			http.Error(w, "Session validation failed", http.StatusInternalServerError)
		}
		return
	}
	if meta.LearnerID != learnerID {
		http.Error(w, "Session does not belong to this learner", http.StatusForbidden)
		return
	}
	if meta.Ended() {
		http.Error(w, "Session has ended", http.StatusNotFound)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, learnerID, sessionID, h.bufferSize, h.writeTimeout)

	if !h.registry.Register(conn) {
		log.Printf("Connection refused, learner at capacity: learner=%s", learnerID)
		_ = conn.CloseWithCode(types.CloseConnectionLimit, "connection limit exceeded")
		return
	}

	go h.readPump(conn)
}

// inboundMessage is the shape of client frames.
type inboundMessage struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// readPump services a connection's inbound stream until it closes.
// Malformed JSON and unrecognized types are logged and ignored without
// closing the connection.
func (h *Handler) readPump(conn *Connection) {
	defer h.registry.Unregister(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: learner=%s conn=%s: %v", conn.LearnerID(), conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Ignoring malformed client message: learner=%s: %v", conn.LearnerID(), err)
			continue
		}

		switch msg.Type {
		case types.ClientPing:
			_ = h.registry.Send(conn, Frame(types.FramePong, nil))

		case types.ClientRequestMetrics:
			h.sendCurrentMetrics(conn)

		case types.ClientUpdateConfig:
			applied := h.configSink.ApplyConfig(msg.Config)
			_ = h.registry.Send(conn, Frame(types.FrameConfigUpdated, map[string]interface{}{
				"config": applied,
			}))

		default:
			log.Printf("Ignoring unrecognized client message type %q: learner=%s", msg.Type, conn.LearnerID())
		}
	}
}

// sendCurrentMetrics runs a one-off collection, independent of the push
// loop's cadence, and replies on the requesting connection only.
func (h *Handler) sendCurrentMetrics(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, alerts, err := h.collector.Collect(ctx, conn.LearnerID(), conn.SessionID())
	if err != nil {
		log.Printf("On-demand collection failed: learner=%s session=%s: %v", conn.LearnerID(), conn.SessionID(), err)
		return
	}

	_ = h.registry.Send(conn, Frame(types.FrameCurrentMetrics, map[string]interface{}{
		"metrics": snap,
		"alerts":  alerts,
	}))
}
