// Package api is the collaborator-facing administrative surface. It carries
// no business logic, only HTTP handling and JSON serialization.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"classpulse/internal/websocket"
	"classpulse/pkg/types"
)

// Health status tiers are derived from fixed load thresholds.
const (
	healthMaxConnections = 100
	healthMaxLearners    = 50
)

// Registry is the slice of the connection registry the admin surface needs.
type Registry interface {
	Stats() types.RegistryStats
	Connections(learnerID, sessionID string) []types.ConnectionInfo
	BroadcastLearner(learnerID string, msg map[string]interface{}) int
	BroadcastSession(learnerID, sessionID string, msg map[string]interface{}) int
	DisconnectLearner(learnerID, sessionID string) int
}

// Monitor is the slice of the push service the admin surface needs.
type Monitor interface {
	Start(learnerID, sessionID string) bool
	Stop(learnerID, sessionID string)
	IsActive(learnerID, sessionID string) bool
	ActiveCount() int
}

// Server handles administrative HTTP requests.
type Server struct {
	registry Registry
	monitor  Monitor
	router   *http.ServeMux
}

// NewServer creates the admin API server and sets up routing.
func NewServer(registry Registry, monitor Monitor) *Server {
	s := &Server{
		registry: registry,
		monitor:  monitor,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/learners/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleLearners))))
	s.router.Handle("/api/monitors/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleMonitors))))
	s.router.Handle("/api/broadcast", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleBroadcast))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStats))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type StatsResponse struct {
	Connections    types.RegistryStats `json:"connections"`
	ActiveMonitors int                 `json:"active_monitors"`
	Timestamp      time.Time           `json:"timestamp"`
}

type ConnectionsResponse struct {
	LearnerID   string                 `json:"learner_id"`
	Connections []types.ConnectionInfo `json:"connections"`
}

type BroadcastRequest struct {
	LearnerID string                 `json:"learner_id"`
	SessionID string                 `json:"session_id,omitempty"`
	Message   map[string]interface{} `json:"message"`
}

type HealthResponse struct {
	Status         string              `json:"status"`
	Timestamp      time.Time           `json:"timestamp"`
	Connections    types.RegistryStats `json:"connections"`
	ActiveMonitors int                 `json:"active_monitors"`
}

// handleLearners serves GET and DELETE on /api/learners/{id}/connections.
func (s *Server) handleLearners(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/learners/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "connections" {
		s.sendError(w, "Expected /api/learners/{id}/connections", http.StatusNotFound)
		return
	}
	learnerID := parts[0]
	if !types.IsValidID(learnerID) {
		s.sendError(w, "Invalid learner ID format", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		conns := s.registry.Connections(learnerID, r.URL.Query().Get("session_id"))
		if conns == nil {
			conns = []types.ConnectionInfo{}
		}
		json.NewEncoder(w).Encode(ConnectionsResponse{
			LearnerID:   learnerID,
			Connections: conns,
		})

	case http.MethodDelete:
		dropped := s.registry.DisconnectLearner(learnerID, r.URL.Query().Get("session_id"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"learner_id":   learnerID,
			"disconnected": dropped,
		})

	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMonitors serves POST and DELETE on /api/monitors/{learner}/{session}.
func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/monitors/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		s.sendError(w, "Expected /api/monitors/{learner_id}/{session_id}", http.StatusNotFound)
		return
	}
	learnerID, sessionID := parts[0], parts[1]
	if !types.IsValidID(learnerID) || !types.IsValidID(sessionID) {
		s.sendError(w, "Invalid ID format", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		if !s.monitor.Start(learnerID, sessionID) {
			s.sendError(w, "Session not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"learner_id": learnerID,
			"session_id": sessionID,
			"active":     true,
		})

	case http.MethodDelete:
		s.monitor.Stop(learnerID, sessionID)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"learner_id": learnerID,
			"session_id": sessionID,
			"active":     false,
		})

	case http.MethodGet:
		json.NewEncoder(w).Encode(map[string]interface{}{
			"learner_id": learnerID,
			"session_id": sessionID,
			"active":     s.monitor.IsActive(learnerID, sessionID),
		})

	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleBroadcast sends an arbitrary message to a learner, or to one of the
// learner's sessions when session_id is present.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidID(req.LearnerID) {
		s.sendError(w, "Invalid learner_id", http.StatusBadRequest)
		return
	}
	if len(req.Message) == 0 {
		s.sendError(w, "Message is required", http.StatusBadRequest)
		return
	}

	frameType := "broadcast"
	if t, ok := req.Message["type"].(string); ok && t != "" {
		frameType = t
	}
	fields := make(map[string]interface{}, len(req.Message))
	for k, v := range req.Message {
		if k != "type" {
			fields[k] = v
		}
	}
	msg := websocket.Frame(frameType, fields)

	var sent int
	if req.SessionID != "" {
		sent = s.registry.BroadcastSession(req.LearnerID, req.SessionID, msg)
	} else {
		sent = s.registry.BroadcastLearner(req.LearnerID, msg)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"learner_id": req.LearnerID,
		"session_id": req.SessionID,
		"delivered":  sent,
	})
}

// handleStats serves GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	json.NewEncoder(w).Encode(StatsResponse{
		Connections:    s.registry.Stats(),
		ActiveMonitors: s.monitor.ActiveCount(),
		Timestamp:      time.Now(),
	})
}

// healthCheck reports a status tier derived from connection load.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.Stats()

	status := "healthy"
	if stats.TotalConnections > healthMaxConnections || stats.Learners > healthMaxLearners {
		status = "warning"
	}

	json.NewEncoder(w).Encode(HealthResponse{
		Status:         status,
		Timestamp:      time.Now(),
		Connections:    stats,
		ActiveMonitors: s.monitor.ActiveCount(),
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
