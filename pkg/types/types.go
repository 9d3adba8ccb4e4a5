package types

import (
	"time"
)

// Outbound WebSocket frame types. Every server frame carries one of these
// in its "type" field plus an RFC3339 "timestamp".
const (
	FrameConnectionEstablished = "connection_established"
	FrameHeartbeat             = "heartbeat"
	FrameRealTimeMetrics       = "real_time_metrics"
	FrameAlert                 = "alert"
	FrameMonitoringStopped     = "monitoring_stopped"
	FramePong                  = "pong"
	FrameCurrentMetrics        = "current_metrics"
	FrameConfigUpdated         = "config_updated"
)

// Inbound client message types. Anything else is logged and ignored.
const (
	ClientPing           = "ping"
	ClientRequestMetrics = "request_metrics"
	ClientUpdateConfig   = "update_config"
)

// WebSocket close codes used when the server terminates a connection.
const (
	CloseHeartbeatTimeout = 4000
	CloseConnectionLimit  = 4001
	CloseAdminDisconnect  = 4002
)

// SpeedTrend classifies answer-speed movement over the sliding window.
type SpeedTrend string

const (
	TrendAccelerating     SpeedTrend = "accelerating"
	TrendDecelerating     SpeedTrend = "decelerating"
	TrendStable           SpeedTrend = "stable"
	TrendNoData           SpeedTrend = "no_data"
	TrendInsufficientData SpeedTrend = "insufficient_data"
)

// AccuracyTrend classifies recent accuracy against the prior window.
type AccuracyTrend string

const (
	AccuracyImproving        AccuracyTrend = "improving"
	AccuracyDeclining        AccuracyTrend = "declining"
	AccuracyStable           AccuracyTrend = "stable"
	AccuracyInsufficientData AccuracyTrend = "insufficient_data"
)

// Pace classifies completion rate against elapsed session time.
type Pace string

const (
	PaceAhead   Pace = "ahead"
	PaceBehind  Pace = "behind"
	PaceOnTrack Pace = "on_track"
)

// EngagementTier buckets activity rate in the trailing engagement window.
type EngagementTier string

const (
	EngagementHigh   EngagementTier = "high"
	EngagementMedium EngagementTier = "medium"
	EngagementLow    EngagementTier = "low"
)

// AdaptationStatus describes how well the current difficulty level fits.
type AdaptationStatus string

const (
	AdaptTooEasy     AdaptationStatus = "too_easy"
	AdaptTooHard     AdaptationStatus = "too_hard"
	AdaptAppropriate AdaptationStatus = "appropriate"
	AdaptNoData      AdaptationStatus = "no_data"
)

// DifficultySuggestion is the recommended difficulty adjustment.
type DifficultySuggestion string

const (
	SuggestIncrease DifficultySuggestion = "increase"
	SuggestDecrease DifficultySuggestion = "decrease"
	SuggestMaintain DifficultySuggestion = "maintain"
)

// AlertKind identifies the threshold condition an alert was raised for.
type AlertKind string

const (
	AlertAccuracyDrop      AlertKind = "accuracy_drop"
	AlertConsecutiveErrors AlertKind = "consecutive_errors"
	AlertSpeedDecline      AlertKind = "speed_decline"
	AlertLowEngagement     AlertKind = "low_engagement"
)

// AlertSeverity orders alerts for client presentation.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AnswerEvent is one persisted answer record from the activity log.
// This subsystem only ever reads these.
type AnswerEvent struct {
	ID         string    `json:"id"`
	LearnerID  string    `json:"learner_id"`
	SessionID  string    `json:"session_id"`
	Correct    bool      `json:"correct"`
	TimeSpent  float64   `json:"time_spent"` // seconds
	Difficulty int       `json:"difficulty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionMeta is the session record as stored by the platform.
type SessionMeta struct {
	ID              string     `json:"id"`
	LearnerID       string     `json:"learner_id"`
	DifficultyLevel int        `json:"difficulty_level"`
	TargetCount     int        `json:"target_count"`
	CreatedAt       time.Time  `json:"created_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Status          string     `json:"status"`
}

// Ended reports whether the session record is closed.
func (s *SessionMeta) Ended() bool {
	return s.Status == "ended" || s.EndedAt != nil
}

// BaselineProfile holds per-learner reference statistics computed once per
// monitored session from historical data. Immutable after creation.
type BaselineProfile struct {
	LearnerID           string    `json:"learner_id"`
	TypicalAnswerTime   float64   `json:"typical_answer_time"`  // seconds
	TypicalAccuracy     float64   `json:"typical_accuracy"`     // [0,1]
	TypicalSessionSecs  float64   `json:"typical_session_secs"` // seconds
	PreferredDifficulty int       `json:"preferred_difficulty"`
	SampleCount         int       `json:"sample_count"`
	ComputedAt          time.Time `json:"computed_at"`
}

// SpeedMetrics summarizes answer times within the trailing speed window.
type SpeedMetrics struct {
	Average     float64    `json:"average"`
	Trend       SpeedTrend `json:"trend"`
	SampleCount int        `json:"sample_count"`
	Min         float64    `json:"min"`
	Max         float64    `json:"max"`
	Latest      float64    `json:"latest"`
}

// AccuracyMetrics summarizes correctness over the session-to-date sample.
// Previous is the rate of the window immediately before Recent; it exists
// so accuracy-drop alerting can compare the two.
type AccuracyMetrics struct {
	Overall           float64       `json:"overall"`
	Recent            float64       `json:"recent"`
	Previous          float64       `json:"previous"`
	Trend             AccuracyTrend `json:"trend"`
	ConsecutiveMisses int           `json:"consecutive_misses"`
	SampleCount       int           `json:"sample_count"`
}

// ProgressMetrics tracks completion against the session target.
type ProgressMetrics struct {
	Completed          int     `json:"completed"`
	Target             int     `json:"target"`
	Ratio              float64 `json:"ratio"` // [0,1]
	ElapsedSeconds     float64 `json:"elapsed_seconds"`
	EstimatedRemaining float64 `json:"estimated_remaining"` // seconds
	Pace               Pace    `json:"pace"`
}

// EngagementMetrics measures event density in the trailing engagement window.
type EngagementMetrics struct {
	EventsPerMinute  float64        `json:"events_per_minute"`
	Tier             EngagementTier `json:"tier"`
	SecondsSinceLast float64        `json:"seconds_since_last"`
	Active           bool           `json:"active"`
}

// DifficultyMetrics evaluates fit of the session's difficulty level.
type DifficultyMetrics struct {
	Level       int                  `json:"level"`
	Accuracy    float64              `json:"accuracy"`
	AverageTime float64              `json:"average_time"`
	SampleCount int                  `json:"sample_count"`
	Status      AdaptationStatus     `json:"status"`
	Suggestion  DifficultySuggestion `json:"suggestion"`
	MatchScore  float64              `json:"match_score"` // [0,1]
}

// MetricsSnapshot is one immutable collection-cycle result. A new snapshot
// supersedes the previous one in the cache; snapshots are never mutated.
// Errors carries markers for sub-metrics that failed to compute.
type MetricsSnapshot struct {
	LearnerID  string            `json:"learner_id"`
	SessionID  string            `json:"session_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Speed      SpeedMetrics      `json:"speed"`
	Accuracy   AccuracyMetrics   `json:"accuracy"`
	Progress   ProgressMetrics   `json:"progress"`
	Engagement EngagementMetrics `json:"engagement"`
	Difficulty DifficultyMetrics `json:"difficulty"`
	Errors     []string          `json:"errors,omitempty"`
}

// Alert describes one threshold breach derived from a snapshot.
type Alert struct {
	Kind      AlertKind     `json:"kind"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Timestamp time.Time     `json:"timestamp"`
}

// RegistryStats is the connection registry's administrative summary.
type RegistryStats struct {
	TotalConnections int `json:"total_connections"`
	Learners         int `json:"learners"`
	Sessions         int `json:"sessions"`
}

// ConnectionInfo describes one live registration for the admin surface.
type ConnectionInfo struct {
	ID            string    `json:"id"`
	LearnerID     string    `json:"learner_id"`
	SessionID     string    `json:"session_id"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}
