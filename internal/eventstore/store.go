// Package eventstore adapts the platform's persisted activity log into the
// read-only query surface the metrics engine consumes.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

// Store implements interfaces.EventStore over SQLite.
type Store struct {
	db *sql.DB
}

// Options configures the underlying connection pool.
type Options struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
}

// NewStore opens the activity-log database. WAL mode and a busy timeout keep
// concurrent push loops from contending with the platform's writers.
func NewStore(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	maxConns := opts.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// EventsSince returns the learner's answer events for the session with
// created_at >= since, ordered oldest first.
func (s *Store) EventsSince(ctx context.Context, learnerID, sessionID string, since time.Time) ([]types.AnswerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, learner_id, session_id, correct, time_spent, difficulty, created_at
		FROM answer_events
		WHERE learner_id = ? AND session_id = ? AND created_at >= ?
		ORDER BY created_at ASC`,
		learnerID, sessionID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: query events: %v", interfaces.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var events []types.AnswerEvent
	for rows.Next() {
		var e types.AnswerEvent
		var correct int
		if err := rows.Scan(&e.ID, &e.LearnerID, &e.SessionID, &correct, &e.TimeSpent, &e.Difficulty, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", interfaces.ErrStoreUnavailable, err)
		}
		e.Correct = correct != 0
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate events: %v", interfaces.ErrStoreUnavailable, err)
	}

	return events, nil
}

// SessionMeta returns the session record or interfaces.ErrSessionNotFound.
func (s *Store) SessionMeta(ctx context.Context, sessionID string) (*types.SessionMeta, error) {
	var meta types.SessionMeta
	var endedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, learner_id, difficulty_level, target_count, created_at, ended_at, status
		FROM learning_sessions
		WHERE id = ?`,
		sessionID).Scan(&meta.ID, &meta.LearnerID, &meta.DifficultyLevel, &meta.TargetCount,
		&meta.CreatedAt, &endedAt, &meta.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: query session: %v", interfaces.ErrStoreUnavailable, err)
	}

	if endedAt.Valid {
		t := endedAt.Time
		meta.EndedAt = &t
	}

	return &meta, nil
}

// HistoricalPerformance aggregates the learner's activity over the lookback
// period into a baseline profile. A learner with no history yields a
// zero-valued profile.
func (s *Store) HistoricalPerformance(ctx context.Context, learnerID string, lookbackDays int) (*types.BaselineProfile, error) {
	since := time.Now().AddDate(0, 0, -lookbackDays)
	profile := &types.BaselineProfile{
		LearnerID:  learnerID,
		ComputedAt: time.Now(),
	}

	var avgTime, avgAccuracy sql.NullFloat64
	var sampleCount int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(time_spent), AVG(correct)
		FROM answer_events
		WHERE learner_id = ? AND created_at >= ?`,
		learnerID, since).Scan(&sampleCount, &avgTime, &avgAccuracy)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate answers: %v", interfaces.ErrStoreUnavailable, err)
	}

	profile.SampleCount = sampleCount
	if avgTime.Valid {
		profile.TypicalAnswerTime = avgTime.Float64
	}
	if avgAccuracy.Valid {
		profile.TypicalAccuracy = avgAccuracy.Float64
	}

	// Typical session duration from completed sessions in the window.
	var avgDuration sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG((julianday(ended_at) - julianday(created_at)) * 86400.0)
		FROM learning_sessions
		WHERE learner_id = ? AND created_at >= ? AND ended_at IS NOT NULL`,
		learnerID, since).Scan(&avgDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate sessions: %v", interfaces.ErrStoreUnavailable, err)
	}
	if avgDuration.Valid {
		profile.TypicalSessionSecs = avgDuration.Float64
	}

	// Preferred difficulty is the level answered most often.
	var preferred sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT difficulty FROM answer_events
		WHERE learner_id = ? AND created_at >= ?
		GROUP BY difficulty
		ORDER BY COUNT(*) DESC
		LIMIT 1`,
		learnerID, since).Scan(&preferred)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: aggregate difficulty: %v", interfaces.ErrStoreUnavailable, err)
	}
	if preferred.Valid {
		profile.PreferredDifficulty = int(preferred.Int64)
	}

	return profile, nil
}

// Ping verifies database connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertSession writes a session row. The platform owns session writes in
// production; this exists for development seeding and tests.
func (s *Store) InsertSession(ctx context.Context, meta *types.SessionMeta) error {
	var endedAt interface{}
	if meta.EndedAt != nil {
		endedAt = *meta.EndedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_sessions (id, learner_id, difficulty_level, target_count, created_at, ended_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.LearnerID, meta.DifficultyLevel, meta.TargetCount, meta.CreatedAt, endedAt, meta.Status)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// InsertEvent writes an answer event row. Development seeding and tests only.
func (s *Store) InsertEvent(ctx context.Context, e *types.AnswerEvent) error {
	correct := 0
	if e.Correct {
		correct = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answer_events (id, learner_id, session_id, correct, time_spent, difficulty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.LearnerID, e.SessionID, correct, e.TimeSpent, e.Difficulty, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// EndSession marks a session ended. Development seeding and tests only.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE learning_sessions SET status = 'ended', ended_at = ? WHERE id = ?`,
		time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}
