package eventstore

import (
	"database/sql"
	"fmt"
)

// Schema for the slice of the platform's activity log this subsystem reads.
// The platform owns these tables in production; creating them here keeps
// development and test databases self-contained.
const schema = `
CREATE TABLE IF NOT EXISTS learning_sessions (
	id TEXT PRIMARY KEY,
	learner_id TEXT NOT NULL,
	difficulty_level INTEGER NOT NULL DEFAULT 1,
	target_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS answer_events (
	id TEXT PRIMARY KEY,
	learner_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	correct INTEGER NOT NULL,
	time_spent REAL NOT NULL,
	difficulty INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	FOREIGN KEY (session_id) REFERENCES learning_sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_answer_events_lookup
	ON answer_events(learner_id, session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_answer_events_learner_time
	ON answer_events(learner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_sessions_learner
	ON learning_sessions(learner_id, created_at);
`

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply event store schema: %w", err)
	}
	return nil
}
