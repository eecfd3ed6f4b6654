// Package transcript provides durable conversation history storage.
package transcript

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed transcript of chat messages and tool calls,
// keyed by agent session.
type Store struct {
	db *sql.DB
}

// Open creates a Store on the given database path, creating the schema
// if needed.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing database handle. The caller keeps
// ownership of db when using this constructor directly; tests use it
// with an in-memory database.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Chat messages, both player input and agent replies
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		player TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);

	-- Tool calls requested by the agent
	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		invocation_id TEXT NOT NULL,
		function TEXT NOT NULL,
		parameters TEXT NOT NULL,
		result TEXT,
		state TEXT NOT NULL,
		duration_ms INTEGER,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_function ON tool_calls(function);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordMessage stores one chat message.
func (s *Store) RecordMessage(sessionID, role, player, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (id, session_id, role, player, content, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, role, player, content, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecordToolCall stores one executed tool call with its outcome.
func (s *Store) RecordToolCall(sessionID, invocationID, function string, params, result string, state string, elapsed time.Duration) error {
	_, err := s.db.Exec(
		`INSERT INTO tool_calls (id, session_id, invocation_id, function, parameters, result, state, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, invocationID, function, params, result, state,
		elapsed.Milliseconds(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// Message is one stored chat message.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Player    string
	Content   string
	Timestamp time.Time
}

// ToolCall is one stored tool call record.
type ToolCall struct {
	ID           string
	SessionID    string
	InvocationID string
	Function     string
	Parameters   string
	Result       string
	State        string
	DurationMS   int64
	Timestamp    time.Time
}

// Messages returns up to limit messages for a session, oldest first.
func (s *Store) Messages(sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, role, player, content, timestamp
		 FROM messages WHERE session_id = ?
		 ORDER BY timestamp ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Player, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ToolCalls returns up to limit tool calls for a session, oldest first.
func (s *Store) ToolCalls(sessionID string, limit int) ([]ToolCall, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, invocation_id, function, parameters, result, state, duration_ms, timestamp
		 FROM tool_calls WHERE session_id = ?
		 ORDER BY timestamp ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	var out []ToolCall
	for rows.Next() {
		var tc ToolCall
		var result sql.NullString
		if err := rows.Scan(&tc.ID, &tc.SessionID, &tc.InvocationID, &tc.Function, &tc.Parameters, &result, &tc.State, &tc.DurationMS, &tc.Timestamp); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		tc.Result = result.String
		out = append(out, tc)
	}
	return out, rows.Err()
}
