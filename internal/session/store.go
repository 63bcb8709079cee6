package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session id has no stored snapshot.
var ErrNotFound = errors.New("session not found")

// snapshotSchema guards against loading a corrupt or foreign document.
// Documents that fail validation are rejected, never partially restored.
const snapshotSchema = `{
	"type": "object",
	"required": ["session_id", "config", "messages", "round_num"],
	"properties": {
		"session_id": {"type": "string", "minLength": 1},
		"config": {"type": "object"},
		"messages": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["role", "content"],
				"properties": {
					"role": {"enum": ["system", "user", "assistant"]},
					"content": {"type": "string"}
				}
			}
		},
		"round_num": {"type": "integer", "minimum": 0},
		"current_plan": {"type": ["object", "null"]}
	}
}`

// Store persists session snapshots in a single SQLite database. The
// connection pool is capped at one: SQLite is a single-writer store and
// the agent never needs concurrent access to it.
type Store struct {
	db     *sql.DB
	schema *gojsonschema.Schema
}

// OpenStore opens (creating if needed) the store at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	db.SetMaxOpenConns(1)

	const ddl = `CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		model      TEXT NOT NULL,
		round_num  INTEGER NOT NULL,
		state      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(snapshotSchema))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}

	return &Store{db: db, schema: schema}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts a snapshot.
func (s *Store) Save(st SessionState) error {
	if st.SessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", st.SessionID, err)
	}

	_, err = s.db.Exec(`INSERT INTO sessions (id, model, round_num, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model = excluded.model,
			round_num = excluded.round_num,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		st.SessionID, st.Config.Model, st.RoundNum, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session %s: %w", st.SessionID, err)
	}
	return nil
}

// Load retrieves and validates a snapshot by id.
func (s *Store) Load(sessionID string) (SessionState, error) {
	var raw string
	err := s.db.QueryRow(`SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionState{}, ErrNotFound
	}
	if err != nil {
		return SessionState{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return SessionState{}, fmt.Errorf("validate session %s: %w", sessionID, err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return SessionState{}, fmt.Errorf("session %s is corrupt: %s",
			sessionID, strings.Join(problems, "; "))
	}

	var st SessionState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return SessionState{}, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return st, nil
}

// List returns stored sessions, newest first.
func (s *Store) List() ([]Meta, error) {
	rows, err := s.db.Query(`SELECT id, model, round_num, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.SessionID, &m.Model, &m.RoundNum, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a stored session. Deleting a missing id is not an error.
func (s *Store) Delete(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}
