package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/codefionn/agentweb/internal/api"
)

// ChatStore persists chat sessions and their messages in SQLite.
type ChatStore struct {
	db *sql.DB
}

// OpenChatStore opens (and migrates) the database at path. ":memory:" keeps
// everything in memory.
func OpenChatStore(path string) (*ChatStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &ChatStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *ChatStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *ChatStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session and returns its id.
func (s *ChatStore) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, "INSERT INTO sessions (id) VALUES (?)", id); err != nil {
		return "", fmt.Errorf("create chat session: %w", err)
	}
	return id, nil
}

// EnsureSession creates the session row if it does not exist yet.
func (s *ChatStore) EnsureSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO sessions (id) VALUES (?)", id); err != nil {
		return fmt.Errorf("ensure chat session: %w", err)
	}
	return nil
}

// AddMessage appends one message to a session.
func (s *ChatStore) AddMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)",
		sessionID, role, content)
	if err != nil {
		return fmt.Errorf("add chat message: %w", err)
	}
	return nil
}

// Messages returns the history of a session in insertion order.
func (s *ChatStore) Messages(ctx context.Context, sessionID string) ([]api.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content FROM messages WHERE session_id = ? ORDER BY id ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	out := []api.ChatMessage{}
	for rows.Next() {
		var m api.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
