// Package sqlite stores conversation transcripts in a SQLite database using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (user_id, conversation_id, id);
`

// Transcript is a memory.Transcript backed by SQLite.
type Transcript struct {
	db     *sql.DB
	logger *zap.Logger
}

// Option configures the transcript.
type Option func(*Transcript)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Transcript) {
		if l != nil {
			t.logger = l
		}
	}
}

// Open opens (creating if needed) the database at path. ":memory:" opens a
// private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Transcript, error) {
	if path == "" {
		return nil, errors.New("sqlite transcript: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY and keeps
	// ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping transcript db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init transcript schema: %w", err)
	}

	t := &Transcript{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	t.logger.Debug("transcript opened", zap.String("path", path))
	return t, nil
}

// Append implements memory.Transcript. Messages are inserted in one
// transaction.
func (t *Transcript) Append(ctx context.Context, userID, conversationID string, msgs ...core.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (user_id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, userID, conversationID, string(m.Role), m.Content, ts.UnixNano()); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Load implements memory.Transcript.
func (t *Transcript) Load(ctx context.Context, userID, conversationID string) ([]core.Message, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE user_id = ? AND conversation_id = ? ORDER BY id`,
		userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var (
			role, content string
			createdAt     int64
		)
		if err := rows.Scan(&role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, core.Message{
			Role:      core.Role(role),
			Content:   content,
			Timestamp: time.Unix(0, createdAt).UTC(),
		})
	}
	return out, rows.Err()
}

// Count implements memory.Transcript.
func (t *Transcript) Count(ctx context.Context, userID, conversationID string) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (t *Transcript) Close() error {
	return t.db.Close()
}

var _ memory.Transcript = (*Transcript)(nil)
