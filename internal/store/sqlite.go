package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a Store backed by a local SQLite database. Embeddings are
// stored as JSON arrays and similarity is computed in process.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// now is the clock used for CreatedAt; replaced in tests.
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// DefaultDBPath returns the default path for the message database.
// It resolves to ~/.ragchat/messages.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "messages.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    content      TEXT    NOT NULL CHECK(content <> ''),
    is_user      INTEGER NOT NULL,
    embedding    TEXT,             -- JSON array of float32, NULL until embedded
    created_at   INTEGER NOT NULL  -- Unix timestamp (nanoseconds)
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_unembedded
    ON chat_messages (id) WHERE embedding IS NULL;
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Insert persists msg and sets its ID and CreatedAt.
func (s *SQLiteStore) Insert(ctx context.Context, msg *Message) error {
	if msg.Content == "" {
		return ErrEmptyContent
	}
	emb, err := encodeEmbedding(msg.Embedding)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}

	created := s.now()
	const q = `INSERT INTO chat_messages (content, is_user, embedding, created_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, msg.Content, msg.IsUser, emb, created.UnixNano())
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert id: %w", err)
	}

	msg.ID = strconv.FormatInt(id, 10)
	msg.CreatedAt = created
	return nil
}

// MatchMessages scans every embedded message and ranks it against query.
func (s *SQLiteStore) MatchMessages(ctx context.Context, query []float32, threshold float64, limit int) ([]Match, error) {
	if limit < 1 {
		return nil, nil
	}
	const q = `SELECT id, content, is_user, embedding, created_at FROM chat_messages WHERE embedding IS NOT NULL ORDER BY id`
	candidates, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: match: %w", err)
	}
	return RankMatches(query, candidates, threshold, limit), nil
}

// Get returns the message with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Message, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	const q = `SELECT id, content, is_user, embedding, created_at FROM chat_messages WHERE id = ?`
	msgs, err := s.query(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

// ListUnembedded returns up to limit messages without an embedding whose ID
// is greater than after, oldest first.
func (s *SQLiteStore) ListUnembedded(ctx context.Context, after string, limit int) ([]Message, error) {
	cursor, err := parseCursor(after)
	if err != nil {
		return nil, fmt.Errorf("store: list unembedded: %w", err)
	}
	const q = `SELECT id, content, is_user, embedding, created_at FROM chat_messages WHERE embedding IS NULL AND id > ? ORDER BY id LIMIT ?`
	msgs, err := s.query(ctx, q, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list unembedded: %w", err)
	}
	return msgs, nil
}

// AttachEmbedding sets the embedding of an existing message.
func (s *SQLiteStore) AttachEmbedding(ctx context.Context, id string, vec []float32) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ErrNotFound
	}
	emb, err := encodeEmbedding(vec)
	if err != nil {
		return fmt.Errorf("store: attach embedding: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE chat_messages SET embedding = ? WHERE id = ?`, emb, n)
	if err != nil {
		return fmt.Errorf("store: attach embedding: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// query runs q and scans every row into a Message.
func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m   Message
			id  int64
			emb sql.NullString
			ts  int64
		)
		if err := rows.Scan(&id, &m.Content, &m.IsUser, &emb, &ts); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		m.CreatedAt = time.Unix(0, ts)
		if emb.Valid {
			if err := json.Unmarshal([]byte(emb.String), &m.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding for %s: %w", m.ID, err)
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return msgs, nil
}

// parseCursor converts a paging cursor to a row ID. Empty means before the
// first row.
func parseCursor(after string) (int64, error) {
	if after == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(after, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor %q", after)
	}
	return n, nil
}

// encodeEmbedding returns the JSON form of vec, or NULL for an empty vector.
func encodeEmbedding(vec []float32) (sql.NullString, error) {
	if len(vec) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
