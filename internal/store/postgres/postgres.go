// Package postgres implements store.Store on Postgres with the pgvector
// extension. Similarity search is delegated to the match_messages SQL
// function so the same database can be shared with other clients that call
// it directly. Queries are traced through an otelsql-instrumented driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/lib/pq" // register "postgres" driver
	"github.com/pgvector/pgvector-go"
	"go.nhat.io/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/54b3r/ragchat-go/internal/store"
)

var (
	registerOnce sync.Once
	driverName   string
	registerErr  error
)

// tracedDriver registers the instrumented postgres driver once per process.
func tracedDriver() (string, error) {
	registerOnce.Do(func() {
		driverName, registerErr = otelsql.Register(
			"postgres",
			otelsql.TraceQueryWithoutArgs(),
			otelsql.TraceRowsClose(),
			otelsql.TraceRowsAffected(),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
		)
	})
	return driverName, registerErr
}

// Config holds the connection settings for a Store.
type Config struct {
	// DSN is the lib/pq connection string or URL.
	DSN string
	// Dimensions is the embedding size used when creating the schema.
	Dimensions int
	// Migrate installs the schema and match_messages function on Open.
	Migrate bool
}

// Store is a store.Store backed by Postgres + pgvector.
type Store struct {
	conn *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to Postgres and optionally runs the schema migration.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	drv, err := tracedDriver()
	if err != nil {
		return nil, fmt.Errorf("postgres: register traced driver: %w", err)
	}
	conn, err := sql.Open(drv, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{conn: conn}
	if cfg.Migrate {
		if err := s.Migrate(ctx, cfg.Dimensions); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the vector extension, the chat_messages table and the
// match_messages function if they do not already exist.
func (s *Store) Migrate(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("postgres: migrate: dimensions must be positive")
	}
	for _, stmt := range schema(dimensions) {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

// Insert persists msg and sets its ID and CreatedAt.
func (s *Store) Insert(ctx context.Context, msg *store.Message) error {
	if msg.Content == "" {
		return store.ErrEmptyContent
	}

	var emb any
	if len(msg.Embedding) > 0 {
		emb = pgvector.NewVector(msg.Embedding)
	}

	const q = `
		INSERT INTO chat_messages (content, is_user, embedding)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	var (
		id      int64
		created time.Time
	)
	if err := s.conn.QueryRowContext(ctx, q, msg.Content, msg.IsUser, emb).Scan(&id, &created); err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}
	msg.ID = strconv.FormatInt(id, 10)
	msg.CreatedAt = created
	return nil
}

// MatchMessages calls match_messages(query_embedding, similarity_threshold, match_count).
func (s *Store) MatchMessages(ctx context.Context, query []float32, threshold float64, limit int) ([]store.Match, error) {
	if limit < 1 {
		return nil, nil
	}

	const q = `SELECT id, content, is_user, similarity, created_at FROM match_messages($1, $2, $3)`
	rows, err := s.conn.QueryContext(ctx, q, pgvector.NewVector(query), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: match_messages: %w", err)
	}
	defer rows.Close()

	var matches []store.Match
	for rows.Next() {
		var (
			m  store.Match
			id int64
		)
		if err := rows.Scan(&id, &m.Content, &m.IsUser, &m.Similarity, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: match_messages scan: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: match_messages rows: %w", err)
	}
	return matches, nil
}

// Get returns the message with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*store.Message, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, store.ErrNotFound
	}

	const q = `SELECT id, content, is_user, embedding, created_at FROM chat_messages WHERE id = $1`
	msgs, err := s.query(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: get: %w", err)
	}
	if len(msgs) == 0 {
		return nil, store.ErrNotFound
	}
	return &msgs[0], nil
}

// ListUnembedded returns up to limit messages without an embedding whose ID
// is greater than after, oldest first.
func (s *Store) ListUnembedded(ctx context.Context, after string, limit int) ([]store.Message, error) {
	var cursor int64
	if after != "" {
		n, err := strconv.ParseInt(after, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("postgres: list unembedded: invalid cursor %q", after)
		}
		cursor = n
	}
	const q = `
		SELECT id, content, is_user, embedding, created_at
		FROM chat_messages
		WHERE embedding IS NULL AND id > $1
		ORDER BY id
		LIMIT $2
	`
	msgs, err := s.query(ctx, q, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unembedded: %w", err)
	}
	return msgs, nil
}

// AttachEmbedding sets the embedding of an existing message.
func (s *Store) AttachEmbedding(ctx context.Context, id string, vec []float32) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return store.ErrNotFound
	}
	res, err := s.conn.ExecContext(ctx, `UPDATE chat_messages SET embedding = $1 WHERE id = $2`, pgvector.NewVector(vec), n)
	if err != nil {
		return fmt.Errorf("postgres: attach embedding: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]store.Message, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var (
			m   store.Message
			id  int64
			emb *pgvector.Vector
		)
		if err := rows.Scan(&id, &m.Content, &m.IsUser, &emb, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ID = strconv.FormatInt(id, 10)
		if emb != nil {
			m.Embedding = emb.Slice()
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return msgs, nil
}
