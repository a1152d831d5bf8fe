// Package store defines the chat message datastore and its SQLite backend.
// Every chat turn is persisted as a Message; messages carry an optional
// embedding that powers similarity recall on later turns. Postgres and
// Qdrant backends live in subpackages and satisfy the same Store interface.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a message ID does not exist.
var ErrNotFound = errors.New("store: message not found")

// ErrEmptyContent is returned when inserting a message without content.
var ErrEmptyContent = errors.New("store: message content must not be empty")

// Message is a persisted chat turn.
type Message struct {
	// ID is the store-assigned identifier.
	ID string
	// Content is the text of the message. Never empty once written.
	Content string
	// IsUser distinguishes human messages from assistant replies.
	IsUser bool
	// Embedding is the vector for Content, nil until computed.
	Embedding []float32
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Match is a message recalled by similarity search.
type Match struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	IsUser     bool      `json:"is_user"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists chat messages and searches them by embedding similarity.
// Implementations must be safe for concurrent use.
type Store interface {
	// Insert persists msg and sets its ID and CreatedAt.
	Insert(ctx context.Context, msg *Message) error

	// MatchMessages returns up to limit embedded messages whose cosine
	// similarity to query is greater than threshold, most similar first.
	MatchMessages(ctx context.Context, query []float32, threshold float64, limit int) ([]Match, error)

	// Get returns the message with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Message, error)

	// ListUnembedded returns up to limit messages without an embedding that
	// come after the message with ID after in the backend's paging order.
	// An empty after starts from the beginning. Passing the ID of the last
	// row of one page yields the next page, whether or not the earlier rows
	// were embedded in between.
	ListUnembedded(ctx context.Context, after string, limit int) ([]Message, error)

	// AttachEmbedding sets the embedding of an existing message.
	AttachEmbedding(ctx context.Context, id string, vec []float32) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
