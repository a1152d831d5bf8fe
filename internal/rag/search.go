package rag

import (
	"context"
	"strings"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/embedder"
	"github.com/54b3r/ragchat-go/internal/store"
)

// Searcher answers free-text similarity queries against the stored
// conversation, independent of any chat turn.
type Searcher struct {
	embedder  embedder.Embedder
	retriever *Retriever
	threshold float64
	limit     int
}

// NewSearcher constructs a Searcher with the given threshold and match count.
func NewSearcher(e embedder.Embedder, r *Retriever, threshold float64, limit int) *Searcher {
	return &Searcher{embedder: e, retriever: r, threshold: threshold, limit: limit}
}

// Search normalizes and embeds query, then returns the matching messages.
func (s *Searcher) Search(ctx context.Context, query string) ([]store.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.New(apperr.KindValidation, "Query is missing")
	}
	vec, err := s.embedder.Embed(ctx, embedder.Normalize(query))
	if err != nil {
		return nil, err
	}
	return s.retriever.Search(ctx, vec, s.threshold, s.limit)
}
