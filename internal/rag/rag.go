// Package rag retrieves previously stored chat turns that are semantically
// close to a query vector.
package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/store"
)

// Retriever searches stored messages by vector similarity.
// It is safe for concurrent use when the underlying store is.
type Retriever struct {
	store store.Store
}

// NewRetriever constructs a Retriever over s.
func NewRetriever(s store.Store) (*Retriever, error) {
	if s == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	return &Retriever{store: s}, nil
}

// Search returns at most limit matches whose similarity to vec is above
// threshold, most similar first. An empty result is not an error.
func (r *Retriever) Search(ctx context.Context, vec []float32, threshold float64, limit int) ([]store.Match, error) {
	if threshold < 0 || threshold > 1 {
		return nil, apperr.New(apperr.KindRetrieval, fmt.Sprintf("rag: similarity threshold %v outside [0,1]", threshold))
	}
	if limit <= 0 {
		return nil, apperr.New(apperr.KindRetrieval, fmt.Sprintf("rag: match count must be positive, got %d", limit))
	}
	if len(vec) == 0 {
		return nil, apperr.New(apperr.KindRetrieval, "rag: query vector is empty")
	}

	found, err := r.store.MatchMessages(ctx, vec, threshold, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrieval, err, "rag: similarity search failed")
	}

	matches := make([]store.Match, 0, len(found))
	for _, m := range found {
		if m.Similarity <= threshold {
			continue
		}
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
