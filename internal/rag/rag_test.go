package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/store"
)

// stubStore returns canned matches regardless of the query, ignoring the
// threshold the way a misbehaving backend might.
type stubStore struct {
	store.Store
	matches []store.Match
	err     error

	gotThreshold float64
	gotLimit     int
}

func (s *stubStore) MatchMessages(_ context.Context, _ []float32, threshold float64, limit int) ([]store.Match, error) {
	s.gotThreshold = threshold
	s.gotLimit = limit
	return s.matches, s.err
}

type stubEmbedder struct {
	got string
	vec []float32
	err error
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.got = text
	return e.vec, e.err
}

func TestRetriever_Search(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := &stubStore{matches: []store.Match{
		{ID: "1", Content: "low", Similarity: 0.2, CreatedAt: now},
		{ID: "2", Content: "mid", Similarity: 0.55, CreatedAt: now},
		{ID: "3", Content: "high", Similarity: 0.9, CreatedAt: now},
	}}
	r, err := NewRetriever(st)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	got, err := r.Search(context.Background(), []float32{1, 0}, 0.4, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches above threshold, got %d", len(got))
	}
	if got[0].ID != "3" || got[1].ID != "2" {
		t.Errorf("order: got %s,%s want 3,2", got[0].ID, got[1].ID)
	}
	if st.gotThreshold != 0.4 || st.gotLimit != 3 {
		t.Errorf("store called with threshold=%v limit=%d", st.gotThreshold, st.gotLimit)
	}
}

func TestRetriever_Search_ThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	st := &stubStore{matches: []store.Match{
		{ID: "1", Content: "boundary", Similarity: 0.4},
		{ID: "2", Content: "above", Similarity: 0.41},
	}}
	r, _ := NewRetriever(st)

	got, err := r.Search(context.Background(), []float32{1, 0}, 0.4, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Errorf("a similarity equal to the threshold must be dropped, got %+v", got)
	}
}

func TestRetriever_Search_NoMatches(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(&stubStore{})
	got, err := r.Search(context.Background(), []float32{1}, 0.4, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestRetriever_Search_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		store     *stubStore
		vec       []float32
		threshold float64
		limit     int
	}{
		{"threshold above one", &stubStore{}, []float32{1}, 1.5, 3},
		{"negative threshold", &stubStore{}, []float32{1}, -0.1, 3},
		{"zero limit", &stubStore{}, []float32{1}, 0.4, 0},
		{"empty vector", &stubStore{}, nil, 0.4, 3},
		{"store failure", &stubStore{err: errors.New("connection refused")}, []float32{1}, 0.4, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, _ := NewRetriever(tc.store)
			_, err := r.Search(context.Background(), tc.vec, tc.threshold, tc.limit)
			if !apperr.Is(err, apperr.KindRetrieval) {
				t.Errorf("expected retrieval error, got %v", err)
			}
		})
	}
}

func TestNewRetriever_NilStore(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestSearcher_Search(t *testing.T) {
	t.Parallel()

	st := &stubStore{matches: []store.Match{{ID: "1", Content: "hit", Similarity: 0.35}}}
	r, _ := NewRetriever(st)
	emb := &stubEmbedder{vec: []float32{0.1, 0.2}}
	s := NewSearcher(emb, r, 0.3, 10)

	got, err := s.Search(context.Background(), "複数行の\n検索クエリ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if emb.got != "複数行の 検索クエリ" {
		t.Errorf("query not normalized: %q", emb.got)
	}
	if len(got) != 1 || st.gotThreshold != 0.3 || st.gotLimit != 10 {
		t.Errorf("got %d matches, threshold=%v limit=%d", len(got), st.gotThreshold, st.gotLimit)
	}
}

func TestSearcher_Search_Errors(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(&stubStore{})

	s := NewSearcher(&stubEmbedder{vec: []float32{1}}, r, 0.3, 10)
	if _, err := s.Search(context.Background(), "  "); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("empty query: expected validation error, got %v", err)
	}

	failing := apperr.New(apperr.KindProvider, "embedding failed")
	s = NewSearcher(&stubEmbedder{err: failing}, r, 0.3, 10)
	if _, err := s.Search(context.Background(), "query"); !errors.Is(err, failing) {
		t.Errorf("expected embedder error to propagate, got %v", err)
	}
}
