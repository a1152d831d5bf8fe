package backfill

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/54b3r/ragchat-go/internal/store"
)

type fakeEmbedder struct {
	seen []string
	fail map[string]bool
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.seen = append(e.seen, text)
	if e.fail[text] {
		return nil, errors.New("embedding request failed")
	}
	return []float32{float32(len(text)), 1}, nil
}

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insert(t *testing.T, s store.Store, content string) string {
	t.Helper()
	m := &store.Message{Content: content, IsUser: true}
	if err := s.Insert(context.Background(), m); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return m.ID
}

func TestRun_EmbedsEveryRow(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	for _, c := range []string{"一\n二", "three", "four", "five", "six"} {
		insert(t, s, c)
	}
	emb := &fakeEmbedder{}
	r, err := NewRunner(emb, s, &Config{BatchSize: 2})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Embedded != 5 || res.Failed != 0 {
		t.Errorf("result: %+v", res)
	}
	if emb.seen[0] != "一 二" {
		t.Errorf("content not normalized: %q", emb.seen[0])
	}
	left, _ := s.ListUnembedded(context.Background(), "", 10)
	if len(left) != 0 {
		t.Errorf("%d rows still unembedded", len(left))
	}
}

func TestRun_FailingRowsDoNotHideLaterRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		batchSize int
	}{
		{"page smaller than failures", 1},
		{"page equal to failures", 2},
		{"page larger than store", 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := openStore(t)
			insert(t, s, "bad1")
			insert(t, s, "bad2")
			goodID := insert(t, s, "good")
			emb := &fakeEmbedder{fail: map[string]bool{"bad1": true, "bad2": true}}
			r, _ := NewRunner(emb, s, &Config{BatchSize: tc.batchSize})

			res, err := r.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Failed != 2 || res.Embedded != 1 {
				t.Errorf("result: %+v", res)
			}
			if len(emb.seen) != 3 {
				t.Errorf("each row must be attempted once, saw %v", emb.seen)
			}
			got, _ := s.Get(context.Background(), goodID)
			if len(got.Embedding) == 0 {
				t.Error("row after the failing ones was not embedded")
			}
			left, _ := s.ListUnembedded(context.Background(), "", 10)
			if len(left) != 2 {
				t.Errorf("want the 2 failing rows left unembedded, got %d", len(left))
			}
		})
	}
}

func TestRun_EmptyStore(t *testing.T) {
	t.Parallel()

	r, _ := NewRunner(&fakeEmbedder{}, openStore(t), nil)
	res, err := r.Run(context.Background())
	if err != nil || res != (Result{}) {
		t.Errorf("Run = (%+v, %v)", res, err)
	}
}

func TestProcessJobs(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	okID := insert(t, s, "hello\nworld")
	badID := insert(t, s, "unembeddable")
	emb := &fakeEmbedder{fail: map[string]bool{"unembeddable": true}}
	r, _ := NewRunner(emb, s, nil)

	completed, failed := r.ProcessJobs(context.Background(), []Job{
		{JobID: 1, ID: okID},
		{JobID: 2, ID: "999"},
		{JobID: 3, ID: badID},
	})

	if len(completed) != 1 || completed[0].JobID != 1 {
		t.Errorf("completed: %+v", completed)
	}
	if len(failed) != 2 {
		t.Fatalf("failed: %+v", failed)
	}
	if failed[0].JobID != 2 || failed[0].Error != "row not found: 999" {
		t.Errorf("missing row: %+v", failed[0])
	}
	if failed[1].JobID != 3 || !strings.Contains(failed[1].Error, "embedding request failed") {
		t.Errorf("embed failure: %+v", failed[1])
	}
	if emb.seen[0] != "hello\nworld" {
		t.Errorf("job content must be embedded as stored: %q", emb.seen[0])
	}
	got, _ := s.Get(context.Background(), okID)
	if len(got.Embedding) == 0 {
		t.Error("embedding not attached")
	}
}

func TestProcessJobs_CancelledContextFailsRemaining(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	id := insert(t, s, "x")
	r, _ := NewRunner(&fakeEmbedder{}, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completed, failed := r.ProcessJobs(ctx, []Job{{JobID: 1, ID: id}, {JobID: 2, ID: id}})
	if len(completed) != 0 || len(failed) != 2 {
		t.Errorf("completed=%d failed=%d", len(completed), len(failed))
	}
}

func TestParseJobs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    int
		wantErr string
	}{
		{"valid", `[{"jobId":1,"id":"42"},{"jobId":2,"id":"43","schema":"public","table":"chat_messages"}]`, 2, ""},
		{"empty array", `[]`, 0, ""},
		{"not an array", `{"jobId":1,"id":"42"}`, 0, "invalid request body"},
		{"missing jobId", `[{"id":"42"}]`, 0, "jobId is required"},
		{"fractional jobId", `[{"jobId":1.5,"id":"42"}]`, 0, "jobId must be an integer"},
		{"missing id", `[{"jobId":1}]`, 0, "id is required"},
		{"numeric id", `[{"jobId":1,"id":42}]`, 0, "invalid request body"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			jobs, err := ParseJobs([]byte(tc.body))
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJobs: %v", err)
			}
			if len(jobs) != tc.want {
				t.Errorf("got %d jobs", len(jobs))
			}
		})
	}
}

func TestNewRunner_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewRunner(nil, openStore(t), nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRunner(&fakeEmbedder{}, nil, nil); err == nil {
		t.Error("expected error for nil store")
	}
}
