//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/54b3r/ragchat-go/internal/store"
)

// TestOllamaEmbedder_Integration calls a locally running Ollama instance.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text"
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gamble, err := emb.Embed(ctx, "パチンコに行きたい気持ちが抑えられません")
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	related, err := emb.Embed(ctx, "またパチンコに行ってしまいそうです")
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}
	unrelated, err := emb.Embed(ctx, "The weather in Lisbon is sunny today.")
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}

	near := store.CosineSimilarity(gamble, related)
	far := store.CosineSimilarity(gamble, unrelated)
	t.Logf("model=%s dim=%d near=%.3f far=%.3f (set EMBEDDING_DIMENSIONS=%d)", model, len(gamble), near, far, len(gamble))
	if near <= far {
		t.Errorf("related text should be closer: near=%.3f far=%.3f", near, far)
	}
}
