package embedder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/config"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	if got := Normalize("一行目\n二行目\n"); got != "一行目 二行目 " {
		t.Errorf("Normalize: got %q", got)
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization: got %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.25,0.5,0.75]}],"model":"text-embedding-3-small","usage":{"prompt_tokens":3,"total_tokens":3}}`)
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1",
		Model:      "text-embedding-3-small",
		Dimensions: 3,
	})

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.5 {
		t.Errorf("vector: got %v", vec)
	}
	if gotBody["model"] != "text-embedding-3-small" {
		t.Errorf("model: got %v", gotBody["model"])
	}
	if dims, _ := gotBody["dimensions"].(float64); dims != 3 {
		t.Errorf("dimensions: got %v", gotBody["dimensions"])
	}
}

func TestOpenAIEmbedder_Azure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/embed-prod/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != "2024-06-01" {
			t.Errorf("api-version: got %q", got)
		}
		if got := r.Header.Get("api-key"); got != "azure-key" {
			t.Errorf("api-key: got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"index":0,"embedding":[1,0]}]}`)
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{
		APIKey:     "azure-key",
		BaseURL:    srv.URL,
		Model:      "embed-prod",
		Azure:      true,
		APIVersion: "2024-06-01",
	})
	if _, err := e.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"upstream error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`},
		{"empty data", http.StatusOK, `{"data":[]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			t.Cleanup(srv.Close)

			e := NewOpenAIEmbedder(&OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
			_, err := e.Embed(context.Background(), "hello")
			if !apperr.Is(err, apperr.KindProvider) {
				t.Errorf("expected provider error, got %v", err)
			}
		})
	}
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "nomic-embed-text" || req.Input != "hello" {
			t.Errorf("request: got %+v", req)
		}
		_, _ = io.WriteString(w, `{"embeddings":[[0.1,0.2]]}`)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vector: got %v", vec)
	}
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"model missing", http.StatusNotFound, `{"error":"model \"x\" not found"}`},
		{"no vectors", http.StatusOK, `{"embeddings":[]}`},
		{"bad json", http.StatusOK, `not json`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			t.Cleanup(srv.Close)

			e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "x"})
			if _, err := e.Embed(context.Background(), "hello"); !apperr.Is(err, apperr.KindProvider) {
				t.Errorf("expected provider error, got %v", err)
			}
		})
	}
}

func TestNew_Backends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"openai", false},
		{"azure", false},
		{"ollama", false},
		{"bedrock", true},
		{"", true},
	}
	for _, tc := range tests {
		t.Run(tc.provider, func(t *testing.T) {
			t.Parallel()
			_, err := New(context.Background(), config.EmbeddingConfig{
				Provider: tc.provider,
				Model:    "text-embedding-3-small",
				APIKey:   "k",
				Endpoint: "http://localhost:1",
			})
			if (err != nil) != tc.wantErr {
				t.Fatalf("New(%q): err=%v, wantErr=%v", tc.provider, err, tc.wantErr)
			}
			if err != nil && !apperr.Is(err, apperr.KindConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  bool
	}{
		{"text-embedding-3-small", false},
		{"nomic-embed-text", false},
		{"text-embedding-004", false},
		{"gpt-3.5-turbo", true},
		{"llama3.1:8b", true},
		{"gemini-1.5-flash", true},
	}
	for _, tc := range tests {
		if got := looksLikeChatModel(tc.model); got != tc.want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}

func TestValidate_WarnsOnChatModel(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, nil))
	Validate(config.EmbeddingConfig{Provider: "openai", Model: "gpt-4o", Dimensions: 1536}, log)

	if !strings.Contains(buf.String(), "looks like a chat model") {
		t.Errorf("expected warning, got %q", buf.String())
	}
}
