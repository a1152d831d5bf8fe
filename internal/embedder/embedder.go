// Package embedder converts text into dense vector embeddings. Each backend
// talks to a different provider: OpenAI and Azure OpenAI through go-openai,
// Gemini through the genai SDK, and Ollama over its local HTTP API.
package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/config"
)

// Embedder turns one text into one vector. Implementations must be safe for
// concurrent use and perform no retries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Normalize replaces newlines with spaces. Search queries and backfilled rows
// are normalized before embedding; live chat messages are embedded as sent.
func Normalize(text string) string {
	return strings.ReplaceAll(text, "\n", " ")
}

// New constructs the Embedder selected by cfg.Provider. cfg is expected to be
// resolved by config.Load, so provider credentials are already inherited.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(&OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil

	case "azure":
		return NewOpenAIEmbedder(&OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		}), nil

	case "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaEmbedder(&OllamaConfig{Host: host, Model: cfg.Model}), nil

	case "gemini":
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})

	default:
		return nil, apperr.New(apperr.KindConfiguration,
			fmt.Sprintf("embedder: unknown backend %q (valid: openai, azure, ollama, gemini)", cfg.Provider))
	}
}

// providerError classifies a backend failure.
func providerError(backend string, err error) error {
	return apperr.Wrap(apperr.KindProvider, err, backend+" embedder: embedding request failed")
}

// emptyVector is returned when a backend answers without a vector.
func emptyVector(backend string) error {
	return apperr.New(apperr.KindProvider, backend+" embedder: provider returned no embedding")
}
