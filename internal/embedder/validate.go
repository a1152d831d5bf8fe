package embedder

import (
	"log/slog"
	"strings"

	"github.com/54b3r/ragchat-go/internal/config"
)

// chatModelFragments identify chat/completion models, which are not
// suitable for embedding.
var chatModelFragments = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"gemini-",
}

// looksLikeChatModel reports whether model resembles a chat model rather
// than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, frag := range chatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// Validate logs warnings for embedding settings that will most likely produce
// poor or broken vectors. Hard errors are reported by config.Validate.
func Validate(cfg config.EmbeddingConfig, log *slog.Logger) {
	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: embedding model looks like a chat model",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. text-embedding-3-small, nomic-embed-text"),
		)
	}
	if cfg.Dimensions <= 0 {
		log.Warn("embedder: embedding dimensions not set; vector stores may reject mismatched vectors",
			slog.String("provider", cfg.Provider),
		)
	}
}
