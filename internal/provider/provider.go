// Package provider selects and constructs the chat model backend at runtime.
// Supported backends: OpenAI, Azure OpenAI, Ollama, Google Gemini and
// Volcengine Ark, all through eino-ext chat model components.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/config"
)

// Backend enumerates the supported chat model providers.
type Backend string

const (
	// BackendOpenAI selects the OpenAI API (or an OpenAI-compatible gateway).
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// Validate checks that the selected backend has the settings it needs.
// Problems are reported together as one configuration error naming the
// environment variables to set.
func Validate(cfg config.ModelConfig) error {
	var missing []string
	switch Backend(cfg.Provider) {
	case BackendOpenAI:
		if cfg.OpenAI.APIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if cfg.OpenAI.Model == "" {
			missing = append(missing, "OPENAI_MODEL")
		}
	case BackendAzure:
		if cfg.Azure.APIKey == "" {
			missing = append(missing, "AZURE_OPENAI_API_KEY")
		}
		if cfg.Azure.Endpoint == "" {
			missing = append(missing, "AZURE_OPENAI_ENDPOINT")
		}
		if cfg.Azure.Deployment == "" {
			missing = append(missing, "AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendOllama:
		if cfg.Ollama.Host == "" {
			missing = append(missing, "OLLAMA_HOST")
		}
		if cfg.Ollama.Model == "" {
			missing = append(missing, "OLLAMA_MODEL")
		}
	case BackendGemini:
		if cfg.Gemini.APIKey == "" {
			missing = append(missing, "GOOGLE_API_KEY")
		}
		if cfg.Gemini.Model == "" {
			missing = append(missing, "GEMINI_MODEL")
		}
	case BackendArk:
		if cfg.Ark.APIKey == "" {
			missing = append(missing, "ARK_API_KEY")
		}
		if cfg.Ark.Model == "" {
			missing = append(missing, "ARK_MODEL")
		}
	default:
		return apperr.New(apperr.KindConfiguration,
			fmt.Sprintf("provider: unknown backend %q (valid: openai, azure, ollama, gemini, ark)", cfg.Provider))
	}
	if len(missing) > 0 {
		return apperr.New(apperr.KindConfiguration,
			fmt.Sprintf("provider: %s backend requires %s", cfg.Provider, strings.Join(missing, ", ")))
	}
	return nil
}

// New validates cfg and constructs the chat model for the selected backend.
func New(ctx context.Context, cfg config.ModelConfig) (model.BaseChatModel, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	switch Backend(cfg.Provider) {
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	default:
		return newArk(ctx, cfg)
	}
}

// ModelName returns the model or deployment the selected backend will call.
func ModelName(cfg config.ModelConfig) string {
	switch Backend(cfg.Provider) {
	case BackendOpenAI:
		return cfg.OpenAI.Model
	case BackendAzure:
		return cfg.Azure.Deployment
	case BackendOllama:
		return cfg.Ollama.Model
	case BackendGemini:
		return cfg.Gemini.Model
	case BackendArk:
		return cfg.Ark.Model
	}
	return ""
}
