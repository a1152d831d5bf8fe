package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/54b3r/ragchat-go/internal/config"
)

// HealthCheck verifies the chat backend is reachable with the configured
// credentials. OpenAI and Azure list models; Ollama fetches /api/tags.
// Backends without a cheap probe report healthy.
func HealthCheck(ctx context.Context, cfg config.ModelConfig) error {
	switch Backend(cfg.Provider) {
	case BackendOpenAI:
		oc := openai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.BaseURL != "" {
			oc.BaseURL = cfg.OpenAI.BaseURL
		}
		return listModels(ctx, oc)

	case BackendAzure:
		oc := openai.DefaultAzureConfig(cfg.Azure.APIKey, cfg.Azure.Endpoint)
		if cfg.Azure.APIVersion != "" {
			oc.APIVersion = cfg.Azure.APIVersion
		}
		return listModels(ctx, oc)

	case BackendOllama:
		return ollamaTags(ctx, cfg.Ollama.Host)
	}
	return nil
}

func listModels(ctx context.Context, oc openai.ClientConfig) error {
	if _, err := openai.NewClientWithConfig(oc).ListModels(ctx); err != nil {
		return fmt.Errorf("provider: list models: %w", err)
	}
	return nil
}

func ollamaTags(ctx context.Context, host string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("provider: ollama: create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider: ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider: ollama: HTTP %d", resp.StatusCode)
	}
	return nil
}
