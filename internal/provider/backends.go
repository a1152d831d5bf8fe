package provider

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/54b3r/ragchat-go/internal/config"
)

// tuning returns pointers for the optional generation limits. Zero values
// leave the provider default in place.
func tuning(cfg config.ModelConfig) (*int, *float32) {
	var (
		maxTokens   *int
		temperature *float32
	)
	if cfg.MaxTokens > 0 {
		v := cfg.MaxTokens
		maxTokens = &v
	}
	if cfg.Temperature > 0 {
		v := cfg.Temperature
		temperature = &v
	}
	return maxTokens, temperature
}

func newOpenAI(ctx context.Context, cfg config.ModelConfig) (model.BaseChatModel, error) {
	maxTokens, temperature := tuning(cfg)
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: openai: %w", err)
	}
	return m, nil
}

func newAzure(ctx context.Context, cfg config.ModelConfig) (model.BaseChatModel, error) {
	maxTokens, temperature := tuning(cfg)
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.Azure.Deployment,
		APIKey:      cfg.Azure.APIKey,
		BaseURL:     cfg.Azure.Endpoint,
		ByAzure:     true,
		APIVersion:  cfg.Azure.APIVersion,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		// The default mapper strips dots and colons, which breaks deployment
		// names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	})
	if err != nil {
		return nil, fmt.Errorf("provider: azure: %w", err)
	}
	return m, nil
}

func newOllama(ctx context.Context, cfg config.ModelConfig) (model.BaseChatModel, error) {
	m, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: ollama: %w", err)
	}
	return m, nil
}

func newGemini(ctx context.Context, cfg config.ModelConfig) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create Gemini client: %w", err)
	}
	maxTokens, temperature := tuning(cfg)
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client:      client,
		Model:       cfg.Gemini.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini: %w", err)
	}
	return m, nil
}

func newArk(ctx context.Context, cfg config.ModelConfig) (model.BaseChatModel, error) {
	maxTokens, temperature := tuning(cfg)
	m, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Ark.Model,
		APIKey:      cfg.Ark.APIKey,
		BaseURL:     cfg.Ark.BaseURL,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: ark: %w", err)
	}
	return m, nil
}
