package embedder

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder embeds text with the OpenAI or Azure OpenAI embeddings API.
type OpenAIEmbedder struct {
	// client is the go-openai client, configured for OpenAI or Azure.
	client *openai.Client
	// model is the embedding model (or Azure deployment) name.
	model string
	// dimensions requests a reduced vector size when positive.
	dimensions int
	// backend labels errors with "openai" or "azure".
	backend string
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// APIKey is the authentication key.
	APIKey string
	// BaseURL overrides the API base. For Azure it is the resource endpoint
	// (https://<resource>.openai.azure.com).
	BaseURL string
	// Model is the embedding model name. For Azure it is also the deployment.
	Model string
	// Dimensions is the requested vector length (0 = model default).
	Dimensions int
	// Azure selects Azure OpenAI auth and URL layout.
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored unless Azure.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	var oc openai.ClientConfig
	backend := "openai"
	if cfg.Azure {
		backend = "azure"
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			oc.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Model
		oc.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		backend:    backend,
	}
}

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, providerError(e.backend, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, emptyVector(e.backend)
	}
	return resp.Data[0].Embedding, nil
}
