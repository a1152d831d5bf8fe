package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.ModelConfig
		wantErr string
	}{
		{
			name: "openai/valid",
			cfg:  config.ModelConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-3.5-turbo"}},
		},
		{
			name:    "openai/missing api key",
			cfg:     config.ModelConfig{Provider: "openai", OpenAI: config.OpenAIConfig{Model: "gpt-3.5-turbo"}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name: "azure/valid",
			cfg: config.ModelConfig{Provider: "azure", Azure: config.AzureConfig{
				APIKey: "key", Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o",
			}},
		},
		{
			name:    "azure/missing deployment",
			cfg:     config.ModelConfig{Provider: "azure", Azure: config.AzureConfig{APIKey: "key", Endpoint: "https://my.openai.azure.com"}},
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},
		{
			name:    "azure/missing everything",
			cfg:     config.ModelConfig{Provider: "azure"},
			wantErr: "AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT",
		},
		{
			name: "ollama/valid",
			cfg:  config.ModelConfig{Provider: "ollama", Ollama: config.OllamaConfig{Host: "http://localhost:11434", Model: "llama3"}},
		},
		{
			name:    "ollama/missing model",
			cfg:     config.ModelConfig{Provider: "ollama", Ollama: config.OllamaConfig{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},
		{
			name:    "gemini/missing api key",
			cfg:     config.ModelConfig{Provider: "gemini", Gemini: config.GeminiConfig{Model: "gemini-1.5-flash"}},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "ark/missing model",
			cfg:     config.ModelConfig{Provider: "ark", Ark: config.ArkConfig{APIKey: "k"}},
			wantErr: "ARK_MODEL",
		},
		{
			name:    "unknown backend",
			cfg:     config.ModelConfig{Provider: "bedrock"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tc.cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
			if !apperr.Is(err, apperr.KindConfiguration) {
				t.Errorf("expected configuration error, got kind %q", apperr.KindOf(err))
			}
		})
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), config.ModelConfig{Provider: "openai"}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestNew_OpenAI(t *testing.T) {
	t.Parallel()

	m, err := New(context.Background(), config.ModelConfig{
		Provider: "openai",
		OpenAI:   config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-3.5-turbo"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m == nil {
		t.Fatal("expected a chat model")
	}
}

func TestModelName(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Model
	if got := ModelName(cfg); got != "gpt-3.5-turbo" {
		t.Errorf("ModelName(default) = %q", got)
	}
	cfg.Provider = "azure"
	cfg.Azure.Deployment = "chat-prod"
	if got := ModelName(cfg); got != "chat-prod" {
		t.Errorf("ModelName(azure) = %q", got)
	}
}

func TestHealthCheck_OpenAI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"unauthorized", http.StatusUnauthorized, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "/models") {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				if tc.status == http.StatusOK {
					_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"gpt-3.5-turbo","object":"model"}]}`)
					return
				}
				_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
			}))
			t.Cleanup(srv.Close)

			err := HealthCheck(context.Background(), config.ModelConfig{
				Provider: "openai",
				OpenAI:   config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-3.5-turbo", BaseURL: srv.URL + "/v1"},
			})
			if (err != nil) != tc.wantErr {
				t.Errorf("HealthCheck: err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestHealthCheck_Ollama(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"models":[]}`)
	}))
	t.Cleanup(srv.Close)

	cfg := config.ModelConfig{Provider: "ollama", Ollama: config.OllamaConfig{Host: srv.URL, Model: "llama3"}}
	if err := HealthCheck(context.Background(), cfg); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	srv.Close()
	if err := HealthCheck(context.Background(), cfg); err == nil {
		t.Error("expected error after server shutdown")
	}
}

func TestHealthCheck_SkipsUnprobedBackends(t *testing.T) {
	t.Parallel()

	if err := HealthCheck(context.Background(), config.ModelConfig{Provider: "ark"}); err != nil {
		t.Errorf("HealthCheck(ark): %v", err)
	}
}
