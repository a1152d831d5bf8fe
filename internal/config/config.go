// Package config builds the single, explicit configuration for ragchat.
// Configuration is resolved once at process start with a layered precedence:
// defaults → YAML file → .env file → process environment. Components receive
// the resolved sub-structs and never read the environment themselves.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGCHAT_CONFIG environment variable
//  3. ~/.ragchat/config.yaml
//  4. ./ragchat.yaml
//
// If no file is found the process runs from defaults and env vars alone.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/54b3r/ragchat-go/internal/apperr"
)

// Config is the top-level configuration structure.
type Config struct {
	// Model configures the chat completion provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Chat configures the retrieval-augmented chat turn.
	Chat ChatConfig `yaml:"chat"`

	// Search configures the standalone similarity search endpoint.
	Search SearchConfig `yaml:"search"`

	// Store configures the message datastore.
	Store StoreConfig `yaml:"store"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: openai, azure, ollama, gemini, ark.
	Provider string `yaml:"provider"`
	// MaxTokens caps the reply length. Zero leaves the provider default.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness. Zero leaves the provider default.
	Temperature float32 `yaml:"temperature"`

	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ollama OllamaConfig `yaml:"ollama"`
	Gemini GeminiConfig `yaml:"gemini"`
	Ark    ArkConfig    `yaml:"ark"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the chat model name.
	Model string `yaml:"model"`
	// BaseURL overrides the API endpoint for OpenAI-compatible gateways.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the backend: openai, azure, ollama, gemini.
	// Empty inherits Model.Provider.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey overrides the key inherited from the chat provider.
	APIKey string `yaml:"api_key"`
	// Endpoint overrides the endpoint inherited from the chat provider.
	Endpoint string `yaml:"endpoint"`
	// APIVersion is the Azure OpenAI API version for embeddings.
	APIVersion string `yaml:"api_version"`
}

// ChatConfig holds the chat turn settings. All values are fixed at
// deployment time.
type ChatConfig struct {
	// Mode is "streaming" or "single".
	Mode string `yaml:"mode"`
	// SystemPrompt is the first message of every assembled prompt.
	SystemPrompt string `yaml:"system_prompt"`
	// SimilarityThreshold is the minimum similarity for a recalled message.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// MatchCount is the maximum number of recalled messages.
	MatchCount int `yaml:"match_count"`
	// HistoryOrder is "chronological" or "as_returned".
	HistoryOrder string `yaml:"history_order"`
	// Separator is the system message between recalled and live history.
	// Empty disables it.
	Separator string `yaml:"separator"`
	// RecallPrefix is prepended to every recalled message.
	RecallPrefix string `yaml:"recall_prefix"`
	// RetrievalFailure is "degrade" or "fail".
	RetrievalFailure string `yaml:"retrieval_failure"`
	// MaxContextTokens is the prompt size above which a warning is logged.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// SearchConfig holds the standalone similarity search settings.
type SearchConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MatchCount          int     `yaml:"match_count"`
}

// StoreConfig selects and configures the message datastore.
type StoreConfig struct {
	// Backend is "sqlite", "postgres" or "qdrant".
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
}

// SQLiteConfig holds the SQLite backend settings.
type SQLiteConfig struct {
	// Path is the database file. Empty resolves to ~/.ragchat/messages.db.
	Path string `yaml:"path"`
}

// PostgresConfig holds the Postgres backend settings.
type PostgresConfig struct {
	// DSN is the connection string. Prefer env var DATABASE_URL.
	DSN string `yaml:"dsn"`
	// Migrate installs the schema and match_messages function on startup.
	Migrate bool `yaml:"migrate"`
}

// QdrantConfig holds Qdrant backend settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey enables bearer-token authentication when set.
	// Prefer env var RAGCHAT_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// Chat modes.
const (
	ModeStreaming = "streaming"
	ModeSingle    = "single"
)

// DefaultSystemPrompt is the system message used when none is configured.
const DefaultSystemPrompt = "あなたはギャンブル依存症の克服をサポートするAIアシスタントです。" +
	"以下の関連する過去の会話を参考に、ユーザーの文脈を理解し、" +
	"共感的で建設的なアドバイスを提供してください。"

// DefaultSeparator marks the boundary between recalled and live history.
const DefaultSeparator = "--- ここから現在の会話 ---"

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider: "openai",
			OpenAI:   OpenAIConfig{Model: "gpt-3.5-turbo"},
			Azure:    AzureConfig{APIVersion: "2024-02-01"},
			Ollama:   OllamaConfig{Host: "http://localhost:11434", Model: "llama3"},
			Gemini:   GeminiConfig{Model: "gemini-1.5-flash"},
		},
		Chat: ChatConfig{
			Mode:                ModeStreaming,
			SystemPrompt:        DefaultSystemPrompt,
			SimilarityThreshold: 0.4,
			MatchCount:          3,
			HistoryOrder:        "chronological",
			Separator:           DefaultSeparator,
			RetrievalFailure:    "degrade",
			MaxContextTokens:    6000,
		},
		Search: SearchConfig{
			SimilarityThreshold: 0.3,
			MatchCount:          10,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Qdrant:  QdrantConfig{Host: "localhost", Port: 6334, Collection: "chat_messages"},
		},
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{Host: "http://localhost:3000"},
	}
}

// envMapping lists every environment variable that overrides a config field.
// Empty values are ignored.
var envMapping = []struct {
	envKey string
	apply  func(*Config, string) error
}{
	{"MODEL_PROVIDER", str(func(c *Config) *string { return &c.Model.Provider })},
	{"MODEL_MAX_TOKENS", integer(func(c *Config) *int { return &c.Model.MaxTokens })},
	{"MODEL_TEMPERATURE", float32Val(func(c *Config) *float32 { return &c.Model.Temperature })},
	{"OPENAI_API_KEY", str(func(c *Config) *string { return &c.Model.OpenAI.APIKey })},
	{"OPENAI_MODEL", str(func(c *Config) *string { return &c.Model.OpenAI.Model })},
	{"OPENAI_BASE_URL", str(func(c *Config) *string { return &c.Model.OpenAI.BaseURL })},
	{"AZURE_OPENAI_API_KEY", str(func(c *Config) *string { return &c.Model.Azure.APIKey })},
	{"AZURE_OPENAI_ENDPOINT", str(func(c *Config) *string { return &c.Model.Azure.Endpoint })},
	{"AZURE_OPENAI_DEPLOYMENT", str(func(c *Config) *string { return &c.Model.Azure.Deployment })},
	{"AZURE_OPENAI_API_VERSION", str(func(c *Config) *string { return &c.Model.Azure.APIVersion })},
	{"OLLAMA_HOST", str(func(c *Config) *string { return &c.Model.Ollama.Host })},
	{"OLLAMA_MODEL", str(func(c *Config) *string { return &c.Model.Ollama.Model })},
	{"GOOGLE_API_KEY", str(func(c *Config) *string { return &c.Model.Gemini.APIKey })},
	{"GEMINI_MODEL", str(func(c *Config) *string { return &c.Model.Gemini.Model })},
	{"ARK_API_KEY", str(func(c *Config) *string { return &c.Model.Ark.APIKey })},
	{"ARK_BASE_URL", str(func(c *Config) *string { return &c.Model.Ark.BaseURL })},
	{"ARK_MODEL", str(func(c *Config) *string { return &c.Model.Ark.Model })},
	{"EMBEDDING_PROVIDER", str(func(c *Config) *string { return &c.Embedding.Provider })},
	{"EMBEDDING_MODEL", str(func(c *Config) *string { return &c.Embedding.Model })},
	{"EMBEDDING_DIMENSIONS", integer(func(c *Config) *int { return &c.Embedding.Dimensions })},
	{"EMBEDDING_API_KEY", str(func(c *Config) *string { return &c.Embedding.APIKey })},
	{"EMBEDDING_ENDPOINT", str(func(c *Config) *string { return &c.Embedding.Endpoint })},
	{"CHAT_MODE", str(func(c *Config) *string { return &c.Chat.Mode })},
	{"CHAT_SYSTEM_PROMPT", str(func(c *Config) *string { return &c.Chat.SystemPrompt })},
	{"CHAT_SIMILARITY_THRESHOLD", float64Val(func(c *Config) *float64 { return &c.Chat.SimilarityThreshold })},
	{"CHAT_MATCH_COUNT", integer(func(c *Config) *int { return &c.Chat.MatchCount })},
	{"CHAT_HISTORY_ORDER", str(func(c *Config) *string { return &c.Chat.HistoryOrder })},
	{"CHAT_RETRIEVAL_FAILURE", str(func(c *Config) *string { return &c.Chat.RetrievalFailure })},
	{"SEARCH_SIMILARITY_THRESHOLD", float64Val(func(c *Config) *float64 { return &c.Search.SimilarityThreshold })},
	{"SEARCH_MATCH_COUNT", integer(func(c *Config) *int { return &c.Search.MatchCount })},
	{"STORE_BACKEND", str(func(c *Config) *string { return &c.Store.Backend })},
	{"SQLITE_PATH", str(func(c *Config) *string { return &c.Store.SQLite.Path })},
	{"SUPABASE_DB_URL", str(func(c *Config) *string { return &c.Store.Postgres.DSN })},
	{"DATABASE_URL", str(func(c *Config) *string { return &c.Store.Postgres.DSN })},
	{"POSTGRES_MIGRATE", boolean(func(c *Config) *bool { return &c.Store.Postgres.Migrate })},
	{"QDRANT_HOST", str(func(c *Config) *string { return &c.Store.Qdrant.Host })},
	{"QDRANT_PORT", integer(func(c *Config) *int { return &c.Store.Qdrant.Port })},
	{"QDRANT_COLLECTION", str(func(c *Config) *string { return &c.Store.Qdrant.Collection })},
	{"QDRANT_API_KEY", str(func(c *Config) *string { return &c.Store.Qdrant.APIKey })},
	{"QDRANT_TLS", boolean(func(c *Config) *bool { return &c.Store.Qdrant.TLS })},
	{"RAGCHAT_HOST", str(func(c *Config) *string { return &c.Server.Host })},
	{"RAGCHAT_PORT", integer(func(c *Config) *int { return &c.Server.Port })},
	{"RAGCHAT_API_KEY", str(func(c *Config) *string { return &c.Server.APIKey })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
	{"LANGFUSE_PUBLIC_KEY", str(func(c *Config) *string { return &c.Tracing.PublicKey })},
	{"LANGFUSE_SECRET_KEY", str(func(c *Config) *string { return &c.Tracing.SecretKey })},
	{"LANGFUSE_HOST", str(func(c *Config) *string { return &c.Tracing.Host })},
}

// Load resolves the configuration from defaults, the first YAML file found,
// ./.env and the process environment. It returns the resolved config and the
// path of the YAML file that was loaded (empty if none).
func Load(explicitPath string, log *slog.Logger) (*Config, string, error) {
	dotenv, err := readDotEnv(".env")
	if err != nil {
		return nil, "", err
	}
	return load(explicitPath, func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}, log)
}

// load is Load with an injectable environment lookup.
func load(explicitPath string, getenv func(string) string, log *slog.Logger) (*Config, string, error) {
	cfg := Default()

	path := resolveConfigPath(explicitPath, getenv)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
		log.Info("config: loaded YAML config", slog.String("path", path))
	} else {
		log.Debug("config: no YAML config file found, using defaults and env vars")
	}

	applied := 0
	for _, m := range envMapping {
		v := getenv(m.envKey)
		if v == "" {
			continue
		}
		if err := m.apply(cfg, v); err != nil {
			return nil, "", apperr.Wrap(apperr.KindConfiguration, err, "config: "+m.envKey)
		}
		applied++
	}
	log.Debug("config: environment overrides applied", slog.Int("keys_applied", applied))

	cfg.resolveEmbedding()
	return cfg, path, nil
}

// readDotEnv parses path with godotenv. A missing file yields an empty map.
func readDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		return map[string]string{}, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return vals, nil
}

// resolveEmbedding fills embedding settings inherited from the chat provider.
func (c *Config) resolveEmbedding() {
	e := &c.Embedding
	if e.Provider == "" {
		e.Provider = c.Model.Provider
	}
	switch e.Provider {
	case "openai":
		if e.APIKey == "" {
			e.APIKey = c.Model.OpenAI.APIKey
		}
		if e.Endpoint == "" {
			e.Endpoint = c.Model.OpenAI.BaseURL
		}
		defaultString(&e.Model, "text-embedding-3-small")
		defaultInt(&e.Dimensions, 1536)
	case "azure":
		if e.APIKey == "" {
			e.APIKey = c.Model.Azure.APIKey
		}
		if e.Endpoint == "" {
			e.Endpoint = c.Model.Azure.Endpoint
		}
		defaultString(&e.APIVersion, c.Model.Azure.APIVersion)
		defaultString(&e.Model, "text-embedding-3-small")
		defaultInt(&e.Dimensions, 1536)
	case "ollama":
		if e.Endpoint == "" {
			e.Endpoint = c.Model.Ollama.Host
		}
		defaultString(&e.Model, "nomic-embed-text")
		defaultInt(&e.Dimensions, 768)
	case "gemini":
		if e.APIKey == "" {
			e.APIKey = c.Model.Gemini.APIKey
		}
		defaultString(&e.Model, "text-embedding-004")
		defaultInt(&e.Dimensions, 768)
	}
}

// Validate checks the resolved configuration and returns a ConfigurationError
// describing the first problem found.
func (c *Config) Validate() error {
	var problems []string

	switch c.Chat.Mode {
	case ModeStreaming, ModeSingle:
	default:
		problems = append(problems, fmt.Sprintf("chat.mode %q must be streaming or single", c.Chat.Mode))
	}
	switch c.Chat.HistoryOrder {
	case "chronological", "as_returned":
	default:
		problems = append(problems, fmt.Sprintf("chat.history_order %q must be chronological or as_returned", c.Chat.HistoryOrder))
	}
	switch c.Chat.RetrievalFailure {
	case "degrade", "fail":
	default:
		problems = append(problems, fmt.Sprintf("chat.retrieval_failure %q must be degrade or fail", c.Chat.RetrievalFailure))
	}
	if c.Chat.SimilarityThreshold < 0 || c.Chat.SimilarityThreshold > 1 {
		problems = append(problems, "chat.similarity_threshold must be within [0,1]")
	}
	if c.Chat.MatchCount <= 0 {
		problems = append(problems, "chat.match_count must be positive")
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		problems = append(problems, "search.similarity_threshold must be within [0,1]")
	}
	if c.Search.MatchCount <= 0 {
		problems = append(problems, "search.match_count must be positive")
	}

	switch c.Embedding.Provider {
	case "openai", "gemini":
		if c.Embedding.APIKey == "" {
			problems = append(problems, "embedding: API key is required for "+c.Embedding.Provider+" (set EMBEDDING_API_KEY)")
		}
	case "azure":
		if c.Embedding.APIKey == "" || c.Embedding.Endpoint == "" {
			problems = append(problems, "embedding: azure requires EMBEDDING_API_KEY and EMBEDDING_ENDPOINT")
		}
	case "ollama":
	default:
		problems = append(problems, fmt.Sprintf("embedding.provider %q must be openai, azure, ollama or gemini", c.Embedding.Provider))
	}

	switch c.Store.Backend {
	case "sqlite", "qdrant":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			problems = append(problems, "store: postgres requires DATABASE_URL")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q must be sqlite, postgres or qdrant", c.Store.Backend))
	}

	if len(problems) == 0 {
		return nil
	}
	return apperr.New(apperr.KindConfiguration, "Missing or invalid configuration: "+strings.Join(problems, "; "))
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string, getenv func(string) string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := getenv("RAGCHAT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ragchat", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragchat.yaml"); err == nil {
		return "ragchat.yaml"
	}

	return ""
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func float64Val(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func float32Val(field func(*Config) *float32) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return err
		}
		*field(c) = float32(f)
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func defaultString(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

func defaultInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}
