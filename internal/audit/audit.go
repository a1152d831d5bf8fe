// Package audit logs each CLI invocation together with the configuration it
// resolved, so operators can trace what a process ran with. Secrets appear
// only as "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/54b3r/ragchat-go/internal/config"
)

// LogCommandStart emits one audit entry when a CLI command begins.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string, cfg *config.Config) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, f := range fields(cfg) {
		if f.secret {
			attrs = append(attrs, slog.String(f.key, presence(f.value)))
		} else {
			attrs = append(attrs, slog.String(f.key, valOrUnset(f.value)))
		}
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// field is one resolved setting included in the audit entry.
type field struct {
	key    string
	value  string
	secret bool
}

// fields lists the audited settings in a stable order.
func fields(cfg *config.Config) []field {
	m := cfg.Model
	return []field{
		{"model.provider", m.Provider, false},
		{"model.openai.model", m.OpenAI.Model, false},
		{"model.openai.api_key", m.OpenAI.APIKey, true},
		{"model.azure.endpoint", m.Azure.Endpoint, false},
		{"model.azure.deployment", m.Azure.Deployment, false},
		{"model.azure.api_key", m.Azure.APIKey, true},
		{"model.ollama.host", m.Ollama.Host, false},
		{"model.ollama.model", m.Ollama.Model, false},
		{"model.gemini.model", m.Gemini.Model, false},
		{"model.gemini.api_key", m.Gemini.APIKey, true},
		{"model.ark.model", m.Ark.Model, false},
		{"model.ark.api_key", m.Ark.APIKey, true},
		{"embedding.provider", cfg.Embedding.Provider, false},
		{"embedding.model", cfg.Embedding.Model, false},
		{"embedding.api_key", cfg.Embedding.APIKey, true},
		{"chat.mode", cfg.Chat.Mode, false},
		{"chat.retrieval_failure", cfg.Chat.RetrievalFailure, false},
		{"store.backend", cfg.Store.Backend, false},
		{"store.sqlite.path", cfg.Store.SQLite.Path, false},
		{"store.postgres.dsn", cfg.Store.Postgres.DSN, true},
		{"store.qdrant.host", cfg.Store.Qdrant.Host, false},
		{"store.qdrant.collection", cfg.Store.Qdrant.Collection, false},
		{"store.qdrant.api_key", cfg.Store.Qdrant.APIKey, true},
		{"server.api_key", cfg.Server.APIKey, true},
		{"logging.level", cfg.Logging.Level, false},
		{"tracing.public_key", cfg.Tracing.PublicKey, true},
		{"tracing.secret_key", cfg.Tracing.SecretKey, true},
	}
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty, with the
// home directory shortened to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
