// Package tracing wires the Langfuse callback handler into eino so every
// completion run is traced when credentials are configured.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/ragchat-go/internal/config"
)

// defaultHost is the Langfuse endpoint used when none is configured.
const defaultHost = "http://localhost:3000"

// Setup builds the Langfuse handler when both keys are set. It returns the
// handler, a flush function that must run before process exit, and whether
// tracing is enabled. With tracing disabled both values are nil.
func Setup(cfg config.TracingConfig) (callbacks.Handler, func(), bool) {
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil, nil, false
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	return handler, flusher, true
}

// Enable registers h as a global eino callback handler. It must be called
// once during startup, before any chain is compiled.
func Enable(h callbacks.Handler) {
	callbacks.AppendGlobalHandlers(h)
}
