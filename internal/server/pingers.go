package server

import (
	"context"
	"fmt"

	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/provider"
)

// StorePinger probes the message datastore.
type StorePinger struct {
	store interface{ Ping(ctx context.Context) error }
	name  string
}

// NewStorePinger wraps any store exposing Ping. name labels the backend
// in readiness responses (e.g. "sqlite", "qdrant").
func NewStorePinger(s interface{ Ping(ctx context.Context) error }, name string) *StorePinger {
	return &StorePinger{store: s, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "store:" + p.name }

// Ping checks the datastore connection.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// ModelPinger probes the chat backend without spending tokens: it lists
// models or tags rather than generating.
type ModelPinger struct {
	cfg config.ModelConfig
}

// NewModelPinger constructs a ModelPinger for the configured backend.
func NewModelPinger(cfg config.ModelConfig) *ModelPinger {
	return &ModelPinger{cfg: cfg}
}

// Name returns the backend label used in readiness responses.
func (p *ModelPinger) Name() string { return "model:" + p.cfg.Provider }

// Ping runs the backend health check.
func (p *ModelPinger) Ping(ctx context.Context) error {
	if err := provider.HealthCheck(ctx, p.cfg); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.cfg.Provider, err)
	}
	return nil
}
