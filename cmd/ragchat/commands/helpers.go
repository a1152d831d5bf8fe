package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragchat-go/internal/backfill"
	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/completion"
	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/embedder"
	"github.com/54b3r/ragchat-go/internal/provider"
	"github.com/54b3r/ragchat-go/internal/rag"
	"github.com/54b3r/ragchat-go/internal/server"
	"github.com/54b3r/ragchat-go/internal/sink"
	"github.com/54b3r/ragchat-go/internal/store"
	"github.com/54b3r/ragchat-go/internal/store/postgres"
	qdrantstore "github.com/54b3r/ragchat-go/internal/store/qdrant"
)

// openStore opens the configured message datastore.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, error) {
	sc := cfg.Store
	switch sc.Backend {
	case "postgres":
		s, err := postgres.Open(ctx, &postgres.Config{
			DSN:        sc.Postgres.DSN,
			Dimensions: cfg.Embedding.Dimensions,
			Migrate:    sc.Postgres.Migrate,
		})
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		log.Info("store: postgres ready", slog.Bool("migrated", sc.Postgres.Migrate))
		return s, nil

	case "qdrant":
		dims := max(cfg.Embedding.Dimensions, 0)
		s, err := qdrantstore.Open(ctx, &qdrantstore.Config{
			Host:       sc.Qdrant.Host,
			Port:       sc.Qdrant.Port,
			Collection: sc.Qdrant.Collection,
			VectorSize: uint64(dims), //nolint:gosec // clamped to non-negative above
			APIKey:     sc.Qdrant.APIKey,
			UseTLS:     sc.Qdrant.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("store: failed to connect to Qdrant at %s:%d: %w", sc.Qdrant.Host, sc.Qdrant.Port, err)
		}
		log.Info("store: qdrant ready",
			slog.String("host", sc.Qdrant.Host),
			slog.Int("port", sc.Qdrant.Port),
			slog.String("collection", sc.Qdrant.Collection),
		)
		return s, nil

	default:
		path := sc.SQLite.Path
		if path == "" {
			p, err := store.DefaultDBPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		s, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		log.Info("store: sqlite opened", slog.String("path", path))
		return s, nil
	}
}

// newEmbedder warns about suspicious embedding settings and builds the
// configured embedder.
func newEmbedder(ctx context.Context, cfg *config.Config, log *slog.Logger) (embedder.Embedder, error) {
	embedder.Validate(cfg.Embedding, log)
	emb, err := embedder.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, err
	}
	log.Info("embedder initialised",
		slog.String("provider", cfg.Embedding.Provider),
		slog.String("model", cfg.Embedding.Model),
	)
	return emb, nil
}

// newCompletion builds the chat model and wraps it in a completion client.
func newCompletion(ctx context.Context, cfg *config.Config, log *slog.Logger) (*completion.Client, error) {
	chatModel, err := provider.New(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	client, err := completion.NewClient(ctx, &completion.Config{
		Model:     chatModel,
		ModelName: provider.ModelName(cfg.Model),
	})
	if err != nil {
		return nil, err
	}
	log.Info("provider initialised",
		slog.String("provider", cfg.Model.Provider),
		slog.String("model", provider.ModelName(cfg.Model)),
	)
	return client, nil
}

// services is everything a chat-serving command needs.
type services struct {
	store      store.Store
	completion *completion.Client
	chat       *chat.Service
	searcher   *rag.Searcher
	backfill   *backfill.Runner
}

// buildServices validates the configuration and wires the chat pipeline.
// reg receives the chat metrics; nil keeps them private.
func buildServices(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (*services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	emb, err := newEmbedder(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	client, err := newCompletion(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	metrics := chat.NewMetrics(reg)
	svc, err := chat.NewService(chat.ConfigFrom(cfg.Chat), chat.Deps{
		Embedder:   emb,
		Retriever:  retriever,
		Completion: client,
		Sink:       sink.New(st, metrics.ObservePersist),
		Metrics:    metrics,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	runner, err := backfill.NewRunner(emb, st, nil)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &services{
		store:      st,
		completion: client,
		chat:       svc,
		searcher:   rag.NewSearcher(emb, retriever, cfg.Search.SimilarityThreshold, cfg.Search.MatchCount),
		backfill:   runner,
	}, nil
}

// Close waits for background persistence, then closes the store.
func (s *services) Close() error {
	s.chat.Wait()
	return s.store.Close()
}

// buildPingers returns the readiness probes for the store and chat backend.
func buildPingers(cfg *config.Config, st store.Store) []server.Pinger {
	return []server.Pinger{
		server.NewStorePinger(st, cfg.Store.Backend),
		server.NewModelPinger(cfg.Model),
	}
}
