// Package qdrant implements store.Store on a Qdrant collection. Each message
// is a point with a single named vector ("content") and a payload carrying the
// message fields. Messages stored before their embedding is known are points
// without a vector, flagged by the "embedded" payload field.
package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/ragchat-go/internal/store"
)

const (
	vectorName = "content"

	fieldContent   = "content"
	fieldIsUser    = "is_user"
	fieldCreatedAt = "created_at"
	fieldEmbedded  = "embedded"
)

// Config holds connection parameters for a Qdrant-backed store.
type Config struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string
	// Port is the Qdrant gRPC port (default: 6334).
	Port int
	// Collection is the collection holding chat messages.
	Collection string
	// VectorSize is the dimensionality of the message embeddings.
	VectorSize uint64
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Store is a store.Store backed by Qdrant.
type Store struct {
	client *qdrant.Client
	cfg    *Config
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open creates a client and ensures the collection exists.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection must not be empty")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	s := &Store{client: client, cfg: cfg, now: time.Now}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// ensureCollection creates the collection with a cosine "content" vector if
// it does not already exist.
func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     s.cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Insert stores msg as a new point and sets its ID and CreatedAt.
func (s *Store) Insert(ctx context.Context, msg *store.Message) error {
	if msg.Content == "" {
		return store.ErrEmptyContent
	}

	id := uuid.NewString()
	created := s.now()

	vectors := map[string]*qdrant.Vector{}
	if len(msg.Embedding) > 0 {
		vectors[vectorName] = qdrant.NewVector(msg.Embedding...)
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(map[string]any{
				fieldContent:   msg.Content,
				fieldIsUser:    msg.IsUser,
				fieldCreatedAt: created.UnixNano(),
				fieldEmbedded:  len(msg.Embedding) > 0,
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: insert failed: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = created
	return nil
}

// MatchMessages queries the "content" vector with a score threshold.
func (s *Store) MatchMessages(ctx context.Context, query []float32, threshold float64, limit int) ([]store.Match, error) {
	if limit < 1 {
		return nil, nil
	}

	lim := uint64(limit)
	thr := float32(threshold)
	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Using:          &using,
		Limit:          &lim,
		ScoreThreshold: &thr,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	matches := make([]store.Match, 0, len(results))
	for _, r := range results {
		m := messageFromPayload(r.GetId(), r.GetPayload())
		matches = append(matches, store.Match{
			ID:         m.ID,
			Content:    m.Content,
			IsUser:     m.IsUser,
			Similarity: float64(r.GetScore()),
			CreatedAt:  m.CreatedAt,
		})
	}
	return matches, nil
}

// Get returns the point with the given ID as a message (without its vector).
func (s *Store) Get(ctx context.Context, id string) (*store.Message, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.cfg.Collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: get failed: %w", err)
	}
	if len(points) == 0 {
		return nil, store.ErrNotFound
	}
	m := messageFromPayload(points[0].GetId(), points[0].GetPayload())
	return &m, nil
}

// ListUnembedded scrolls points flagged embedded=false in point ID order,
// starting after the point named by after. Qdrant treats a scroll offset as
// inclusive, so the cursor point itself is dropped from the page.
func (s *Store) ListUnembedded(ctx context.Context, after string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	req := &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchBool(fieldEmbedded, false)},
		},
		WithPayload: qdrant.NewWithPayload(true),
	}
	lim := uint32(limit) //nolint:gosec // limit is positive
	if after != "" {
		req.Offset = qdrant.NewIDUUID(after)
		lim++
	}
	req.Limit = &lim

	points, err := s.client.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
	}

	msgs := make([]store.Message, 0, len(points))
	for _, p := range points {
		if after != "" && p.GetId().GetUuid() == after {
			continue
		}
		msgs = append(msgs, messageFromPayload(p.GetId(), p.GetPayload()))
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// AttachEmbedding sets the "content" vector of an existing point and clears
// its unembedded flag.
func (s *Store) AttachEmbedding(ctx context.Context, id string, vec []float32) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	wait := true
	pid := qdrant.NewIDUUID(id)
	_, err := s.client.UpdateVectors(ctx, &qdrant.UpdatePointVectors{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points: []*qdrant.PointVectors{{
			Id:      pid,
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{vectorName: qdrant.NewVector(vec...)}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: update vectors failed: %w", err)
	}

	_, err = s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Payload:        qdrant.NewValueMap(map[string]any{fieldEmbedded: true}),
		PointsSelector: qdrant.NewPointsSelector(pid),
	})
	if err != nil {
		return fmt.Errorf("qdrant: set payload failed: %w", err)
	}
	return nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// messageFromPayload converts a point ID and payload into a Message.
func messageFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value) store.Message {
	m := store.Message{ID: id.GetUuid()}
	if v, ok := payload[fieldContent]; ok {
		m.Content = v.GetStringValue()
	}
	if v, ok := payload[fieldIsUser]; ok {
		m.IsUser = v.GetBoolValue()
	}
	if v, ok := payload[fieldCreatedAt]; ok {
		m.CreatedAt = time.Unix(0, v.GetIntegerValue())
	}
	return m
}
