package storage

import (
	"context"
	"fmt"

	"mediarag/config"
	"mediarag/core"
)

// SearchQuery is a constrained similarity search over stored segment
// vectors. When Ranges is empty the search spans every media item.
type SearchQuery struct {
	Vector      []float32
	ModelName   string
	Ranges      []core.TimeRange
	TopK        int
	MaxDistance float64
}

// VectorIndex abstracts the vector backend. Exists is the per-segment
// idempotency check the embedding stage relies on; Insert must be a no-op
// when the (segment, model) pair is already present.
type VectorIndex interface {
	Exists(ctx context.Context, segmentID, modelName string) (bool, error)
	Insert(ctx context.Context, emb core.Embedding) error
	Search(ctx context.Context, q SearchQuery) ([]core.Source, error)
}

// NewIndex builds the configured vector backend. The memory backend holds
// nothing across restarts and exists for development and tests.
func NewIndex(ctx context.Context, cfg *config.Config, store *Store) (VectorIndex, error) {
	switch cfg.VectorBackend {
	case "pgvector":
		return NewPgVectorIndex(store), nil
	case "milvus":
		return NewMilvusIndex(ctx, MilvusConfig{
			Addr:       cfg.MilvusAddr,
			Username:   cfg.MilvusUsername,
			Password:   cfg.MilvusPassword,
			APIKey:     cfg.MilvusAPIKey,
			Collection: cfg.MilvusCollection,
			Dim:        cfg.EmbeddingDim,
		})
	case "memory":
		return NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}
