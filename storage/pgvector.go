package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"mediarag/core"
)

// PgVectorIndex stores vectors in the embeddings table and searches them with
// the pgvector cosine distance operator. It is the default backend.
type PgVectorIndex struct {
	store *Store
}

func NewPgVectorIndex(store *Store) *PgVectorIndex {
	return &PgVectorIndex{store: store}
}

func (p *PgVectorIndex) Exists(ctx context.Context, segmentID, modelName string) (bool, error) {
	var exists bool
	err := p.store.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM embeddings WHERE segment_id = $1 AND model_name = $2)`,
		segmentID, modelName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("embedding existence check: %w", err)
	}
	return exists, nil
}

func (p *PgVectorIndex) Insert(ctx context.Context, emb core.Embedding) error {
	// ON CONFLICT makes redelivered work harmless; the unique
	// (segment_id, model_name) pair is the idempotency key.
	_, err := p.store.pool.Exec(ctx, `
		INSERT INTO embeddings (id, media_id, transcription_id, segment_id, model_name, chunk_text, embedding, start_seconds, end_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (segment_id, model_name) DO NOTHING`,
		emb.ID, emb.MediaID, emb.TranscriptionID, emb.SegmentID, emb.ModelName,
		emb.ChunkText, pgvector.NewVector(emb.Vector), emb.StartSeconds, emb.EndSeconds, emb.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

func (p *PgVectorIndex) Search(ctx context.Context, q SearchQuery) ([]core.Source, error) {
	vec := pgvector.NewVector(q.Vector)

	var (
		sql  string
		args []any
	)
	if len(q.Ranges) > 0 {
		rangesJSON, err := json.Marshal(q.Ranges)
		if err != nil {
			return nil, fmt.Errorf("encode time ranges: %w", err)
		}
		sql = `
			WITH ranges AS (
				SELECT * FROM jsonb_to_recordset($4::jsonb)
				AS r(media_id text, start_seconds double precision, end_seconds double precision)
			)
			SELECT e.media_id, e.chunk_text, e.start_seconds, e.end_seconds, e.embedding <=> $1 AS distance
			FROM embeddings e
			JOIN ranges r
			  ON e.media_id = r.media_id
			 AND e.start_seconds >= r.start_seconds
			 AND e.end_seconds <= r.end_seconds
			WHERE e.model_name = $2 AND (e.embedding <=> $1) < $3
			ORDER BY distance
			LIMIT $5`
		args = []any{vec, q.ModelName, q.MaxDistance, string(rangesJSON), q.TopK}
	} else {
		sql = `
			SELECT e.media_id, e.chunk_text, e.start_seconds, e.end_seconds, e.embedding <=> $1 AS distance
			FROM embeddings e
			WHERE e.model_name = $2 AND (e.embedding <=> $1) < $3
			ORDER BY distance
			LIMIT $4`
		args = []any{vec, q.ModelName, q.MaxDistance, q.TopK}
	}

	rows, err := p.store.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var sources []core.Source
	for rows.Next() {
		var src core.Source
		if err := rows.Scan(&src.MediaID, &src.Text, &src.StartSeconds, &src.EndSeconds, &src.Distance); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}
