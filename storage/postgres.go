package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Store wraps the Postgres pool shared by every stage. All cross-instance
// coordination happens through its atomic conditional updates.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func New(ctx context.Context, url string, log *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema declares the relational schema idempotently. dim is the
// embedding dimensionality of the configured model.
func (s *Store) EnsureSchema(ctx context.Context, dim int) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS media (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			content_type TEXT NOT NULL,
			file_size_bytes BIGINT NOT NULL DEFAULT 0,
			checksum TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			transcription_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			embedding_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS transcriptions (
			id TEXT PRIMARY KEY,
			media_id TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			model_name TEXT NOT NULL DEFAULT '',
			processing_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			segment_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS transcript_segments (
			id TEXT PRIMARY KEY,
			transcription_id TEXT NOT NULL,
			media_id TEXT NOT NULL,
			segment_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			start_seconds DOUBLE PRECISION NOT NULL,
			end_seconds DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (media_id, segment_index)
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			media_id TEXT NOT NULL,
			transcription_id TEXT NOT NULL,
			segment_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			start_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			end_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (segment_id, model_name)
		);`, dim),
		`CREATE INDEX IF NOT EXISTS idx_segments_media ON transcript_segments(media_id, segment_index);`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_media ON embeddings(media_id);`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model_name);`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_vector ON embeddings USING hnsw (embedding vector_cosine_ops);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
