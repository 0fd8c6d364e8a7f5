package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mediarag/core"
)

// ProgressStage selects which per-stage progress column an update targets.
type ProgressStage string

const (
	StageTranscription ProgressStage = "transcription_progress"
	StageEmbedding     ProgressStage = "embedding_progress"
)

func (s *Store) CreateMedia(ctx context.Context, m core.Media) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO media (id, file_name, file_path, content_type, file_size_bytes, checksum, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.FileName, m.FilePath, m.ContentType, m.FileSizeBytes, m.Checksum, string(m.Status), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

func (s *Store) GetMedia(ctx context.Context, id string) (*core.Media, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, file_name, file_path, content_type, file_size_bytes, checksum, status,
		       duration_seconds, transcription_progress, embedding_progress, created_at, updated_at
		FROM media WHERE id = $1`, id)
	var m core.Media
	var status string
	err := row.Scan(&m.ID, &m.FileName, &m.FilePath, &m.ContentType, &m.FileSizeBytes, &m.Checksum,
		&status, &m.DurationSeconds, &m.TranscriptionProgress, &m.EmbeddingProgress, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select media: %w", err)
	}
	m.Status = core.Status(status)
	return &m, nil
}

func (s *Store) ListMedia(ctx context.Context, limit, offset int) ([]core.Media, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM media`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count media: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, file_name, file_path, content_type, file_size_bytes, checksum, status,
		       duration_seconds, transcription_progress, embedding_progress, created_at, updated_at
		FROM media ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var items []core.Media
	for rows.Next() {
		var m core.Media
		var status string
		if err := rows.Scan(&m.ID, &m.FileName, &m.FilePath, &m.ContentType, &m.FileSizeBytes, &m.Checksum,
			&status, &m.DurationSeconds, &m.TranscriptionProgress, &m.EmbeddingProgress, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan media: %w", err)
		}
		m.Status = core.Status(status)
		items = append(items, m)
	}
	return items, total, rows.Err()
}

// Transition performs the compare-and-set status update: set status to target
// only when the current status equals expected. The whole check happens in a
// single UPDATE so racing consumer instances cannot both win.
func (s *Store) Transition(ctx context.Context, mediaID string, expected, target core.Status) (core.TransitionResult, error) {
	if !core.CanTransition(expected, target) {
		return core.TransitionMismatch, fmt.Errorf("transition %s -> %s is not in the status graph", expected, target)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE media SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(target), time.Now().UTC(), mediaID, string(expected))
	if err != nil {
		return core.TransitionMismatch, fmt.Errorf("conditional status update: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.log.Info("media status updated", "media_id", mediaID, "from", expected, "to", target)
		return core.TransitionApplied, nil
	}

	// The precondition failed. Re-check: redelivery may have already moved
	// the row to the target.
	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM media WHERE id = $1`, mediaID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.TransitionNotFound, nil
	}
	if err != nil {
		return core.TransitionMismatch, fmt.Errorf("re-check status: %w", err)
	}
	if core.Status(current) == target {
		s.log.Info("media already at target status", "media_id", mediaID, "status", target)
		return core.TransitionAlreadyAtTarget, nil
	}
	s.log.Warn("media in unexpected status, skipping",
		"media_id", mediaID, "current", current, "expected", expected, "target", target)
	return core.TransitionMismatch, nil
}

// UpdateProgress is a best-effort side update; failures are logged and
// swallowed so they can never abort the stage's main transaction. GREATEST
// keeps the percentage monotonic under redelivery.
func (s *Store) UpdateProgress(ctx context.Context, mediaID string, stage ProgressStage, percent float64) {
	if percent > 100 {
		percent = 100
	}
	query := fmt.Sprintf(`UPDATE media SET %s = GREATEST(%s, $1), updated_at = $2 WHERE id = $3`, stage, stage)
	if _, err := s.pool.Exec(ctx, query, percent, time.Now().UTC(), mediaID); err != nil {
		s.log.Error("progress update failed", "media_id", mediaID, "stage", stage, "error", err)
	}
}

// Finalize sets a terminal status unconditionally. Completed pins both
// progress columns to 100. Safe to call more than once with the same value.
func (s *Store) Finalize(ctx context.Context, mediaID string, final core.Status) error {
	if !final.Terminal() {
		return fmt.Errorf("finalize with non-terminal status %s", final)
	}
	var err error
	if final == core.StatusCompleted {
		_, err = s.pool.Exec(ctx, `
			UPDATE media SET status = $1, transcription_progress = 100, embedding_progress = 100, updated_at = $2
			WHERE id = $3`, string(final), time.Now().UTC(), mediaID)
	} else {
		_, err = s.pool.Exec(ctx, `UPDATE media SET status = $1, updated_at = $2 WHERE id = $3`,
			string(final), time.Now().UTC(), mediaID)
	}
	if err != nil {
		return fmt.Errorf("finalize media %s: %w", mediaID, err)
	}
	s.log.Info("media finalized", "media_id", mediaID, "status", final)
	return nil
}

func (s *Store) SetMediaDuration(ctx context.Context, mediaID string, seconds float64) error {
	_, err := s.pool.Exec(ctx, `UPDATE media SET duration_seconds = $1, updated_at = $2 WHERE id = $3`,
		seconds, time.Now().UTC(), mediaID)
	if err != nil {
		return fmt.Errorf("set media duration: %w", err)
	}
	return nil
}

// DeleteMedia removes a media item and everything derived from it. This is
// the only deletion path; nothing else ever removes rows.
func (s *Store) DeleteMedia(ctx context.Context, mediaID string) (segments int64, embeddings int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE media_id = $1`, mediaID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete embeddings: %w", err)
	}
	embeddings = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM transcript_segments WHERE media_id = $1`, mediaID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete segments: %w", err)
	}
	segments = tag.RowsAffected()

	if _, err = tx.Exec(ctx, `DELETE FROM transcriptions WHERE media_id = $1`, mediaID); err != nil {
		return 0, 0, fmt.Errorf("delete transcription: %w", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM media WHERE id = $1`, mediaID); err != nil {
		return 0, 0, fmt.Errorf("delete media: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit delete: %w", err)
	}
	return segments, embeddings, nil
}
