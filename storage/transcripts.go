package storage

import (
	"context"
	"fmt"

	"mediarag/core"
)

// ResetTranscription removes a prior transcript, its segments and their
// embeddings so a redelivered upload event can rebuild them from scratch.
func (s *Store) ResetTranscription(ctx context.Context, mediaID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE media_id = $1`, mediaID); err != nil {
		return fmt.Errorf("reset embeddings: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM transcript_segments WHERE media_id = $1`, mediaID); err != nil {
		return fmt.Errorf("reset segments: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM transcriptions WHERE media_id = $1`, mediaID); err != nil {
		return fmt.Errorf("reset transcription: %w", err)
	}
	return tx.Commit(ctx)
}

// CreateTranscription inserts the transcript row up front; the full text and
// totals are filled in by FinishTranscription once the stream has been
// consumed.
func (s *Store) CreateTranscription(ctx context.Context, t core.Transcription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcriptions (id, media_id, text, language, model_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.MediaID, t.Text, t.Language, t.ModelName, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

func (s *Store) FinishTranscription(ctx context.Context, id, text, language string, processingSeconds float64, segmentCount int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE transcriptions
		SET text = $1, language = $2, processing_seconds = $3, segment_count = $4
		WHERE id = $5`,
		text, language, processingSeconds, segmentCount, id)
	if err != nil {
		return fmt.Errorf("finish transcription: %w", err)
	}
	return nil
}

func (s *Store) InsertSegment(ctx context.Context, seg core.TranscriptSegment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcript_segments (id, transcription_id, media_id, segment_index, text, start_seconds, end_seconds, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		seg.ID, seg.TranscriptionID, seg.MediaID, seg.SegmentIndex, seg.Text, seg.StartSeconds, seg.EndSeconds, seg.Confidence)
	if err != nil {
		return fmt.Errorf("insert segment %d: %w", seg.SegmentIndex, err)
	}
	return nil
}

// ListSegments returns every aggregated segment of a media item in index
// order, which is the authoritative ordering.
func (s *Store) ListSegments(ctx context.Context, mediaID string) ([]core.TranscriptSegment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, transcription_id, media_id, segment_index, text, start_seconds, end_seconds, confidence
		FROM transcript_segments WHERE media_id = $1 ORDER BY segment_index`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segs []core.TranscriptSegment
	for rows.Next() {
		var seg core.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.TranscriptionID, &seg.MediaID, &seg.SegmentIndex,
			&seg.Text, &seg.StartSeconds, &seg.EndSeconds, &seg.Confidence); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}
