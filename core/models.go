package core

import "time"

// Media is one uploaded audio/video item tracked through the pipeline.
type Media struct {
	ID                    string     `json:"id"`
	FileName              string     `json:"file_name"`
	FilePath              string     `json:"file_path"`
	ContentType           string     `json:"content_type"`
	FileSizeBytes         int64      `json:"file_size_bytes"`
	Checksum              string     `json:"checksum"`
	Status                Status     `json:"status"`
	DurationSeconds       float64    `json:"duration_seconds"`
	TranscriptionProgress float64    `json:"transcription_progress"`
	EmbeddingProgress     float64    `json:"embedding_progress"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

// Transcription is the 1:1 result of running speech recognition over a media
// item. Reprocessing replaces it wholesale together with its segments.
type Transcription struct {
	ID                string    `json:"id"`
	MediaID           string    `json:"media_id"`
	Text              string    `json:"text"`
	Language          string    `json:"language"`
	ModelName         string    `json:"model_name"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	SegmentCount      int       `json:"segment_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// TranscriptSegment is one aggregated, retrieval-sized span of transcript
// text. Ordering by SegmentIndex is authoritative.
type TranscriptSegment struct {
	ID              string   `json:"id"`
	TranscriptionID string   `json:"transcription_id"`
	MediaID         string   `json:"media_id"`
	SegmentIndex    int      `json:"segment_index"`
	Text            string   `json:"text"`
	StartSeconds    float64  `json:"start_seconds"`
	EndSeconds      float64  `json:"end_seconds"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

// Embedding is one stored vector per (segment, model) pair. The pair is the
// idempotency key that prevents duplicate embedding work; rows are inserted
// once and never updated.
type Embedding struct {
	ID              string    `json:"id"`
	MediaID         string    `json:"media_id"`
	TranscriptionID string    `json:"transcription_id"`
	SegmentID       string    `json:"segment_id"`
	ModelName       string    `json:"model_name"`
	ChunkText       string    `json:"chunk_text"`
	Vector          []float32 `json:"-"`
	StartSeconds    float64   `json:"start_seconds"`
	EndSeconds      float64   `json:"end_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// TimeRange constrains retrieval to a window of one media item.
type TimeRange struct {
	MediaID      string  `json:"media_id"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// Source is one retrieval hit cited back to the caller, ordered ascending by
// cosine distance.
type Source struct {
	MediaID      string  `json:"media_id"`
	Text         string  `json:"text"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Distance     float64 `json:"distance"`
}
