package core

import "time"

// Routing keys on the media events exchange. Each stage consumes exactly one
// of these and publishes the next.
const (
	EventMediaUploaded    = "media.uploaded"
	EventMediaTranscribed = "media.transcribed"
	EventMediaEmbedded    = "media.embedded"
)

type MediaUploadedEvent struct {
	MediaID       string    `json:"media_id"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	ContentType   string    `json:"content_type"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	ModelName     string    `json:"model_name,omitempty"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

type MediaTranscribedEvent struct {
	MediaID           string    `json:"media_id"`
	TranscriptionID   string    `json:"transcription_id"`
	SegmentCount      int       `json:"segment_count"`
	WordCount         int       `json:"word_count"`
	Language          string    `json:"language"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	TranscribedAt     time.Time `json:"transcribed_at"`
}

type MediaEmbeddedEvent struct {
	MediaID    string    `json:"media_id"`
	ModelName  string    `json:"model_name"`
	ChunkCount int       `json:"chunk_count"`
	EmbeddedAt time.Time `json:"embedded_at"`
}
