package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"mediarag/config"
	"mediarag/core"
	"mediarag/messaging"
	"mediarag/processors"
	"mediarag/storage"
)

// TranscriptionWorker consumes MediaUploaded events: it extracts audio, runs
// speech recognition, aggregates raw segments into retrieval-sized chunks,
// persists the transcript, and publishes MediaTranscribed.
type TranscriptionWorker struct {
	media     StatusStore
	store     TranscriptStore
	extractor processors.AudioExtractor
	rec       processors.Recognizer
	pub       Publisher
	chunker   config.ChunkerConfig
	modelName string
	workDir   string
	log       *slog.Logger
}

func NewTranscriptionWorker(media StatusStore, store TranscriptStore, extractor processors.AudioExtractor,
	rec processors.Recognizer, pub Publisher, chunker config.ChunkerConfig, modelName, workDir string, log *slog.Logger) *TranscriptionWorker {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &TranscriptionWorker{
		media:     media,
		store:     store,
		extractor: extractor,
		rec:       rec,
		pub:       pub,
		chunker:   chunker,
		modelName: modelName,
		workDir:   workDir,
		log:       log,
	}
}

// Handle adapts the worker to the consume loop.
func (w *TranscriptionWorker) Handle(ctx context.Context, d amqp.Delivery) messaging.Verdict {
	var event core.MediaUploadedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		w.log.Error("undeserializable upload event", "error", err)
		return messaging.Drop
	}
	return w.Process(ctx, event)
}

func (w *TranscriptionWorker) Process(ctx context.Context, event core.MediaUploadedEvent) messaging.Verdict {
	log := w.log.With("media_id", event.MediaID)
	log.Info("processing upload", "file", event.FileName, "size_bytes", event.FileSizeBytes)

	ok, _, err := enterProcessing(ctx, w.media, log, event.MediaID, core.StatusUploaded, core.StatusTranscriptionProcessing)
	if err != nil {
		log.Error("status transition failed", "error", err)
		return messaging.Retry
	}
	if !ok {
		// Business-rule outcome; retrying cannot change it.
		return messaging.Ack
	}

	if err := w.transcribe(ctx, event, log); err != nil {
		log.Error("transcription failed", "error", err)
		if ferr := w.media.Finalize(ctx, event.MediaID, core.StatusFailed); ferr != nil {
			log.Error("failed to mark media failed", "error", ferr)
		}
		return messaging.Retry
	}
	return messaging.Ack
}

func (w *TranscriptionWorker) transcribe(ctx context.Context, event core.MediaUploadedEvent, log *slog.Logger) error {
	started := time.Now()

	// Redelivery may find half-written results from a crashed run; the
	// transcript is rebuilt wholesale.
	if err := w.store.ResetTranscription(ctx, event.MediaID); err != nil {
		return err
	}

	jobDir := filepath.Join(w.workDir, event.MediaID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(jobDir)

	audioPath := filepath.Join(jobDir, "audio.wav")
	if err := w.extractor.Extract(ctx, event.FilePath, audioPath); err != nil {
		return err
	}

	duration, err := w.extractor.Duration(ctx, audioPath)
	if err != nil {
		return err
	}
	if err := w.media.SetMediaDuration(ctx, event.MediaID, duration); err != nil {
		return err
	}

	// The upload may name a recognition model; otherwise the configured
	// default applies.
	modelName := event.ModelName
	if modelName == "" {
		modelName = w.modelName
	}

	transcriptionID := core.NewID()
	if err := w.store.CreateTranscription(ctx, core.Transcription{
		ID:        transcriptionID,
		MediaID:   event.MediaID,
		ModelName: modelName,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	chunker := processors.NewChunker(w.chunker)
	var fullText strings.Builder
	segmentCount := 0

	persist := func(chunk processors.Chunk) error {
		if err := w.store.InsertSegment(ctx, core.TranscriptSegment{
			ID:              core.NewID(),
			TranscriptionID: transcriptionID,
			MediaID:         event.MediaID,
			SegmentIndex:    chunk.Index,
			Text:            chunk.Text,
			StartSeconds:    chunk.Start,
			EndSeconds:      chunk.End,
		}); err != nil {
			return err
		}
		segmentCount++
		if fullText.Len() > 0 {
			fullText.WriteByte(' ')
		}
		fullText.WriteString(chunk.Text)
		if duration > 0 {
			w.media.UpdateProgress(ctx, event.MediaID, storage.StageTranscription, chunk.End/duration*100)
		}
		return nil
	}

	result, err := w.rec.Transcribe(ctx, audioPath, modelName, func(raw processors.RawSegment) error {
		if chunk, ready := chunker.Push(raw); ready {
			return persist(chunk)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if chunk, ready := chunker.Flush(); ready {
		if err := persist(chunk); err != nil {
			return err
		}
	}

	processing := time.Since(started).Seconds()
	if err := w.store.FinishTranscription(ctx, transcriptionID, fullText.String(), result.Language, processing, segmentCount); err != nil {
		return err
	}

	res, err := w.media.Transition(ctx, event.MediaID, core.StatusTranscriptionProcessing, core.StatusTranscriptionCompleted)
	if err != nil {
		return err
	}
	if res != core.TransitionApplied && res != core.TransitionAlreadyAtTarget {
		log.Warn("could not complete transcription status", "result", res.String())
		return nil
	}

	text := fullText.String()
	wordCount := 0
	if strings.TrimSpace(text) != "" {
		wordCount = len(strings.Fields(text))
	}
	return w.pub.Publish(ctx, core.EventMediaTranscribed, core.MediaTranscribedEvent{
		MediaID:           event.MediaID,
		TranscriptionID:   transcriptionID,
		SegmentCount:      segmentCount,
		WordCount:         wordCount,
		Language:          result.Language,
		ProcessingSeconds: processing,
		TranscribedAt:     time.Now().UTC(),
	})
}
