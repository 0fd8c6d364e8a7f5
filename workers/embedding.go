package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"mediarag/core"
	"mediarag/messaging"
	"mediarag/processors"
	"mediarag/storage"
)

// EmbeddingWorker consumes MediaTranscribed events: it embeds every transcript
// segment that does not already have a vector for the configured model,
// completes the media item, and publishes MediaEmbedded.
type EmbeddingWorker struct {
	media     StatusStore
	store     TranscriptStore
	index     storage.VectorIndex
	embedder  processors.Embedder
	pub       Publisher
	modelName string
	log       *slog.Logger
}

func NewEmbeddingWorker(media StatusStore, store TranscriptStore, index storage.VectorIndex,
	embedder processors.Embedder, pub Publisher, modelName string, log *slog.Logger) *EmbeddingWorker {
	return &EmbeddingWorker{
		media:     media,
		store:     store,
		index:     index,
		embedder:  embedder,
		pub:       pub,
		modelName: modelName,
		log:       log,
	}
}

// Handle adapts the worker to the consume loop.
func (w *EmbeddingWorker) Handle(ctx context.Context, d amqp.Delivery) messaging.Verdict {
	var event core.MediaTranscribedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		w.log.Error("undeserializable transcribed event", "error", err)
		return messaging.Drop
	}
	return w.Process(ctx, event)
}

func (w *EmbeddingWorker) Process(ctx context.Context, event core.MediaTranscribedEvent) messaging.Verdict {
	log := w.log.With("media_id", event.MediaID)
	log.Info("processing transcript", "segments", event.SegmentCount, "language", event.Language)

	ok, _, err := enterProcessing(ctx, w.media, log, event.MediaID, core.StatusTranscriptionCompleted, core.StatusEmbeddingProcessing)
	if err != nil {
		log.Error("status transition failed", "error", err)
		return messaging.Retry
	}
	if !ok {
		return messaging.Ack
	}
	w.media.UpdateProgress(ctx, event.MediaID, storage.StageEmbedding, 0)

	if err := w.embed(ctx, event, log); err != nil {
		log.Error("embedding failed", "error", err)
		if ferr := w.media.Finalize(ctx, event.MediaID, core.StatusFailed); ferr != nil {
			log.Error("failed to mark media failed", "error", ferr)
		}
		return messaging.Retry
	}
	return messaging.Ack
}

func (w *EmbeddingWorker) embed(ctx context.Context, event core.MediaTranscribedEvent, log *slog.Logger) error {
	segments, err := w.store.ListSegments(ctx, event.MediaID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		// A silent recording has nothing to index but the pipeline still ran.
		log.Warn("no transcript segments, completing without embeddings")
		return w.media.Finalize(ctx, event.MediaID, core.StatusCompleted)
	}

	skipped := 0
	for processed, seg := range segments {
		// Redelivery skips segments that already carry a vector for this
		// model instead of re-paying for them.
		exists, err := w.index.Exists(ctx, seg.ID, w.modelName)
		if err != nil {
			return err
		}
		if exists {
			skipped++
		} else {
			vector, err := w.embedder.Embed(ctx, seg.Text)
			if err != nil {
				return err
			}
			if err := w.index.Insert(ctx, core.Embedding{
				ID:              core.NewID(),
				MediaID:         seg.MediaID,
				TranscriptionID: seg.TranscriptionID,
				SegmentID:       seg.ID,
				ModelName:       w.modelName,
				ChunkText:       seg.Text,
				Vector:          vector,
				StartSeconds:    seg.StartSeconds,
				EndSeconds:      seg.EndSeconds,
				CreatedAt:       time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
		w.media.UpdateProgress(ctx, event.MediaID, storage.StageEmbedding, float64(processed+1)/float64(len(segments))*100)
	}

	if skipped > 0 {
		log.Info("skipped already-embedded segments", "skipped", skipped, "total", len(segments))
	}
	return w.complete(ctx, event.MediaID, len(segments))
}

func (w *EmbeddingWorker) complete(ctx context.Context, mediaID string, chunkCount int) error {
	if err := w.media.Finalize(ctx, mediaID, core.StatusCompleted); err != nil {
		return err
	}
	return w.pub.Publish(ctx, core.EventMediaEmbedded, core.MediaEmbeddedEvent{
		MediaID:    mediaID,
		ModelName:  w.modelName,
		ChunkCount: chunkCount,
		EmbeddedAt: time.Now().UTC(),
	})
}
