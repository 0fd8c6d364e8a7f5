package workers

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"mediarag/core"
	"mediarag/messaging"
	"mediarag/storage"
)

func seedSegments(store *fakeTranscriptStore, mediaID string, n int) {
	for i := 0; i < n; i++ {
		store.segments = append(store.segments, core.TranscriptSegment{
			ID:              core.NewID(),
			TranscriptionID: "t1",
			MediaID:         mediaID,
			SegmentIndex:    i,
			Text:            "Segment text.",
			StartSeconds:    float64(i * 40),
			EndSeconds:      float64((i + 1) * 40),
		})
	}
}

func newEmbeddingFixture(t *testing.T, status core.Status, segments int) (*EmbeddingWorker, *fakeStatusStore, *fakeTranscriptStore, *storage.MemoryIndex, *fakeEmbedder, *fakePublisher) {
	t.Helper()
	media := newFakeStatusStore()
	media.items["m1"] = &fakeMedia{status: status}
	store := newFakeTranscriptStore()
	seedSegments(store, "m1", segments)
	index := storage.NewMemoryIndex()
	embedder := &fakeEmbedder{}
	pub := &fakePublisher{}
	w := NewEmbeddingWorker(media, store, index, embedder, pub, "nomic-embed-text", discardLogger())
	return w, media, store, index, embedder, pub
}

func TestEmbeddingWorkerProcess(t *testing.T) {
	w, media, store, index, embedder, pub := newEmbeddingFixture(t, core.StatusTranscriptionCompleted, 3)

	verdict := w.Process(context.Background(), core.MediaTranscribedEvent{MediaID: "m1", SegmentCount: 3})
	if verdict != messaging.Ack {
		t.Fatalf("verdict = %v, want Ack", verdict)
	}
	if embedder.calls != 3 {
		t.Fatalf("embedder calls = %d, want 3", embedder.calls)
	}
	for _, seg := range store.segments {
		exists, _ := index.Exists(context.Background(), seg.ID, "nomic-embed-text")
		if !exists {
			t.Fatalf("segment %s has no stored vector", seg.ID)
		}
	}

	m := media.items["m1"]
	if m.status != core.StatusCompleted {
		t.Fatalf("status = %s, want %s", m.status, core.StatusCompleted)
	}
	if m.embeddingProgress != 100 {
		t.Fatalf("embedding progress = %g, want 100", m.embeddingProgress)
	}

	if len(pub.events) != 1 || pub.events[0].routingKey != core.EventMediaEmbedded {
		t.Fatalf("published = %+v", pub.events)
	}
	event := pub.events[0].event.(core.MediaEmbeddedEvent)
	if event.MediaID != "m1" || event.ChunkCount != 3 || event.ModelName != "nomic-embed-text" {
		t.Fatalf("event = %+v", event)
	}
}

func TestEmbeddingWorkerReplayIsIdempotent(t *testing.T) {
	w, media, _, _, embedder, pub := newEmbeddingFixture(t, core.StatusTranscriptionCompleted, 3)
	event := core.MediaTranscribedEvent{MediaID: "m1", SegmentCount: 3}

	if v := w.Process(context.Background(), event); v != messaging.Ack {
		t.Fatalf("first verdict = %v, want Ack", v)
	}
	if v := w.Process(context.Background(), event); v != messaging.Ack {
		t.Fatalf("replay verdict = %v, want Ack", v)
	}

	// The item is Completed; the replay skips without touching the model or
	// republishing.
	if embedder.calls != 3 {
		t.Fatalf("embedder calls = %d, want 3", embedder.calls)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	if media.items["m1"].status != core.StatusCompleted {
		t.Fatalf("status = %s", media.items["m1"].status)
	}
}

func TestEmbeddingWorkerResumesInterruptedRun(t *testing.T) {
	// The item crashed mid-stage: status stuck in embedding_processing with
	// two of three vectors already stored.
	w, media, store, index, embedder, pub := newEmbeddingFixture(t, core.StatusEmbeddingProcessing, 3)
	for _, seg := range store.segments[:2] {
		if err := index.Insert(context.Background(), core.Embedding{
			ID: core.NewID(), MediaID: seg.MediaID, SegmentID: seg.ID,
			ModelName: "nomic-embed-text", ChunkText: seg.Text, Vector: []float32{1, 0},
		}); err != nil {
			t.Fatal(err)
		}
	}

	verdict := w.Process(context.Background(), core.MediaTranscribedEvent{MediaID: "m1", SegmentCount: 3})
	if verdict != messaging.Ack {
		t.Fatalf("verdict = %v, want Ack", verdict)
	}
	if embedder.calls != 1 {
		t.Fatalf("embedder calls = %d, want only the missing segment", embedder.calls)
	}
	if media.items["m1"].status != core.StatusCompleted {
		t.Fatalf("status = %s, want %s", media.items["m1"].status, core.StatusCompleted)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	if event := pub.events[0].event.(core.MediaEmbeddedEvent); event.ChunkCount != 3 {
		t.Fatalf("chunk count = %d, want 3", event.ChunkCount)
	}
}

func TestEmbeddingWorkerNoSegments(t *testing.T) {
	w, media, _, _, embedder, pub := newEmbeddingFixture(t, core.StatusTranscriptionCompleted, 0)

	verdict := w.Process(context.Background(), core.MediaTranscribedEvent{MediaID: "m1"})
	if verdict != messaging.Ack {
		t.Fatalf("verdict = %v, want Ack", verdict)
	}
	if media.items["m1"].status != core.StatusCompleted {
		t.Fatalf("status = %s, want %s", media.items["m1"].status, core.StatusCompleted)
	}
	if embedder.calls != 0 {
		t.Fatalf("embedder calls = %d, want 0", embedder.calls)
	}
	if len(pub.events) != 0 {
		t.Fatal("an empty transcript completes without publishing")
	}
}

func TestEmbeddingWorkerModelFailure(t *testing.T) {
	w, media, _, _, embedder, pub := newEmbeddingFixture(t, core.StatusTranscriptionCompleted, 2)
	embedder.err = errors.New("model unavailable")

	verdict := w.Process(context.Background(), core.MediaTranscribedEvent{MediaID: "m1"})
	if verdict != messaging.Retry {
		t.Fatalf("verdict = %v, want Retry", verdict)
	}
	if media.items["m1"].status != core.StatusFailed {
		t.Fatalf("status = %s, want %s", media.items["m1"].status, core.StatusFailed)
	}
	if len(pub.events) != 0 {
		t.Fatal("nothing should be published on failure")
	}
}

func TestEmbeddingWorkerHandleBadPayload(t *testing.T) {
	w, _, _, _, _, _ := newEmbeddingFixture(t, core.StatusTranscriptionCompleted, 0)

	verdict := w.Handle(context.Background(), amqp.Delivery{Body: []byte("{")})
	if verdict != messaging.Drop {
		t.Fatalf("verdict = %v, want Drop", verdict)
	}
}
