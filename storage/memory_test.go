package storage

import (
	"context"
	"math"
	"testing"

	"mediarag/core"
)

func emb(segID, mediaID string, start, end float64, vec []float32) core.Embedding {
	return core.Embedding{
		ID:           core.NewID(),
		MediaID:      mediaID,
		SegmentID:    segID,
		ModelName:    "nomic-embed-text",
		ChunkText:    "segment " + segID,
		Vector:       vec,
		StartSeconds: start,
		EndSeconds:   end,
	}
}

func TestMemoryIndexIdempotentInsert(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	e := emb("s1", "m1", 0, 30, []float32{1, 0})
	if err := idx.Insert(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := idx.Insert(ctx, e); err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if len(idx.entries) != 1 {
		t.Errorf("duplicate (segment, model) pair stored: %d entries", len(idx.entries))
	}

	ok, err := idx.Exists(ctx, "s1", "nomic-embed-text")
	if err != nil || !ok {
		t.Errorf("Exists(s1) = %v, %v; want true", ok, err)
	}
	ok, _ = idx.Exists(ctx, "s1", "other-model")
	if ok {
		t.Error("Exists should be scoped to model name")
	}
}

func TestMemoryIndexSearchOrderingAndThreshold(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	// Distances against query [1, 0]: 0.0, ~0.29, 1.0.
	_ = idx.Insert(ctx, emb("a", "m1", 0, 30, []float32{1, 0}))
	_ = idx.Insert(ctx, emb("b", "m1", 30, 60, []float32{1, 1}))
	_ = idx.Insert(ctx, emb("c", "m1", 60, 90, []float32{0, 1}))

	got, err := idx.Search(ctx, SearchQuery{
		Vector:      []float32{1, 0},
		ModelName:   "nomic-embed-text",
		TopK:        10,
		MaxDistance: 0.5,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d hits, want 2 (distance threshold must exclude orthogonal vector)", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Errorf("results not sorted ascending by distance: %v then %v", got[i-1].Distance, got[i].Distance)
		}
	}
	for _, src := range got {
		if src.Distance >= 0.5 {
			t.Errorf("hit with distance %f >= threshold", src.Distance)
		}
	}

	capped, _ := idx.Search(ctx, SearchQuery{Vector: []float32{1, 0}, ModelName: "nomic-embed-text", TopK: 1, MaxDistance: 0.5})
	if len(capped) != 1 {
		t.Errorf("top-K cap not applied: got %d", len(capped))
	}
	if capped[0].Text != "segment a" {
		t.Errorf("best hit should be the exact match, got %q", capped[0].Text)
	}
}

func TestMemoryIndexSearchTimeRanges(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	_ = idx.Insert(ctx, emb("a", "m1", 0, 30, []float32{1, 0}))
	_ = idx.Insert(ctx, emb("b", "m1", 40, 70, []float32{1, 0}))
	_ = idx.Insert(ctx, emb("c", "m2", 0, 30, []float32{1, 0}))

	got, err := idx.Search(ctx, SearchQuery{
		Vector:      []float32{1, 0},
		ModelName:   "nomic-embed-text",
		Ranges:      []core.TimeRange{{MediaID: "m1", StartSeconds: 35, EndSeconds: 80}},
		TopK:        10,
		MaxDistance: 0.5,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].StartSeconds != 40 {
		t.Fatalf("range constraint not honored: %+v", got)
	}
}

func TestMemoryIndexSearchEmpty(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	got, err := idx.Search(ctx, SearchQuery{Vector: []float32{1, 0}, ModelName: "nomic-embed-text", TopK: 5, MaxDistance: 0.5})
	if err != nil {
		t.Fatalf("empty store search must not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float32{1, 0}, []float32{1, 0}); math.Abs(d) > 1e-9 {
		t.Errorf("identical vectors: distance %f, want 0", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{0, 1}); math.Abs(d-1) > 1e-9 {
		t.Errorf("orthogonal vectors: distance %f, want 1", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{0, 0}); d != 1 {
		t.Errorf("zero vector: distance %f, want 1", d)
	}
	if d := CosineDistance(nil, []float32{1}); d != 1 {
		t.Errorf("mismatched lengths: distance %f, want 1", d)
	}
}
