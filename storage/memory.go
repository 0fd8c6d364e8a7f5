package storage

import (
	"context"
	"math"
	"sort"
	"sync"

	"mediarag/core"
)

// MemoryIndex keeps embeddings in process memory. It backs tests and small
// single-node deployments; the search semantics match the SQL backend.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []core.Embedding
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Exists(_ context.Context, segmentID, modelName string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.SegmentID == segmentID && e.ModelName == modelName {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryIndex) Insert(_ context.Context, emb core.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.SegmentID == emb.SegmentID && e.ModelName == emb.ModelName {
			return nil
		}
	}
	m.entries = append(m.entries, emb)
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, q SearchQuery) ([]core.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sources []core.Source
	for _, e := range m.entries {
		if e.ModelName != q.ModelName {
			continue
		}
		if len(q.Ranges) > 0 && !withinRanges(e, q.Ranges) {
			continue
		}
		d := CosineDistance(q.Vector, e.Vector)
		if d >= q.MaxDistance {
			continue
		}
		sources = append(sources, core.Source{
			MediaID:      e.MediaID,
			Text:         e.ChunkText,
			StartSeconds: e.StartSeconds,
			EndSeconds:   e.EndSeconds,
			Distance:     d,
		})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Distance < sources[j].Distance })
	if q.TopK > 0 && len(sources) > q.TopK {
		sources = sources[:q.TopK]
	}
	return sources, nil
}

func withinRanges(e core.Embedding, ranges []core.TimeRange) bool {
	for _, r := range ranges {
		if e.MediaID == r.MediaID && e.StartSeconds >= r.StartSeconds && e.EndSeconds <= r.EndSeconds {
			return true
		}
	}
	return false
}

// CosineDistance is 1 - cosine similarity; smaller means more similar.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
