package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"mediarag/core"
)

// MilvusIndex is the alternate vector backend, selected with
// VECTOR_BACKEND=milvus. Media rows, transcripts and segments stay in
// Postgres either way; only the vectors move.
type MilvusIndex struct {
	mc   client.Client
	coll string
	dim  int
}

type MilvusConfig struct {
	Addr       string
	Username   string
	Password   string
	APIKey     string
	Collection string
	Dim        int
}

func NewMilvusIndex(ctx context.Context, cfg MilvusConfig) (*MilvusIndex, error) {
	mc, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		APIKey:   cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	idx := &MilvusIndex{mc: mc, coll: cfg.Collection, dim: cfg.Dim}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	has, err := m.mc.HasCollection(ctx, m.coll)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("segment_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("media_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("model_name").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("chunk_text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("start_seconds").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("end_seconds").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(m.dim)))
		if err := m.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := m.mc.CreateIndex(ctx, m.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := m.mc.LoadCollection(ctx, m.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func escapeExpr(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

func (m *MilvusIndex) Exists(ctx context.Context, segmentID, modelName string) (bool, error) {
	expr := fmt.Sprintf(`segment_id == "%s" && model_name == "%s"`, escapeExpr(segmentID), escapeExpr(modelName))
	rs, err := m.mc.Query(ctx, m.coll, nil, expr, []string{"segment_id"})
	if err != nil {
		return false, fmt.Errorf("milvus existence check: %w", err)
	}
	for _, col := range rs {
		if col.Len() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (m *MilvusIndex) Insert(ctx context.Context, emb core.Embedding) error {
	exists, err := m.Exists(ctx, emb.SegmentID, emb.ModelName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = m.mc.Insert(ctx, m.coll, "",
		entity.NewColumnVarChar("segment_id", []string{emb.SegmentID}),
		entity.NewColumnVarChar("media_id", []string{emb.MediaID}),
		entity.NewColumnVarChar("model_name", []string{emb.ModelName}),
		entity.NewColumnVarChar("chunk_text", []string{emb.ChunkText}),
		entity.NewColumnDouble("start_seconds", []float64{emb.StartSeconds}),
		entity.NewColumnDouble("end_seconds", []float64{emb.EndSeconds}),
		entity.NewColumnFloatVector("vector", m.dim, [][]float32{emb.Vector}),
	)
	if err != nil {
		return fmt.Errorf("milvus insert: %w", err)
	}
	return nil
}

func (m *MilvusIndex) Search(ctx context.Context, q SearchQuery) ([]core.Source, error) {
	expr := fmt.Sprintf(`model_name == "%s"`, escapeExpr(q.ModelName))
	if len(q.Ranges) > 0 {
		clauses := make([]string, 0, len(q.Ranges))
		for _, r := range q.Ranges {
			clauses = append(clauses, fmt.Sprintf(`(media_id == "%s" && start_seconds >= %f && end_seconds <= %f)`,
				escapeExpr(r.MediaID), r.StartSeconds, r.EndSeconds))
		}
		expr = fmt.Sprintf("%s && (%s)", expr, strings.Join(clauses, " || "))
	}

	sp, _ := entity.NewIndexHNSWSearchParam(74)
	results, err := m.mc.Search(ctx, m.coll, []string{}, expr,
		[]string{"media_id", "chunk_text", "start_seconds", "end_seconds"},
		[]entity.Vector{entity.FloatVector(q.Vector)}, "vector", entity.COSINE, q.TopK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var sources []core.Source
	for _, r := range results {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var src core.Source
			if c, ok := cols["media_id"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					src.MediaID = data[i]
				}
			}
			if c, ok := cols["chunk_text"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					src.Text = data[i]
				}
			}
			if c, ok := cols["start_seconds"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					src.StartSeconds = data[i]
				}
			}
			if c, ok := cols["end_seconds"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					src.EndSeconds = data[i]
				}
			}
			// COSINE scores are similarities; the pipeline speaks distance.
			src.Distance = 1 - float64(r.Scores[i])
			if src.Distance >= q.MaxDistance {
				continue
			}
			sources = append(sources, src)
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Distance < sources[j].Distance })
	if q.TopK > 0 && len(sources) > q.TopK {
		sources = sources[:q.TopK]
	}
	return sources, nil
}

func (m *MilvusIndex) Close() error {
	return m.mc.Close()
}
