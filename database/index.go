package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/paperqa/helper"
)

// VectorIndexType is the pgvector index type of the chunk embeddings
type VectorIndexType string

const (
	VectorIndexHNSW    VectorIndexType = "hnsw"
	VectorIndexIVFFlat VectorIndexType = "ivfflat"
)

// VectorIndexParams tunes the vector index. Zero values use the pgvector defaults.
type VectorIndexParams struct {
	M              int // HNSW, default 16
	EfConstruction int // HNSW, default 64
	Lists          int // IVFFlat, default 100
}

// ChangeIndexType replaces the vector index on the chunk embeddings
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType VectorIndexType, params VectorIndexParams) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var createIndexSQL string
	switch indexType {
	case VectorIndexHNSW:
		m, efConstruction := 16, 64
		if params.M > 0 {
			m = params.M
		}
		if params.EfConstruction > 0 {
			efConstruction = params.EfConstruction
		}
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		)
	case VectorIndexIVFFlat:
		lists := 100
		if params.Lists > 0 {
			lists = params.Lists
		}
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		)
	default:
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	_, err := h.db.Instance.ExecContext(ctx, `DROP INDEX IF EXISTS idx_chunks_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info("Changed vector index", slog.String("type", string(indexType)), slog.Any("params", params))

	return nil
}
