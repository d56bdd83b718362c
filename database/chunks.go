package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
	loadSql "github.com/siherrmann/paperqa/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(ctx context.Context, documentID int64, chunk model.Chunk, embedding []float32) (int64, error)
	SelectChunksByDocument(ctx context.Context, fingerprint string) ([]model.Chunk, [][]float32, error)
	SelectChunksBySimilarity(ctx context.Context, fingerprint string, embedding []float32, limit int) ([]ChunkMatch, error)
	DeleteChunksByDocument(ctx context.Context, documentID int64) (int, error)
}

// ChunkMatch is a chunk index with its cosine similarity to a query
type ChunkMatch struct {
	ChunkIndex int
	Similarity float64
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db           *helper.Database
	q            querier
	embeddingDim int
}

// NewChunksDBHandler creates a new chunks database handler.
// It loads the chunk-related SQL functions and creates the table with an
// embedding column of embeddingDim dimensions. The documents table must exist.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:           db,
		q:            db.Instance,
		embeddingDim: embeddingDim,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table and its indexes if they do not exist yet
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init chunks", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// EmbeddingDim returns the dimension of the embedding column
func (h *ChunksDBHandler) EmbeddingDim() int {
	return h.embeddingDim
}

func (h *ChunksDBHandler) withTx(tx *sql.Tx) *ChunksDBHandler {
	return &ChunksDBHandler{db: h.db, q: tx, embeddingDim: h.embeddingDim}
}

// InsertChunk inserts a chunk of a document and returns its id.
// A nil embedding is stored as NULL.
func (h *ChunksDBHandler) InsertChunk(ctx context.Context, documentID int64, chunk model.Chunk, embedding []float32) (int64, error) {
	var vector any
	if embedding != nil {
		if len(embedding) != h.embeddingDim {
			return 0, helper.NewError("embedding dimension validation", fmt.Errorf("chunk %d has embedding dimension %d, expected %d", chunk.Index, len(embedding), h.embeddingDim))
		}
		vector = pgvector.NewVector(embedding)
	}

	var id int64
	err := h.q.QueryRowContext(
		ctx,
		`SELECT insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		documentID,
		chunk.Index,
		chunk.Content,
		chunk.StartOffset,
		chunk.EndOffset,
		chunk.PageStart,
		chunk.PageEnd,
		chunk.Units,
		vector,
	).Scan(&id)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return id, nil
}

// SelectChunksByDocument retrieves the chunks of a document ordered by chunk index
// together with their embeddings. A chunk without embedding has a nil vector.
func (h *ChunksDBHandler) SelectChunksByDocument(ctx context.Context, fingerprint string) ([]model.Chunk, [][]float32, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_document($1)`,
		fingerprint,
	)
	if err != nil {
		return nil, nil, helper.NewError("query", err)
	}
	defer rows.Close()

	chunks := []model.Chunk{}
	embeddings := [][]float32{}
	for rows.Next() {
		chunk := model.Chunk{}
		var embedding sql.Null[pgvector.Vector]
		err := rows.Scan(
			&chunk.Index,
			&chunk.Content,
			&chunk.StartOffset,
			&chunk.EndOffset,
			&chunk.PageStart,
			&chunk.PageEnd,
			&chunk.Units,
			&embedding,
		)
		if err != nil {
			return nil, nil, helper.NewError("scan", err)
		}

		var vector []float32
		if embedding.Valid {
			vector = embedding.V.Slice()
		}
		chunks = append(chunks, chunk)
		embeddings = append(embeddings, vector)
	}

	err = rows.Err()
	if err != nil {
		return nil, nil, helper.NewError("rows error", err)
	}

	return chunks, embeddings, nil
}

// SelectChunksBySimilarity returns the limit chunks of a document closest to
// embedding by cosine distance, most similar first.
func (h *ChunksDBHandler) SelectChunksBySimilarity(ctx context.Context, fingerprint string, embedding []float32, limit int) ([]ChunkMatch, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3)`,
		fingerprint,
		pgvector.NewVector(embedding),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		match := ChunkMatch{}
		err := rows.Scan(
			&match.ChunkIndex,
			&match.Similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		matches = append(matches, match)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return matches, nil
}

// DeleteChunksByDocument deletes all chunks of a document and returns how many were deleted
func (h *ChunksDBHandler) DeleteChunksByDocument(ctx context.Context, documentID int64) (int, error) {
	var deleted int
	err := h.q.QueryRowContext(
		ctx,
		`SELECT delete_chunks_by_document($1)`,
		documentID,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return deleted, nil
}
