package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/siherrmann/paperqa/core/cache"
	"github.com/siherrmann/paperqa/core/pipeline"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
	loadSql "github.com/siherrmann/paperqa/sql"
)

var _ cache.Store = (*Store)(nil)
var _ cache.SummaryStore = (*Store)(nil)

// Store persists cache entries in postgres so that they survive restarts
type Store struct {
	db        *helper.Database
	documents *DocumentsDBHandler
	chunks    *ChunksDBHandler
}

// NewStore initialises the extensions, functions and tables and returns the store.
// embeddingDim must match the embed capability.
func NewStore(db *helper.Database, embeddingDim int, force bool) (*Store, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("init database", err)
	}

	documents, err := NewDocumentsDBHandler(db, force)
	if err != nil {
		return nil, err
	}
	chunks, err := NewChunksDBHandler(db, embeddingDim, force)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:        db,
		documents: documents,
		chunks:    chunks,
	}, nil
}

// Load returns the stored entry of fingerprint.
// Entries with chunks missing an embedding are reported as not found.
func (s *Store) Load(ctx context.Context, fingerprint string) (*model.CacheEntry, bool, error) {
	stored, err := s.documents.SelectDocument(ctx, fingerprint)
	if errors.Is(err, model.ErrDocumentNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, helper.NewError("select document", err)
	}

	chunks, embeddings, err := s.chunks.SelectChunksByDocument(ctx, fingerprint)
	if err != nil {
		return nil, false, helper.NewError("select chunks", err)
	}
	for i, e := range embeddings {
		if e == nil {
			s.db.Logger.Warn("Stored chunk has no embedding, ignoring stored document", slog.String("fingerprint", fingerprint), slog.Int("chunk", chunks[i].Index))
			return nil, false, nil
		}
	}

	return &model.CacheEntry{
		Document:   stored.Document,
		Text:       pipeline.JoinSegments(stored.Segments),
		Segments:   stored.Segments,
		Chunks:     chunks,
		Embeddings: embeddings,
		Summary:    stored.Summary,
	}, true, nil
}

// Save replaces the stored document and chunks of the entry in one transaction
func (s *Store) Save(ctx context.Context, entry *model.CacheEntry) error {
	if entry == nil || entry.Document == nil {
		return helper.NewError("save entry", errors.New("entry has no document"))
	}
	if len(entry.Embeddings) != len(entry.Chunks) {
		return helper.NewError("save entry", fmt.Errorf("%d chunks but %d embeddings", len(entry.Chunks), len(entry.Embeddings)))
	}

	tx, err := s.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	// The cached document is shared with readers
	doc := *entry.Document
	err = s.documents.withTx(tx).UpsertDocument(ctx, &StoredDocument{
		Document: &doc,
		Segments: entry.Segments,
		Summary:  entry.Summary,
	})
	if err != nil {
		return helper.NewError("upsert document", err)
	}

	chunks := s.chunks.withTx(tx)
	_, err = chunks.DeleteChunksByDocument(ctx, doc.ID)
	if err != nil {
		return helper.NewError("delete chunks", err)
	}
	for i, c := range entry.Chunks {
		_, err = chunks.InsertChunk(ctx, doc.ID, c, entry.Embeddings[i])
		if err != nil {
			return helper.NewError("insert chunk", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit", err)
	}

	s.db.Logger.Debug("Saved document", slog.String("fingerprint", doc.Fingerprint), slog.Int("chunks", len(entry.Chunks)))

	return nil
}

// SaveSummary stores the summary of an already saved document
func (s *Store) SaveSummary(ctx context.Context, fingerprint string, summary *model.SummaryResult) error {
	return s.documents.UpdateDocumentSummary(ctx, fingerprint, summary)
}

// Delete removes the document and its chunks
func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	_, err := s.documents.DeleteDocument(ctx, fingerprint)
	return err
}

// Documents lists stored documents ordered by id, starting after lastID
func (s *Store) Documents(ctx context.Context, lastID int64, limit int) ([]*model.Document, error) {
	return s.documents.SelectAllDocuments(ctx, lastID, limit)
}

// Nearest returns the k stored chunks of a document closest to embedding
func (s *Store) Nearest(ctx context.Context, fingerprint string, embedding []float32, k int) ([]ChunkMatch, error) {
	return s.chunks.SelectChunksBySimilarity(ctx, fingerprint, embedding, k)
}

// Chunks returns the chunk handler, for index maintenance
func (s *Store) Chunks() *ChunksDBHandler {
	return s.chunks
}
