package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
	loadSql "github.com/siherrmann/paperqa/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	UpsertDocument(ctx context.Context, doc *StoredDocument) error
	SelectDocument(ctx context.Context, fingerprint string) (*StoredDocument, error)
	SelectAllDocuments(ctx context.Context, lastID int64, limit int) ([]*model.Document, error)
	UpdateDocumentSummary(ctx context.Context, fingerprint string, summary *model.SummaryResult) error
	DeleteDocument(ctx context.Context, fingerprint string) (bool, error)
}

// StoredDocument is a document row with its page texts and cached summary
type StoredDocument struct {
	Document *model.Document
	Segments []model.Segment
	Summary  *model.SummaryResult
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
	q  querier
}

// NewDocumentsDBHandler creates a new documents database handler.
// It loads the document-related SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database if it does not exist yet
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		return helper.NewError("init documents", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

func (h *DocumentsDBHandler) withTx(tx *sql.Tx) *DocumentsDBHandler {
	return &DocumentsDBHandler{db: h.db, q: tx}
}

// UpsertDocument inserts the document or replaces the row with the same fingerprint.
// ID and RID of doc.Document are set from the stored row.
func (h *DocumentsDBHandler) UpsertDocument(ctx context.Context, doc *StoredDocument) error {
	if doc == nil || doc.Document == nil {
		return helper.NewError("upsert document", errors.New("document is nil"))
	}

	segments, err := json.Marshal(doc.Segments)
	if err != nil {
		return helper.NewError("marshal segments", err)
	}
	summary, err := marshalSummary(doc.Summary)
	if err != nil {
		return err
	}
	metadata := doc.Document.Metadata
	if metadata == nil {
		metadata = model.Metadata{}
	}

	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_document($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.Document.Fingerprint,
		doc.Document.Source,
		doc.Document.ByteLength,
		doc.Document.PageCount,
		string(doc.Document.Status),
		metadata,
		segments,
		summary,
		doc.Document.ExtractedAt,
	)

	d := doc.Document
	err = row.Scan(
		&d.ID,
		&d.RID,
		&d.Fingerprint,
		&d.Source,
		&d.ByteLength,
		&d.PageCount,
		&d.Status,
		&d.Metadata,
		&d.ExtractedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectDocument retrieves a document by fingerprint.
// It returns model.ErrDocumentNotFound when there is no such document.
func (h *DocumentsDBHandler) SelectDocument(ctx context.Context, fingerprint string) (*StoredDocument, error) {
	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM select_document($1)`,
		fingerprint,
	)

	doc := &model.Document{}
	var segments, summary []byte
	err := row.Scan(
		&doc.ID,
		&doc.RID,
		&doc.Fingerprint,
		&doc.Source,
		&doc.ByteLength,
		&doc.PageCount,
		&doc.Status,
		&doc.Metadata,
		&segments,
		&summary,
		&doc.ExtractedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewPipelineError(model.ErrDocumentNotFound, fingerprint, false, nil)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	stored := &StoredDocument{Document: doc}
	if err := json.Unmarshal(segments, &stored.Segments); err != nil {
		return nil, helper.NewError("unmarshal segments", err)
	}
	if len(summary) > 0 {
		stored.Summary = &model.SummaryResult{}
		if err := json.Unmarshal(summary, stored.Summary); err != nil {
			return nil, helper.NewError("unmarshal summary", err)
		}
	}

	return stored, nil
}

// SelectAllDocuments retrieves documents ordered by id, starting after lastID
func (h *DocumentsDBHandler) SelectAllDocuments(ctx context.Context, lastID int64, limit int) ([]*model.Document, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_all_documents($1, $2)`,
		lastID,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		err := rows.Scan(
			&doc.ID,
			&doc.RID,
			&doc.Fingerprint,
			&doc.Source,
			&doc.ByteLength,
			&doc.PageCount,
			&doc.Status,
			&doc.Metadata,
			&doc.ExtractedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		documents = append(documents, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return documents, nil
}

// UpdateDocumentSummary stores the summary of a document
func (h *DocumentsDBHandler) UpdateDocumentSummary(ctx context.Context, fingerprint string, summary *model.SummaryResult) error {
	data, err := marshalSummary(summary)
	if err != nil {
		return err
	}

	var found bool
	err = h.q.QueryRowContext(
		ctx,
		`SELECT update_document_summary($1, $2)`,
		fingerprint,
		data,
	).Scan(&found)
	if err != nil {
		return helper.NewError("scan", err)
	}
	if !found {
		return model.NewPipelineError(model.ErrDocumentNotFound, fingerprint, false, nil)
	}

	return nil
}

// DeleteDocument deletes a document and its chunks by fingerprint
func (h *DocumentsDBHandler) DeleteDocument(ctx context.Context, fingerprint string) (bool, error) {
	var found bool
	err := h.q.QueryRowContext(
		ctx,
		`SELECT delete_document($1)`,
		fingerprint,
	).Scan(&found)
	if err != nil {
		return false, helper.NewError("scan", err)
	}
	return found, nil
}

// marshalSummary returns nil for a nil summary so that the column stays NULL
func marshalSummary(summary *model.SummaryResult) ([]byte, error) {
	if summary == nil {
		return nil, nil
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, helper.NewError("marshal summary", err)
	}
	return data, nil
}
