package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
)

// Result is the outcome of extracting one PDF
type Result struct {
	Segments    []model.Segment
	PageCount   int // Pages in the file, including pages beyond the page cap
	FailedPages int
	Status      model.ExtractionStatus
	Metadata    model.Metadata // From the document information dictionary
}

// ExtractFunc turns raw PDF bytes into page segments
type ExtractFunc func(ctx context.Context, fingerprint string, data []byte) (*Result, error)

// Extractor converts PDF bytes into one Segment per page
type Extractor struct {
	config model.ExtractConfig
	log    *slog.Logger
}

// NewExtractor creates a new PDF text extractor
func NewExtractor(config model.ExtractConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		config: config,
		log:    logger,
	}
}

// Extract reads all pages up to the configured page cap.
// Pages without extractable text, images only for example, yield an empty
// Segment. Invalid or encrypted input fails with a non retryable ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, fingerprint string, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, model.NewPipelineError(model.ErrExtraction, fingerprint, false, fmt.Errorf("empty input"))
	}
	if e.config.MaxBytes > 0 && int64(len(data)) > e.config.MaxBytes {
		return nil, model.NewPipelineError(model.ErrExtraction, fingerprint, false, fmt.Errorf("file too large: %d bytes", len(data)))
	}

	reader, err := e.open(data)
	if err != nil {
		return nil, model.NewPipelineError(model.ErrExtraction, fingerprint, false, err)
	}

	pageCount := reader.NumPage()
	pages := pageCount
	if e.config.MaxPages > 0 && pages > e.config.MaxPages {
		e.log.Warn("Page cap reached, remaining pages skipped", slog.String("fingerprint", fingerprint), slog.Int("page_count", pageCount), slog.Int("max_pages", e.config.MaxPages))
		pages = e.config.MaxPages
	}

	result := &Result{
		Segments:  make([]model.Segment, 0, pages),
		PageCount: pageCount,
	}

	result.Metadata, err = documentInfo(reader)
	if err != nil {
		result.Metadata = model.Metadata{}
		e.log.Warn("Document info unreadable, metadata skipped", slog.String("fingerprint", fingerprint), slog.String("error", err.Error()))
	}

	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, model.AsTimeout(fingerprint, err)
		}

		text, err := extractPage(reader, i+1)
		if err != nil {
			result.FailedPages++
			e.log.Warn("Page extraction failed, emitting empty segment", slog.String("fingerprint", fingerprint), slog.Int("page", i), slog.String("error", err.Error()))
		}
		result.Segments = append(result.Segments, model.Segment{
			PageIndex: i,
			Text:      CleanText(text),
		})
	}

	result.Status = model.StatusForSegments(result.Segments, result.FailedPages)
	e.log.Debug("Extracted document", slog.String("fingerprint", fingerprint), slog.Int("pages", pages), slog.String("status", string(result.Status)))

	return result, nil
}

func (e *Extractor) open(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	var password func() string
	if e.config.Password != "" {
		tried := false
		password = func() string {
			if tried {
				return ""
			}
			tried = true
			return e.config.Password
		}
	}

	reader, err = pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), password)
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return nil, helper.NewError("open encrypted pdf", err)
	}
	if err != nil {
		return nil, helper.NewError("open pdf", err)
	}
	return reader, nil
}

func extractPage(reader *pdf.Reader, number int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("malformed page %d: %v", number, r)
		}
	}()

	page := reader.Page(number)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d not found", number)
	}
	return page.GetPlainText(nil)
}
