package model

import (
	"time"

	"github.com/google/uuid"
)

// ExtractionStatus describes how completely a document's pages were extracted
type ExtractionStatus string

const (
	ExtractionStatusOK      ExtractionStatus = "ok"
	ExtractionStatusPartial ExtractionStatus = "partial" // Some pages failed and were emitted empty
	ExtractionStatusEmpty   ExtractionStatus = "empty"   // No page contained extractable text
)

// Source references the raw document, either inline bytes or a URL to fetch
type Source struct {
	URL  string `json:"url,omitempty"`
	Data []byte `json:"-"`
}

// Fingerprint returns the cache key for the source.
// Inline bytes take precedence over the URL.
func (s Source) Fingerprint() string {
	if len(s.Data) > 0 {
		return FingerprintBytes(s.Data)
	}
	return FingerprintURL(s.URL)
}

// IsEmpty reports whether the source carries neither bytes nor a URL
func (s Source) IsEmpty() bool {
	return len(s.Data) == 0 && s.URL == ""
}

// Document represents one extracted source document.
// It is immutable once created.
type Document struct {
	ID          int64            `json:"id"`
	RID         uuid.UUID        `json:"rid"`
	Fingerprint string           `json:"fingerprint"`
	Source      string           `json:"source,omitempty"`
	ByteLength  int64            `json:"byte_length"`
	PageCount   int              `json:"page_count"`
	ExtractedAt time.Time        `json:"extracted_at"`
	Status      ExtractionStatus `json:"status"`
	Metadata    Metadata         `json:"metadata,omitempty"`
}

// Segment is the extracted text of a single page
type Segment struct {
	PageIndex int    `json:"page_index"`
	Text      string `json:"text"`
}

// StatusForSegments derives the extraction status from the extracted pages
// and the number of pages that failed to extract.
func StatusForSegments(segments []Segment, failedPages int) ExtractionStatus {
	hasText := false
	for _, s := range segments {
		if s.Text != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return ExtractionStatusEmpty
	}
	if failedPages > 0 {
		return ExtractionStatusPartial
	}
	return ExtractionStatusOK
}
