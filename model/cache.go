package model

// CacheEntry owns everything derived from one document.
// Embeddings[i] belongs to Chunks[i] and is L2-normalised. Entries are
// shared between readers, the cache tracks their last access next to them.
type CacheEntry struct {
	Document   *Document      `json:"document"`
	Text       string         `json:"-"`
	Segments   []Segment      `json:"segments"`
	Chunks     []Chunk        `json:"chunks"`
	Embeddings [][]float32    `json:"-"`
	Summary    *SummaryResult `json:"summary,omitempty"`
}

// Fingerprint returns the fingerprint of the owned document
func (e *CacheEntry) Fingerprint() string {
	if e == nil || e.Document == nil {
		return ""
	}
	return e.Document.Fingerprint
}

// SizeBytes approximates the memory held by the entry
func (e *CacheEntry) SizeBytes() int64 {
	if e == nil {
		return 0
	}
	var size int64
	size += int64(len(e.Text))
	for _, s := range e.Segments {
		size += int64(len(s.Text))
	}
	for _, c := range e.Chunks {
		size += int64(len(c.Content))
	}
	for _, v := range e.Embeddings {
		size += int64(len(v) * 4)
	}
	return size
}
