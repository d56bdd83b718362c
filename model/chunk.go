package model

// ChunkUnit is the unit in which chunk sizes are measured
type ChunkUnit string

const (
	ChunkUnitChars ChunkUnit = "chars"
	ChunkUnitWords ChunkUnit = "words"
)

// Chunk is a contiguous span of document text.
// Offsets are byte offsets into the concatenated document text (end exclusive).
type Chunk struct {
	Index       int    `json:"index"`
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	PageStart   int    `json:"page_start"`
	PageEnd     int    `json:"page_end"`
	Units       int    `json:"units"`
}

// Len returns the length of the chunk in bytes
func (c Chunk) Len() int {
	return c.EndOffset - c.StartOffset
}
