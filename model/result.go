package model

// SummaryResult is the output of the summarization engine
type SummaryResult struct {
	Text string `json:"text"`
	// ChunkIndices lists every chunk that contributed, in document order
	ChunkIndices []int `json:"chunk_indices"`
	// DegradedChunks lists chunks whose summary fell back to verbatim sentences
	DegradedChunks []int `json:"degraded_chunks,omitempty"`
	// DegradedParts counts reduce pieces whose summary fell back to verbatim sentences
	DegradedParts int  `json:"degraded_parts,omitempty"`
	Levels        int  `json:"levels"`
	Truncated     bool `json:"truncated,omitempty"`
}

// DegradedCount returns the number of chunks that used the verbatim fallback
func (r *SummaryResult) DegradedCount() int {
	return len(r.DegradedChunks)
}

// Degraded reports whether the result is of reduced quality
func (r *SummaryResult) Degraded() bool {
	return len(r.DegradedChunks) > 0 || r.DegradedParts > 0 || r.Truncated
}

// AnswerResult is the output of the QA engine
type AnswerResult struct {
	Text string `json:"text"`
	// Confidence is nil when the answer capability does not supply one
	Confidence *float64 `json:"confidence,omitempty"`
	// ChunkIndices lists the context chunks in the order they were given to the model
	ChunkIndices []int `json:"chunk_indices"`
	Truncated    bool  `json:"truncated,omitempty"`
}
