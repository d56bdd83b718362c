package pipeline

import (
	"context"
	"errors"

	"github.com/siherrmann/paperqa/model"
)

// ChunkFunc splits the ordered page segments of a document into chunks
type ChunkFunc func(segments []model.Segment) ([]model.Chunk, error)

// SummarizeFunc condenses text to at most maxLength characters
type SummarizeFunc func(ctx context.Context, text string, maxLength int) (string, error)

// EmbedFunc generates an embedding for text
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// AnswerFunc answers a question using only the given context
type AnswerFunc func(ctx context.Context, question string, contextText string) (Answer, error)

// Answer is the output of an AnswerFunc.
// Confidence is nil when the capability does not provide one.
type Answer struct {
	Text       string
	Confidence *float64
}

// Capabilities bundles the model capabilities the pipeline depends on
type Capabilities struct {
	Summarize SummarizeFunc
	Embed     EmbedFunc
	Answer    AnswerFunc
}

// Validate checks that every capability is set
func (c Capabilities) Validate() error {
	if c.Summarize == nil {
		return errors.New("summarize capability is not set")
	}
	if c.Embed == nil {
		return errors.New("embed capability is not set")
	}
	if c.Answer == nil {
		return errors.New("answer capability is not set")
	}
	return nil
}

// Pipeline combines the chunker and the model capabilities
type Pipeline struct {
	Chunker      ChunkFunc
	Capabilities Capabilities
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, capabilities Capabilities) *Pipeline {
	return &Pipeline{
		Chunker:      chunker,
		Capabilities: capabilities,
	}
}

// SetSummarizer sets the summarize capability
func (p *Pipeline) SetSummarizer(summarize SummarizeFunc) {
	p.Capabilities.Summarize = summarize
}

// SetEmbedder sets the embed capability
func (p *Pipeline) SetEmbedder(embed EmbedFunc) {
	p.Capabilities.Embed = embed
}

// SetAnswerer sets the answer capability
func (p *Pipeline) SetAnswerer(answer AnswerFunc) {
	p.Capabilities.Answer = answer
}
