package qa

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/paperqa/core/pipeline"
	"github.com/siherrmann/paperqa/core/retrieval"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
)

const contextSeparator = "\n\n"

// Engine answers questions over the chunks of one document
type Engine struct {
	embed  pipeline.EmbedFunc
	answer pipeline.AnswerFunc
	config model.QAConfig
	log    *slog.Logger
}

// NewEngine creates a new QA engine. embed must be the capability the
// chunk index was built with.
func NewEngine(embed pipeline.EmbedFunc, answer pipeline.AnswerFunc, config model.QAConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embed:  embed,
		answer: answer,
		config: config,
		log:    logger,
	}
}

// Answer retrieves the TopK chunks most similar to the question and asks the
// answer capability with them as context. chunks[i] must belong to the i-th
// vector of index.
func (e *Engine) Answer(ctx context.Context, fingerprint string, question string, chunks []model.Chunk, index *retrieval.Index) (*model.AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, model.NewPipelineError(model.ErrQA, fingerprint, false, errors.New("question is empty"))
	}
	if e.embed == nil || e.answer == nil {
		return nil, model.NewPipelineError(model.ErrQA, fingerprint, false, errors.New("embed or answer capability is not set"))
	}
	if len(chunks) == 0 || index == nil || index.Len() == 0 {
		return nil, model.NewPipelineError(model.ErrNoContext, fingerprint, false, errors.New("document has no chunks to retrieve"))
	}

	matches, err := e.Retrieve(ctx, fingerprint, question, index)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, model.NewPipelineError(model.ErrNoContext, fingerprint, false, errors.New("retrieval returned no chunks"))
	}

	contextText, selected, truncated := e.assembleContext(matches, chunks)

	result := &model.AnswerResult{
		ChunkIndices: make([]int, len(selected)),
		Truncated:    truncated,
	}
	for i, m := range selected {
		result.ChunkIndices[i] = chunks[m.ChunkIndex].Index
	}
	if truncated {
		e.log.Warn("QA context exceeded budget", slog.String("fingerprint", fingerprint), slog.Int("retrieved", len(matches)), slog.Int("kept", len(selected)))
	}

	if err := ctx.Err(); err != nil {
		return nil, model.AsTimeout(fingerprint, err)
	}
	answer, err := e.answer(ctx, question, contextText)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.AsTimeout(fingerprint, ctx.Err())
		}
		return nil, model.NewPipelineError(model.ErrQA, fingerprint, !pipeline.IsPermanent(err), helper.NewError("answer", err))
	}

	result.Text = strings.TrimSpace(answer.Text)
	if answer.Confidence != nil {
		confidence := *answer.Confidence
		result.Confidence = &confidence
	}

	e.log.Debug("Answered question", slog.String("fingerprint", fingerprint), slog.Any("chunks", result.ChunkIndices))

	return result, nil
}

// Retrieve embeds the question and returns the TopK nearest chunks, best first
func (e *Engine) Retrieve(ctx context.Context, fingerprint string, question string, index *retrieval.Index) ([]retrieval.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.AsTimeout(fingerprint, err)
	}
	vector, err := e.embed(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.AsTimeout(fingerprint, ctx.Err())
		}
		return nil, model.NewPipelineError(model.ErrQA, fingerprint, !pipeline.IsPermanent(err), helper.NewError("embed question", err))
	}

	matches, err := index.Nearest(vector, e.config.TopK)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// assembleContext drops the least similar matches until the context fits the
// budget, truncating the best match if it does not fit on its own. The kept
// chunks are joined in chunk index order.
func (e *Engine) assembleContext(matches []retrieval.Match, chunks []model.Chunk) (string, []retrieval.Match, bool) {
	budget := e.config.ContextBudget
	selected := append([]retrieval.Match{}, matches...)
	truncated := false

	size := func(ms []retrieval.Match) int {
		n := utf8.RuneCountInString(contextSeparator) * (len(ms) - 1)
		for _, m := range ms {
			n += utf8.RuneCountInString(chunks[m.ChunkIndex].Content)
		}
		return n
	}

	for len(selected) > 1 && budget > 0 && size(selected) > budget {
		selected = selected[:len(selected)-1]
		truncated = true
	}

	sort.Slice(selected, func(a, b int) bool {
		return selected[a].ChunkIndex < selected[b].ChunkIndex
	})

	parts := make([]string, len(selected))
	for i, m := range selected {
		parts[i] = chunks[m.ChunkIndex].Content
	}
	if len(parts) == 1 && budget > 0 && utf8.RuneCountInString(parts[0]) > budget {
		parts[0] = pipeline.TruncateRunes(parts[0], budget)
		truncated = true
	}

	return strings.Join(parts, contextSeparator), selected, truncated
}
