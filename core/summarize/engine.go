package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/paperqa/core/pipeline"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
	"golang.org/x/sync/errgroup"
)

// fallbackSentences is the number of leading sentences used when a chunk cannot be summarized
const fallbackSentences = 2

const summarySeparator = "\n\n"

// Engine produces document summaries with a hierarchical map-reduce over chunks
type Engine struct {
	summarize pipeline.SummarizeFunc
	config    model.SummaryConfig
	metrics   *helper.Metrics
	log       *slog.Logger
}

// NewEngine creates a new summarization engine
func NewEngine(summarize pipeline.SummarizeFunc, config model.SummaryConfig, metrics *helper.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		summarize: summarize,
		config:    config,
		metrics:   metrics,
		log:       logger,
	}
}

// part is one unit of the map phase at any level
type part struct {
	index int
	text  string
}

// Summarize summarizes chunks, which must be ordered by chunk index.
//
// Every chunk is summarized on its own. While the joined chunk summaries
// exceed the input budget they are chunked and summarized again, at most
// MaxDepth levels, after which the text is truncated. A final pass summarizes
// the joined text. Document order is kept at every level.
func (e *Engine) Summarize(ctx context.Context, fingerprint string, chunks []model.Chunk) (*model.SummaryResult, error) {
	if e.summarize == nil {
		return nil, model.NewPipelineError(model.ErrSummarization, fingerprint, false, errors.New("summarize capability is not set"))
	}
	if len(chunks) == 0 {
		return nil, model.NewPipelineError(model.ErrNoContext, fingerprint, false, errors.New("document has no text to summarize"))
	}

	parts := make([]part, len(chunks))
	for i, c := range chunks {
		parts[i] = part{index: c.Index, text: c.Content}
	}

	summaries, degraded, err := e.mapParts(ctx, fingerprint, parts, e.config.ChunkSummaryLength, 0)
	if err != nil {
		return nil, err
	}

	result := &model.SummaryResult{
		ChunkIndices:   make([]int, len(chunks)),
		DegradedChunks: degraded,
		Levels:         1,
	}
	for i, c := range chunks {
		result.ChunkIndices[i] = c.Index
	}

	text := strings.Join(summaries, summarySeparator)
	for utf8.RuneCountInString(text) > e.config.InputBudget {
		if result.Levels >= e.config.MaxDepth {
			e.log.Warn("Summary still exceeds input budget at max depth, truncating", slog.String("fingerprint", fingerprint), slog.Int("levels", result.Levels), slog.Int("length", utf8.RuneCountInString(text)))
			text = pipeline.TruncateRunes(text, e.config.InputBudget)
			result.Truncated = true
			break
		}

		var degradedParts int
		text, degradedParts, err = e.reduce(ctx, fingerprint, text, result.Levels)
		if err != nil {
			return nil, err
		}
		result.DegradedParts += degradedParts
		result.Levels++
	}

	if err := ctx.Err(); err != nil {
		return nil, model.AsTimeout(fingerprint, err)
	}
	final, err := e.summarize(ctx, text, e.config.FinalSummaryLength)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.AsTimeout(fingerprint, ctx.Err())
		}
		return nil, model.NewPipelineError(model.ErrSummarization, fingerprint, !pipeline.IsPermanent(err), helper.NewError("final summary", err))
	}
	result.Text = strings.TrimSpace(final)
	if n := len(degraded) + result.DegradedParts; n > 0 {
		e.metrics.ChunksDegraded(n)
	}

	e.log.Debug("Summarized document", slog.String("fingerprint", fingerprint), slog.Int("chunks", len(chunks)), slog.Int("levels", result.Levels), slog.Int("degraded", len(degraded)), slog.Int("degraded_parts", result.DegradedParts))

	return result, nil
}

// reduce chunks the joined summaries of the given level into pieces fitting
// the input budget and summarizes every piece. It returns the number of
// pieces that used the verbatim fallback.
func (e *Engine) reduce(ctx context.Context, fingerprint string, text string, level int) (string, int, error) {
	pieces, err := pipeline.ChunkText(text, model.ChunkConfig{
		Unit:       model.ChunkUnitChars,
		TargetSize: e.config.InputBudget,
		Overlap:    0,
		MinSize:    e.config.InputBudget / 2,
		Tolerance:  e.config.InputBudget / 4,
	})
	if err != nil {
		return "", 0, model.NewPipelineError(model.ErrSummarization, fingerprint, false, helper.NewError("chunk summaries", err))
	}

	parts := make([]part, len(pieces))
	for i, p := range pieces {
		parts[i] = part{index: p.Index, text: p.Content}
	}

	summaries, degraded, err := e.mapParts(ctx, fingerprint, parts, e.config.ChunkSummaryLength, level)
	if err != nil {
		return "", 0, err
	}
	return strings.Join(summaries, summarySeparator), len(degraded), nil
}

// mapParts summarizes all parts concurrently and returns the summaries in
// part order plus the indices of parts that used the verbatim fallback.
// Level 0 parts are document chunks, higher levels are reduce pieces.
// It fails when every part failed or the context is done.
func (e *Engine) mapParts(ctx context.Context, fingerprint string, parts []part, maxLength int, level int) ([]string, []int, error) {
	summaries := make([]string, len(parts))
	failed := make([]error, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	if e.config.Parallelism > 0 {
		g.SetLimit(e.config.Parallelism)
	}
	for i, p := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary, err := e.summarize(gctx, p.text, maxLength)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed[i] = err
				return nil
			}
			summaries[i] = strings.TrimSpace(summary)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, nil, model.AsTimeout(fingerprint, err)
	}

	degraded := []int{}
	var lastErr error
	for i, err := range failed {
		if err == nil {
			continue
		}
		lastErr = err
		degraded = append(degraded, parts[i].index)
		summaries[i] = pipeline.TruncateRunes(pipeline.LeadingSentences(parts[i].text, fallbackSentences), maxLength)
		if level == 0 {
			e.log.Warn("Chunk summary failed, using leading sentences", slog.String("fingerprint", fingerprint), slog.Int("chunk", parts[i].index), slog.String("error", err.Error()))
		} else {
			e.log.Warn("Reduce summary failed, using leading sentences", slog.String("fingerprint", fingerprint), slog.Int("level", level), slog.Int("part", parts[i].index), slog.String("error", err.Error()))
		}
	}

	if len(parts) > 0 && len(degraded) == len(parts) {
		return nil, nil, model.NewPipelineError(model.ErrSummarization, fingerprint, !pipeline.IsPermanent(lastErr), fmt.Errorf("all %d chunk summaries failed: %w", len(parts), lastErr))
	}

	return summaries, degraded, nil
}
