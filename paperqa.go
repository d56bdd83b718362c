package paperqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/paperqa/core/cache"
	"github.com/siherrmann/paperqa/core/extract"
	"github.com/siherrmann/paperqa/core/pipeline"
	"github.com/siherrmann/paperqa/core/qa"
	"github.com/siherrmann/paperqa/core/retrieval"
	"github.com/siherrmann/paperqa/core/summarize"
	"github.com/siherrmann/paperqa/database"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
)

// PaperQA summarizes and answers questions about PDF documents.
// Documents are extracted, chunked and embedded once and kept in the cache.
type PaperQA struct {
	Config   model.Config
	Pipeline *pipeline.Pipeline // Chunker and the raw capabilities, read on every request
	Cache    *cache.Cache
	Metrics  *helper.Metrics
	DB       *helper.Database // Optional snapshot store
	Store    *database.Store

	fetch   extract.FetchFunc
	extract extract.ExtractFunc
	policy  pipeline.Policy
	// Logging
	log *slog.Logger
}

// Status reports which capabilities are configured and the cache state
type Status struct {
	Summarize bool        `json:"summarize"`
	Embed     bool        `json:"embed"`
	Answer    bool        `json:"answer"`
	Store     bool        `json:"store"`
	Cache     cache.Stats `json:"cache"`
}

// NewPaperQA creates a new PaperQA instance. Every capability is wrapped with
// the retry policy and concurrency limit of config when a request runs, so
// capabilities replaced through Pipeline apply to all later requests.
// A nil logger logs to stdout.
func NewPaperQA(config model.Config, capabilities pipeline.Capabilities, logger *slog.Logger) (*PaperQA, error) {
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("config validation", err)
	}

	if logger == nil {
		opts := helper.PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{
				Level: slog.LevelInfo,
			},
		}
		logger = slog.New(helper.NewPrettyHandler(os.Stdout, opts))
	}

	metrics := helper.NewMetrics("paperqa")

	p := &PaperQA{
		Config:   config,
		Pipeline: pipeline.NewPipeline(pipeline.WindowChunker(config.Chunk), capabilities),
		Cache:    cache.NewCache(config.Cache, nil, metrics, logger),
		Metrics:  metrics,
		fetch:    extract.NewFetcher(config.Extract, model.DefaultRetryConfig(), logger).Fetch,
		extract:  extract.NewExtractor(config.Extract, logger).Extract,
		policy:   pipeline.PolicyFromConfig(config, metrics, logger),
		log:      logger,
	}

	return p, nil
}

// UseDatabase connects to postgres and keeps a snapshot of every built
// document there. It replaces the cache and must be called before the first request.
func (p *PaperQA) UseDatabase(dbConfig *helper.DatabaseConfiguration, embeddingDim int) error {
	db, err := helper.NewDatabase("paperqa", dbConfig, p.log)
	if err != nil {
		return helper.NewError("connect database", err)
	}

	store, err := database.NewStore(db, embeddingDim, false)
	if err != nil {
		db.Close()
		return helper.NewError("create store", err)
	}

	p.DB = db
	p.Store = store
	p.Cache = cache.NewCache(p.Config.Cache, store, p.Metrics, p.log)
	return nil
}

// SetFetcher replaces the URL downloader
func (p *PaperQA) SetFetcher(fetcher extract.FetchFunc) {
	p.fetch = fetcher
}

// SetExtractor replaces the PDF text extractor
func (p *PaperQA) SetExtractor(extractor extract.ExtractFunc) {
	p.extract = extractor
}

// Close closes the database connection
func (p *PaperQA) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}

// GetOrBuildDocument returns the cache entry of a document, building it from
// source on a miss. An empty fingerprint is derived from source. Without a
// source only cached or stored documents are found.
func (p *PaperQA) GetOrBuildDocument(ctx context.Context, fingerprint string, source model.Source) (*model.CacheEntry, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	h, err := p.acquire(ctx, p.requestLogger("get_or_build"), fingerprint, source)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	return h.Entry(), nil
}

// SummarizeDocument summarizes a cached or stored document.
// With SummaryConfig.CacheResult the summary is kept with the document.
func (p *PaperQA) SummarizeDocument(ctx context.Context, fingerprint string) (*model.SummaryResult, error) {
	return p.summarize(ctx, fingerprint, model.Source{})
}

// AnswerQuestion answers a question about a cached or stored document
func (p *PaperQA) AnswerQuestion(ctx context.Context, fingerprint string, question string) (*model.AnswerResult, error) {
	return p.ask(ctx, fingerprint, model.Source{}, question)
}

// Summarize builds the document of source if needed and summarizes it
func (p *PaperQA) Summarize(ctx context.Context, source model.Source) (*model.SummaryResult, error) {
	return p.summarize(ctx, "", source)
}

// Ask builds the document of source if needed and answers the question from
// its most relevant chunks
func (p *PaperQA) Ask(ctx context.Context, source model.Source, question string) (*model.AnswerResult, error) {
	return p.ask(ctx, "", source, question)
}

func (p *PaperQA) summarize(ctx context.Context, fingerprint string, source model.Source) (*model.SummaryResult, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	log := p.requestLogger("summarize")
	start := time.Now()

	h, err := p.acquire(ctx, log, fingerprint, source)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	entry := h.Entry()

	if p.Config.Summary.CacheResult && entry.Summary != nil {
		log.Info("Returning cached summary", slog.String("fingerprint", entry.Fingerprint()))
		return entry.Summary, nil
	}

	capabilities := p.capabilities()
	summarizer := summarize.NewEngine(capabilities.Summarize, p.Config.Summary, p.Metrics, log)
	result, err := summarizer.Summarize(ctx, entry.Fingerprint(), entry.Chunks)
	if err != nil {
		log.Error("Summarization failed", slog.String("fingerprint", entry.Fingerprint()), slog.String("error", err.Error()))
		return nil, err
	}

	if p.Config.Summary.CacheResult {
		if err := p.Cache.SetSummary(ctx, entry.Fingerprint(), result); err != nil {
			log.Warn("Failed to cache summary", slog.String("fingerprint", entry.Fingerprint()), slog.String("error", err.Error()))
		}
	}

	log.Info("Summarized document", slog.String("fingerprint", entry.Fingerprint()), slog.Int("levels", result.Levels), slog.Int("degraded", result.DegradedCount()), slog.Int("degraded_parts", result.DegradedParts), slog.Duration("duration", time.Since(start)))

	return result, nil
}

func (p *PaperQA) ask(ctx context.Context, fingerprint string, source model.Source, question string) (*model.AnswerResult, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	log := p.requestLogger("ask")
	start := time.Now()

	h, err := p.acquire(ctx, log, fingerprint, source)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	entry := h.Entry()

	index, err := retrieval.FromVectors(entry.Fingerprint(), entry.Embeddings)
	if err != nil {
		return nil, err
	}

	capabilities := p.capabilities()
	answerer := qa.NewEngine(capabilities.Embed, capabilities.Answer, p.Config.QA, log)
	result, err := answerer.Answer(ctx, entry.Fingerprint(), question, entry.Chunks, index)
	if err != nil {
		log.Error("Answering failed", slog.String("fingerprint", entry.Fingerprint()), slog.String("error", err.Error()))
		return nil, err
	}

	log.Info("Answered question", slog.String("fingerprint", entry.Fingerprint()), slog.Any("chunks", result.ChunkIndices), slog.Duration("duration", time.Since(start)))

	return result, nil
}

// Evict removes a document from the cache and the store
func (p *PaperQA) Evict(ctx context.Context, fingerprint string) error {
	found, err := p.Cache.Evict(ctx, fingerprint)
	if err != nil {
		return helper.NewError("evict", err)
	}
	p.log.Info("Evicted document", slog.String("fingerprint", fingerprint), slog.Bool("cached", found))
	return nil
}

// Status returns the capability and cache status
func (p *PaperQA) Status() Status {
	return Status{
		Summarize: p.Pipeline.Capabilities.Summarize != nil,
		Embed:     p.Pipeline.Capabilities.Embed != nil,
		Answer:    p.Pipeline.Capabilities.Answer != nil,
		Store:     p.Store != nil,
		Cache:     p.Cache.Stats(),
	}
}

func (p *PaperQA) acquire(ctx context.Context, log *slog.Logger, fingerprint string, source model.Source) (*cache.Handle, error) {
	if fingerprint == "" {
		if source.IsEmpty() {
			return nil, model.NewPipelineError(model.ErrDocumentNotFound, "", false, errors.New("neither fingerprint nor source given"))
		}
		fingerprint = source.Fingerprint()
	}

	h, err := p.Cache.GetOrBuild(ctx, fingerprint, func(ctx context.Context) (*model.CacheEntry, error) {
		if source.IsEmpty() {
			return nil, model.NewPipelineError(model.ErrDocumentNotFound, fingerprint, false, errors.New("document is not cached and no source was given"))
		}
		return p.build(ctx, log, fingerprint, source)
	})
	if err != nil {
		log.Error("Failed to get document", slog.String("fingerprint", fingerprint), slog.String("error", err.Error()))
		return nil, err
	}
	return h, nil
}

// build runs extraction, chunking and embedding for one document
func (p *PaperQA) build(ctx context.Context, log *slog.Logger, fingerprint string, source model.Source) (*model.CacheEntry, error) {
	data := source.Data
	if len(data) == 0 {
		if p.fetch == nil {
			return nil, model.NewPipelineError(model.ErrExtraction, fingerprint, false, errors.New("no fetcher set"))
		}
		var err error
		data, err = p.fetch(ctx, source.URL)
		if err != nil {
			return nil, err
		}
	}

	extracted, err := p.extract(ctx, fingerprint, data)
	if err != nil {
		return nil, err
	}

	chunks, err := p.Pipeline.Chunker(extracted.Segments)
	if err != nil {
		return nil, model.NewPipelineError(model.ErrExtraction, fingerprint, false, helper.NewError("chunk document", err))
	}

	var embeddings [][]float32
	if len(chunks) > 0 {
		index, err := retrieval.Build(ctx, fingerprint, chunks, p.capabilities().Embed, p.Config.EmbedParallelism, 0)
		if err != nil {
			return nil, err
		}
		embeddings = index.Vectors()
	}

	entry := &model.CacheEntry{
		Document: &model.Document{
			RID:         uuid.New(),
			Fingerprint: fingerprint,
			Source:      source.URL,
			ByteLength:  int64(len(data)),
			PageCount:   extracted.PageCount,
			ExtractedAt: time.Now().UTC(),
			Status:      extracted.Status,
			Metadata:    extracted.Metadata,
		},
		Text:       pipeline.JoinSegments(extracted.Segments),
		Segments:   extracted.Segments,
		Chunks:     chunks,
		Embeddings: embeddings,
	}

	log.Info(
		"Built document",
		slog.String("fingerprint", fingerprint),
		slog.Int("pages", extracted.PageCount),
		slog.Int("chunks", len(chunks)),
		slog.String("status", string(extracted.Status)),
		slog.String("preview", extract.TextPreview(entry.Text, 120)),
	)

	return entry, nil
}

// capabilities returns the current capabilities of the pipeline wrapped with
// the retry policy. All wrappers share the concurrency limiter of the policy.
func (p *PaperQA) capabilities() pipeline.Capabilities {
	return p.Pipeline.Capabilities.WithPolicy(p.policy)
}

func (p *PaperQA) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, p.Config.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *PaperQA) requestLogger(operation string) *slog.Logger {
	return p.log.With(slog.String("request_id", uuid.NewString()), slog.String("operation", operation))
}

// String describes the instance for logs
func (s Status) String() string {
	return fmt.Sprintf("summarize=%t embed=%t answer=%t store=%t entries=%d bytes=%d", s.Summarize, s.Embed, s.Answer, s.Store, s.Cache.Entries, s.Cache.Bytes)
}
