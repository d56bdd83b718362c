package model

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ChunkConfig configures the window chunker.
// All sizes are measured in Unit.
type ChunkConfig struct {
	Unit       ChunkUnit `json:"unit"`
	TargetSize int       `json:"target_size"`
	Overlap    int       `json:"overlap"`
	MinSize    int       `json:"min_size"`  // Minimum size of every chunk but the last
	Tolerance  int       `json:"tolerance"` // How far back from TargetSize to look for a sentence boundary
}

// SummaryConfig configures the map-reduce summarization engine.
// Budgets and lengths are in characters.
type SummaryConfig struct {
	InputBudget        int  `json:"input_budget"`
	ChunkSummaryLength int  `json:"chunk_summary_length"`
	FinalSummaryLength int  `json:"final_summary_length"`
	MaxDepth           int  `json:"max_depth"`
	Parallelism        int  `json:"parallelism"`
	CacheResult        bool `json:"cache_result"`
}

// QAConfig configures the retrieval-augmented QA engine
type QAConfig struct {
	TopK          int `json:"top_k"`
	ContextBudget int `json:"context_budget"` // Characters of context handed to the answer capability
}

// CacheConfig bounds the document cache. A zero bound is unlimited.
type CacheConfig struct {
	MaxEntries int   `json:"max_entries"`
	MaxBytes   int64 `json:"max_bytes"`
}

// ExtractConfig configures PDF fetching and extraction
type ExtractConfig struct {
	MaxPages     int           `json:"max_pages"` // 0 extracts every page
	MaxBytes     int64         `json:"max_bytes"`
	FetchTimeout time.Duration `json:"fetch_timeout"`
	UserAgent    string        `json:"user_agent"`
	Password     string        `json:"-"`
}

// RetryConfig is the bounded retry policy of one model capability
type RetryConfig struct {
	MaxRetries      int           `json:"max_retries"`
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`
}

// Config aggregates the configuration of the whole pipeline
type Config struct {
	Chunk            ChunkConfig   `json:"chunk"`
	Summary          SummaryConfig `json:"summary"`
	QA               QAConfig      `json:"qa"`
	Cache            CacheConfig   `json:"cache"`
	Extract          ExtractConfig `json:"extract"`
	SummarizeRetry   RetryConfig   `json:"summarize_retry"`
	EmbedRetry       RetryConfig   `json:"embed_retry"`
	AnswerRetry      RetryConfig   `json:"answer_retry"`
	Concurrency      int           `json:"concurrency"` // Model calls in flight across all capabilities
	EmbedParallelism int           `json:"embed_parallelism"`
	RequestTimeout   time.Duration `json:"request_timeout"` // 0 leaves the deadline to the caller
}

// DefaultRetryConfig returns the retry policy used for every capability
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		Chunk: ChunkConfig{
			Unit:       ChunkUnitChars,
			TargetSize: 1000,
			Overlap:    150,
			MinSize:    200,
			Tolerance:  200,
		},
		Summary: SummaryConfig{
			InputBudget:        4000,
			ChunkSummaryLength: 400,
			FinalSummaryLength: 1200,
			MaxDepth:           3,
			Parallelism:        4,
			CacheResult:        false,
		},
		QA: QAConfig{
			TopK:          4,
			ContextBudget: 4000,
		},
		Cache: CacheConfig{
			MaxEntries: 32,
			MaxBytes:   256 << 20,
		},
		Extract: ExtractConfig{
			MaxPages:     50,
			MaxBytes:     50 << 20,
			FetchTimeout: 60 * time.Second,
			UserAgent:    "Mozilla/5.0 (compatible; ResearchBot/1.0)",
		},
		SummarizeRetry:   DefaultRetryConfig(),
		EmbedRetry:       DefaultRetryConfig(),
		AnswerRetry:      DefaultRetryConfig(),
		Concurrency:      4,
		EmbedParallelism: 4,
	}
}

// Validate checks that the chunker can work with the configuration
func (c ChunkConfig) Validate() error {
	switch c.Unit {
	case ChunkUnitChars, ChunkUnitWords:
	default:
		return fmt.Errorf("unknown chunk unit %q", c.Unit)
	}
	if c.TargetSize <= 0 {
		return fmt.Errorf("chunk target size must be positive")
	}
	if c.Overlap < 0 || c.Overlap >= c.TargetSize {
		return fmt.Errorf("chunk overlap must be in [0, target size)")
	}
	if c.MinSize < 0 || c.MinSize > c.TargetSize {
		return fmt.Errorf("chunk min size must be in [0, target size]")
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("chunk tolerance must not be negative")
	}
	return nil
}

// Validate checks the configuration for values the pipeline cannot work with
func (c Config) Validate() error {
	if err := c.Chunk.Validate(); err != nil {
		return err
	}
	if c.Summary.InputBudget <= 0 || c.Summary.ChunkSummaryLength <= 0 || c.Summary.FinalSummaryLength <= 0 {
		return fmt.Errorf("summary budgets must be positive")
	}
	if c.Summary.ChunkSummaryLength >= c.Summary.InputBudget {
		return fmt.Errorf("chunk summary length must be smaller than the input budget")
	}
	if c.Summary.MaxDepth < 1 {
		return fmt.Errorf("summary max depth must be at least 1")
	}
	if c.QA.TopK <= 0 || c.QA.ContextBudget <= 0 {
		return fmt.Errorf("qa top k and context budget must be positive")
	}
	if c.Cache.MaxEntries < 0 || c.Cache.MaxBytes < 0 {
		return fmt.Errorf("cache bounds must not be negative")
	}
	for name, r := range map[string]RetryConfig{"summarize": c.SummarizeRetry, "embed": c.EmbedRetry, "answer": c.AnswerRetry} {
		if r.MaxRetries < 0 {
			return fmt.Errorf("%s retries must not be negative", name)
		}
	}
	return nil
}

// ConfigFromEnv returns DefaultConfig overridden by PAPERQA_* environment variables
func ConfigFromEnv() (Config, error) {
	c := DefaultConfig()

	if v := os.Getenv("PAPERQA_CHUNK_UNIT"); v != "" {
		c.Chunk.Unit = ChunkUnit(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PAPERQA_CHUNK_SIZE", &c.Chunk.TargetSize},
		{"PAPERQA_CHUNK_OVERLAP", &c.Chunk.Overlap},
		{"PAPERQA_CHUNK_MIN_SIZE", &c.Chunk.MinSize},
		{"PAPERQA_CHUNK_TOLERANCE", &c.Chunk.Tolerance},
		{"PAPERQA_SUMMARY_INPUT_BUDGET", &c.Summary.InputBudget},
		{"PAPERQA_SUMMARY_MAX_DEPTH", &c.Summary.MaxDepth},
		{"PAPERQA_TOP_K", &c.QA.TopK},
		{"PAPERQA_QA_CONTEXT_BUDGET", &c.QA.ContextBudget},
		{"PAPERQA_CACHE_MAX_ENTRIES", &c.Cache.MaxEntries},
		{"PAPERQA_MAX_PAGES", &c.Extract.MaxPages},
		{"PAPERQA_CONCURRENCY", &c.Concurrency},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("invalid %s: %w", i.key, err)
		}
		*i.dst = n
	}

	if v := os.Getenv("PAPERQA_CACHE_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, fmt.Errorf("invalid PAPERQA_CACHE_MAX_BYTES: %w", err)
		}
		c.Cache.MaxBytes = n
	}

	if v := os.Getenv("PAPERQA_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("invalid PAPERQA_MAX_RETRIES: %w", err)
		}
		c.SummarizeRetry.MaxRetries = n
		c.EmbedRetry.MaxRetries = n
		c.AnswerRetry.MaxRetries = n
	}

	if v := os.Getenv("PAPERQA_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("invalid PAPERQA_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}

	if v := os.Getenv("PAPERQA_PDF_PASSWORD"); v != "" {
		c.Extract.Password = v
	}

	return c, c.Validate()
}
