package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/siherrmann/paperqa"
	"github.com/siherrmann/paperqa/core/pipeline"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
	"github.com/spf13/cobra"
)

var (
	backend     string
	useDatabase bool
	verbose     bool
	jsonOutput  bool
	dumpMetrics bool

	// instance is the PaperQA of the running command, read after it finished
	instance *paperqa.PaperQA
)

var rootCmd = &cobra.Command{
	Use:   "paperqa",
	Short: "Summarize and ask questions about PDF documents",
	Long: `paperqa extracts the text of a PDF file or URL, splits it into chunks
and embeds them. It then writes a map-reduce summary of the document or
answers questions from the most relevant chunks.

Settings are read from PAPERQA_* environment variables and a .env file.`,
	SilenceUsage: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if !dumpMetrics || instance == nil {
			return nil
		}
		return instance.Metrics.WriteText(os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backend, "backend", envOr("PAPERQA_BACKEND", "offline"), "model backend: offline, openai or hugot")
	rootCmd.PersistentFlags().BoolVar(&useDatabase, "db", false, "keep documents in postgres (POSTGRES_* env variables)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "write prometheus metrics to stderr when done")
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newPaperQA creates an instance from the environment and the global flags
func newPaperQA() (*paperqa.PaperQA, error) {
	config, err := model.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := helper.NewLogger(os.Stderr, level)

	capabilities, dim, err := newCapabilities()
	if err != nil {
		return nil, err
	}

	p, err := paperqa.NewPaperQA(config, capabilities, logger)
	if err != nil {
		return nil, err
	}

	if useDatabase {
		dbConfig, err := helper.NewDatabaseConfiguration()
		if err != nil {
			return nil, err
		}
		if err := p.UseDatabase(dbConfig, dim); err != nil {
			return nil, err
		}
	}

	instance = p
	return p, nil
}

// newCapabilities returns the capabilities of the selected backend and
// the dimension of its embeddings.
func newCapabilities() (pipeline.Capabilities, int, error) {
	switch strings.ToLower(backend) {
	case "offline", "":
		return pipeline.OfflineCapabilities(256), 256, nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return pipeline.Capabilities{}, 0, fmt.Errorf("OPENAI_API_KEY must be set for the openai backend")
		}
		config := pipeline.DefaultOpenAIConfig(apiKey)
		config.BaseURL = os.Getenv("OPENAI_BASE_URL")
		if m := os.Getenv("OPENAI_CHAT_MODEL"); m != "" {
			config.ChatModel = m
		}
		if m := os.Getenv("OPENAI_EMBEDDING_MODEL"); m != "" {
			config.EmbeddingModel = m
		}
		return pipeline.OpenAICapabilities(config), 1536, nil
	case "hugot":
		embed, err := pipeline.DefaultEmbedder()
		if err != nil {
			return pipeline.Capabilities{}, 0, err
		}
		capabilities := pipeline.OfflineCapabilities(384)
		capabilities.Embed = embed
		if m := os.Getenv("PAPERQA_HUGOT_GENERATOR"); m != "" {
			summarize, err := pipeline.HugotSummarizer(m, "onnx/model.onnx")
			if err != nil {
				return pipeline.Capabilities{}, 0, err
			}
			answer, err := pipeline.HugotAnswerer(m, "onnx/model.onnx")
			if err != nil {
				return pipeline.Capabilities{}, 0, err
			}
			capabilities.Summarize = summarize
			capabilities.Answer = answer
		}
		return capabilities, 384, nil
	default:
		return pipeline.Capabilities{}, 0, fmt.Errorf("unknown backend %q", backend)
	}
}

// sourceFromArg reads a local file or returns a URL source
func sourceFromArg(arg string) (model.Source, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return model.Source{URL: arg}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return model.Source{}, fmt.Errorf("reading %s: %w", arg, err)
	}
	return model.Source{Data: data}, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
