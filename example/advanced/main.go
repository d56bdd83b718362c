package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/paperqa"
	"github.com/siherrmann/paperqa/core/pipeline"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
)

const embeddingDim = 256

var paper1 = []string{
	"Graph databases are designed to store and query data with complex relationships. They use nodes to represent entities and edges to represent relationships between them.",
	"PostgreSQL with extensions like ltree and pgvector can be used to build powerful graph-based systems. The ltree extension provides hierarchical tree structures.",
}

var paper2 = []string{
	"Machine learning is transforming how we process and retrieve information. Vector embeddings capture the semantic meaning of text.",
	"Modern retrieval systems combine traditional database indexing with machine learning models. They provide context-aware search capabilities.",
}

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	config := model.DefaultConfig()
	config.Chunk.TargetSize = 200
	config.Chunk.Overlap = 30
	config.Chunk.MinSize = 50
	config.Chunk.Tolerance = 60
	config.Summary.CacheResult = true
	config.Cache.MaxEntries = 1

	p, err := paperqa.NewPaperQA(config, pipeline.OfflineCapabilities(embeddingDim), nil)
	if err != nil {
		log.Fatalf("Failed to create paperqa: %v", err)
	}
	defer p.Close()

	if err := p.UseDatabase(dbConfig, embeddingDim); err != nil {
		log.Fatalf("Failed to use database: %v", err)
	}

	// Ingest both papers. The cache holds one entry, the database keeps both.
	sources := []model.Source{
		{Data: helper.NewTestPDF(paper1...)},
		{Data: helper.NewTestPDF(paper2...)},
	}
	for _, source := range sources {
		entry, err := p.GetOrBuildDocument(ctx, "", source)
		if err != nil {
			log.Fatalf("Failed to build document: %v", err)
		}
		fmt.Printf("Built %s: %d pages, %d chunks\n", entry.Fingerprint()[:12], entry.Document.PageCount, len(entry.Chunks))
	}

	// The first paper was evicted from memory and is loaded from postgres
	fp := sources[0].Fingerprint()
	summary, err := p.SummarizeDocument(ctx, fp)
	if err != nil {
		log.Fatalf("Failed to summarize document: %v", err)
	}
	fmt.Printf("\nSummary of %s:\n%s\n", fp[:12], summary.Text)

	answer, err := p.AnswerQuestion(ctx, fp, "What does the ltree extension provide?")
	if err != nil {
		log.Fatalf("Failed to answer question: %v", err)
	}
	fmt.Printf("\nAnswer: %s (chunks %v)\n", answer.Text, answer.ChunkIndices)

	// Nearest chunks straight from the pgvector index
	embed := pipeline.HashingEmbedder(embeddingDim)
	query, err := embed(ctx, "vector embeddings")
	if err != nil {
		log.Fatalf("Failed to embed query: %v", err)
	}
	matches, err := p.Store.Nearest(ctx, sources[1].Fingerprint(), query, 2)
	if err != nil {
		log.Fatalf("Failed to search chunks: %v", err)
	}
	for _, m := range matches {
		fmt.Printf("Chunk %d similarity %.3f\n", m.ChunkIndex, m.Similarity)
	}

	docs, err := p.Store.Documents(ctx, 0, 10)
	if err != nil {
		log.Fatalf("Failed to list documents: %v", err)
	}
	fmt.Printf("\n%d documents stored\n", len(docs))
	for _, d := range docs {
		fmt.Printf("- %s (%d pages, %s)\n", d.Fingerprint[:12], d.PageCount, d.Status)
	}

	if err := p.Evict(ctx, fp); err != nil {
		log.Fatalf("Failed to evict document: %v", err)
	}
	fmt.Printf("\nStatus: %s\n", p.Status())
}
