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

var samplePages = []string{
	"Graph databases are designed to store and query data with complex relationships. They use nodes to represent entities and edges to represent relationships between them.",
	"PostgreSQL with extensions like ltree and pgvector can be used to build powerful graph-based systems. The pgvector extension enables vector similarity search.",
	"Combining these features allows for hybrid retrieval strategies. They leverage both semantic similarity and graph structure for information retrieval.",
}

func main() {
	ctx := context.Background()

	// Offline capabilities need no model download or API key
	p, err := paperqa.NewPaperQA(model.DefaultConfig(), pipeline.OfflineCapabilities(256), nil)
	if err != nil {
		log.Fatalf("Failed to create paperqa: %v", err)
	}
	defer p.Close()

	// Build a small PDF in memory
	source := model.Source{Data: helper.NewTestPDF(samplePages...)}

	fmt.Println("Summarizing document...")
	summary, err := p.Summarize(ctx, source)
	if err != nil {
		log.Fatalf("Failed to summarize document: %v", err)
	}
	fmt.Printf("Summary (%d chunks, %d levels):\n%s\n", len(summary.ChunkIndices), summary.Levels, summary.Text)

	// The document is cached, so asking does not extract it again
	question := "What does pgvector enable?"
	fmt.Printf("\nAsking: %s\n", question)
	answer, err := p.Ask(ctx, source, question)
	if err != nil {
		log.Fatalf("Failed to answer question: %v", err)
	}
	fmt.Printf("Answer: %s\n", answer.Text)
	if answer.Confidence != nil {
		fmt.Printf("Confidence: %.2f\n", *answer.Confidence)
	}
	fmt.Printf("Context chunks: %v\n", answer.ChunkIndices)

	fmt.Printf("\nStatus: %s\n", p.Status())
}
