package main

import (
	"fmt"
	"strings"

	"github.com/siherrmann/paperqa/database"
	"github.com/siherrmann/paperqa/model"
	"github.com/spf13/cobra"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List the documents kept in postgres",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

var evictCmd = &cobra.Command{
	Use:   "evict [fingerprint]",
	Short: "Remove a document from postgres",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvict,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured capabilities",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index of the stored chunks",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

func init() {
	reindexCmd.Flags().String("type", string(database.VectorIndexHNSW), "index type: hnsw or ivfflat")
	reindexCmd.Flags().Int("m", 0, "hnsw max connections per layer")
	reindexCmd.Flags().Int("ef-construction", 0, "hnsw candidate list size")
	reindexCmd.Flags().Int("lists", 0, "ivfflat list count")
	rootCmd.AddCommand(reindexCmd)

	documentsCmd.Flags().Int("limit", 50, "maximum number of documents")
	documentsCmd.Flags().Int64("after", 0, "list documents with an id greater than this")
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(evictCmd)
	rootCmd.AddCommand(statusCmd)
}

func runDocuments(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	after, _ := cmd.Flags().GetInt64("after")

	useDatabase = true
	p, err := newPaperQA()
	if err != nil {
		return err
	}
	defer p.Close()

	docs, err := p.Store.Documents(cmd.Context(), after, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(docs)
	}

	if len(docs) == 0 {
		fmt.Println("No documents stored.")
		return nil
	}
	for _, d := range docs {
		fmt.Print(formatDocument(d))
	}
	return nil
}

// formatDocument prints one row per document and a second row with
// title, author and creation date if the PDF carried them.
func formatDocument(d *model.Document) string {
	line := fmt.Sprintf("%d\t%s\t%d pages\t%s\t%s\n", d.ID, d.Fingerprint, d.PageCount, d.Status, d.Source)

	info := []string{}
	if title := d.Metadata.String(model.MetadataTitle); title != "" {
		info = append(info, fmt.Sprintf("%q", title))
	}
	if author := d.Metadata.String(model.MetadataAuthor); author != "" {
		info = append(info, "by "+author)
	}
	if created, ok := d.Metadata.Time(model.MetadataCreated); ok {
		info = append(info, created.Format("2006-01-02"))
	}
	if len(info) == 0 {
		return line
	}
	return line + "\t" + strings.Join(info, ", ") + "\n"
}

func runEvict(cmd *cobra.Command, args []string) error {
	useDatabase = true
	p, err := newPaperQA()
	if err != nil {
		return err
	}
	defer p.Close()

	return p.Evict(cmd.Context(), args[0])
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := newPaperQA()
	if err != nil {
		return err
	}
	defer p.Close()

	status := p.Status()
	if jsonOutput {
		return printJSON(status)
	}
	fmt.Println(status.String())
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	indexType, _ := cmd.Flags().GetString("type")
	m, _ := cmd.Flags().GetInt("m")
	efConstruction, _ := cmd.Flags().GetInt("ef-construction")
	lists, _ := cmd.Flags().GetInt("lists")

	useDatabase = true
	p, err := newPaperQA()
	if err != nil {
		return err
	}
	defer p.Close()

	return p.Store.Chunks().ChangeIndexType(cmd.Context(), database.VectorIndexType(indexType), database.VectorIndexParams{
		M:              m,
		EfConstruction: efConstruction,
		Lists:          lists,
	})
}
