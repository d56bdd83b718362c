package main

import (
	"fmt"

	"github.com/siherrmann/paperqa/core/extract"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file or url]",
	Short: "Extract and chunk a PDF document without calling a model for text",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().Int("preview", 80, "characters of every chunk to print")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	preview, _ := cmd.Flags().GetInt("preview")

	source, err := sourceFromArg(args[0])
	if err != nil {
		return err
	}

	p, err := newPaperQA()
	if err != nil {
		return err
	}
	defer p.Close()

	entry, err := p.GetOrBuildDocument(cmd.Context(), "", source)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(struct {
			Document interface{} `json:"document"`
			Chunks   interface{} `json:"chunks"`
		}{entry.Document, entry.Chunks})
	}

	doc := entry.Document
	fmt.Printf("Fingerprint: %s\n", doc.Fingerprint)
	fmt.Printf("Pages:       %d (%s)\n", doc.PageCount, doc.Status)
	fmt.Printf("Chunks:      %d\n\n", len(entry.Chunks))
	for _, c := range entry.Chunks {
		fmt.Printf("[%d] pages %d-%d: %s\n", c.Index, c.PageStart+1, c.PageEnd+1, extract.TextPreview(c.Content, preview))
	}
	return nil
}
