package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file or url]",
	Short: "Summarize a PDF document",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	source, err := sourceFromArg(args[0])
	if err != nil {
		return err
	}

	p, err := newPaperQA()
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.Summarize(cmd.Context(), source)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	fmt.Println(result.Text)
	if result.Degraded() {
		fmt.Printf("\n(%d of %d chunks and %d reduce pieces summarized verbatim, truncated: %t)\n", result.DegradedCount(), len(result.ChunkIndices), result.DegradedParts, result.Truncated)
	}
	return nil
}
