package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [file or url] [question]",
	Short: "Answer a question about a PDF document",
	Args:  cobra.ExactArgs(2),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	source, err := sourceFromArg(args[0])
	if err != nil {
		return err
	}

	p, err := newPaperQA()
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.Ask(cmd.Context(), source, args[1])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	fmt.Println(result.Text)
	if result.Confidence != nil {
		fmt.Printf("\nConfidence: %.2f\n", *result.Confidence)
	}
	fmt.Printf("Context chunks: %v\n", result.ChunkIndices)
	return nil
}
